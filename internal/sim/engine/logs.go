package engine

type RoundLogger interface {
	WriteRound(entry RoundLogEntry) error
}

type ConversionLogger interface {
	WriteConversion(entry ConversionEntry) error
}

type RoundLogEntry struct {
	RunID       string         `json:"run_id"`
	Round       uint64         `json:"round"`
	ElapsedMS   int64          `json:"elapsed_ms"`
	Counts      map[string]int `json:"counts"`
	Actions     map[string]int `json:"actions,omitempty"`
	Conversions int            `json:"conversions,omitempty"`
	State       string         `json:"state"`
	Reason      string         `json:"reason,omitempty"`
	Winner      string         `json:"winner,omitempty"`
}

// ConversionEntry records one successful hack. Hacker and Victim are roster indices.
type ConversionEntry struct {
	RunID  string `json:"run_id"`
	Round  uint64 `json:"round"`
	Hacker int    `json:"hacker"`
	Victim int    `json:"victim"`
	From   string `json:"from"`
	To     string `json:"to"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}
