package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeRound     = "ROUND"
	TypeResult    = "RESULT"

	TypeAck     = "ACK"
	TypeCancel  = "CANCEL"
	TypeRestart = "RESTART"
	TypeSetRate = "SET_RATE"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Ack makes the simulation wait for this client's ACK after every round.
	Ack bool `json:"ack,omitempty"`
	// CountsOnly drops the per-bot roster from ROUND messages.
	CountsOnly bool `json:"counts_only,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	RunID           string        `json:"run_id"`
	Round           uint64        `json:"round"`
	State           string        `json:"state"`
	PacingMS        int64         `json:"pacing_ms"`
	Rates           []string      `json:"rates"`
	Victory         string        `json:"victory"`
	Arena           ArenaParams   `json:"arena"`
	Species         []SpeciesInfo `json:"species"`
}

type ArenaParams struct {
	MapID    string   `json:"map_id"`
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	Boundary string   `json:"boundary"`
	Layout   []string `json:"layout"`
}

type SpeciesInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Server -> Client. Sent after every committed round.
type RoundMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Round           uint64 `json:"round"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	State           string `json:"state"`
	Reason          string `json:"reason,omitempty"`
	Winner          string `json:"winner,omitempty"`
	PacingMS        int64  `json:"pacing_ms"`

	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	Bots   []BotState     `json:"bots,omitempty"`
}

// BotState is one roster entry, indexed by turn order.
type BotState struct {
	I       int    `json:"i"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Facing  string `json:"facing"`
	Species string `json:"species"`
}

// Client -> Server. ACK, CANCEL, RESTART or SET_RATE.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// ACK: the round being acknowledged.
	Round uint64 `json:"round,omitempty"`
	// SET_RATE: a named rate, or an explicit pacing.
	Rate     string `json:"rate,omitempty"`
	PacingMS int64  `json:"pacing_ms,omitempty"`
}

// Server -> Client. Outcome of a command other than ACK.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	For             string `json:"for"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
