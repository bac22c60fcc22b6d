package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
	"microbots.ai/internal/sim/terrain"
	"microbots.ai/internal/sim/terrain/gen"
	"microbots.ai/internal/sim/victory"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Population int      `yaml:"population"`
	Species    []string `yaml:"species"`

	Map      string `yaml:"map"`
	MapFile  string `yaml:"map_file"`
	MapRows  int    `yaml:"map_rows"`
	MapCols  int    `yaml:"map_cols"`
	Boundary string `yaml:"boundary"`

	Rate     string `yaml:"rate"`
	PacingMs int    `yaml:"pacing_ms"`
	Seed     int64  `yaml:"seed"`

	Victory victory.Spec `yaml:"victory"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		Population: 300,
		Species:    []string{"scrappile", "junkyardbot", "hivebot"},
		Map:        "enclosed",
		MapRows:    gen.DefaultRows,
		MapCols:    gen.DefaultCols,
		Rate:       "NORMAL",
		Victory:    victory.DefaultSpec(),
	}
}

// Load reads a tuning file over Defaults. A missing file yields Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	return Parse(raw)
}

// Parse decodes and schema-checks a tuning document over Defaults.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return schema.Validate(v)
}

var rates = map[string]time.Duration{
	"NORMAL":  100 * time.Millisecond,
	"FAST":    50 * time.Millisecond,
	"FASTER":  16 * time.Millisecond,
	"FASTEST": 5 * time.Millisecond,
}

// RatePacing returns the pacing of a named simulation rate.
func RatePacing(name string) (time.Duration, bool) {
	d, ok := rates[strings.ToUpper(strings.TrimSpace(name))]
	return d, ok
}

// RateNames lists the named rates from slowest to fastest.
func RateNames() []string {
	out := make([]string, 0, len(rates))
	for n := range rates {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return rates[out[i]] > rates[out[j]] })
	return out
}

// Pacing is PacingMs when set, otherwise the pacing of Rate.
func (t Tuning) Pacing() (time.Duration, error) {
	if t.PacingMs > 0 {
		return time.Duration(t.PacingMs) * time.Millisecond, nil
	}
	if t.PacingMs < 0 {
		return 0, simerr.Config("pacing_ms", t.PacingMs, "must be positive")
	}
	d, ok := RatePacing(t.Rate)
	if !ok {
		return 0, simerr.Config("rate", t.Rate, "unknown rate")
	}
	return d, nil
}

func (t Tuning) SpeciesIDs() []mpu.SpeciesID {
	out := make([]mpu.SpeciesID, 0, len(t.Species))
	for _, s := range t.Species {
		out = append(out, mpu.SpeciesID(strings.TrimSpace(s)))
	}
	return out
}

// Validate checks everything that can be checked without touching the map file.
// reg may be nil to skip the species lookup.
func (t Tuning) Validate(reg *mpu.Registry) error {
	if t.Population <= 0 {
		return simerr.Config("population", t.Population, "must be positive")
	}
	if len(t.Species) == 0 {
		return simerr.Config("species", t.Species, "must not be empty")
	}
	if reg != nil {
		for _, id := range t.SpeciesIDs() {
			if _, ok := reg.Lookup(id); !ok {
				return simerr.Config("species", id, "not registered")
			}
		}
	}
	if t.MapRows <= 0 || t.MapCols <= 0 {
		return simerr.Config("map_rows/map_cols", fmt.Sprintf("%dx%d", t.MapRows, t.MapCols), "must be positive")
	}
	if t.MapFile == "" {
		if _, ok := gen.Lookup(t.Map); !ok {
			return simerr.Config("map", t.Map, "unknown map; one of "+strings.Join(gen.IDs(), ", "))
		}
	}
	if t.Boundary != "" {
		if _, err := geom.ParseBoundary(t.Boundary); err != nil {
			return simerr.Config("boundary", t.Boundary, err.Error())
		}
	}
	if _, err := t.Pacing(); err != nil {
		return err
	}
	if _, err := victory.FromSpec(t.Victory); err != nil {
		return err
	}
	return nil
}

// BuildMap produces the terrain and the boundary policy to play it with.
// An explicit Boundary overrides the preset's policy; map files default to walled.
func (t Tuning) BuildMap() (*terrain.Map, geom.Boundary, error) {
	var m *terrain.Map
	boundary := geom.BoundaryWall
	if t.MapFile != "" {
		var err error
		if m, err = terrain.Load(t.MapFile, t.MapRows, t.MapCols); err != nil {
			return nil, 0, err
		}
	} else {
		p, ok := gen.Lookup(t.Map)
		if !ok {
			return nil, 0, simerr.Config("map", t.Map, "unknown map")
		}
		var err error
		if m, err = p.Build(t.MapRows, t.MapCols); err != nil {
			return nil, 0, err
		}
		boundary = p.Boundary
	}
	if t.Boundary != "" {
		b, err := geom.ParseBoundary(t.Boundary)
		if err != nil {
			return nil, 0, simerr.Config("boundary", t.Boundary, err.Error())
		}
		boundary = b
	}
	return m, boundary, nil
}
