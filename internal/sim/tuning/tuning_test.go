package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/simerr"
	"microbots.ai/internal/sim/species"
)

func TestLoad_RepoConfig(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Defaults()
	if got.Population != want.Population || got.Map != want.Map || got.Rate != want.Rate ||
		got.MapRows != want.MapRows || got.MapCols != want.MapCols || got.Victory != want.Victory ||
		len(got.Species) != len(want.Species) {
		t.Fatalf("repo config drifted from Defaults:\n got=%+v\nwant=%+v", got, want)
	}
	if err := got.Validate(species.Default()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Population != 300 || got.Map != "enclosed" {
		t.Fatalf("got=%+v", got)
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	got, err := Parse([]byte("population: 12\nvictory:\n  max_rounds: 50\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Population != 12 || got.Victory.MaxRounds != 50 || got.Victory.ElapsedMS != 60000 || got.Map != "enclosed" {
		t.Fatalf("got=%+v", got)
	}
}

func TestParse_SchemaRejects(t *testing.T) {
	for _, doc := range []string{
		"population: 0\n",
		"population: many\n",
		"species: []\n",
		"boundary: sideways\n",
		"unknown_key: 1\n",
		"victory:\n  population_threshold: 1.5\n",
		"pacing_ms: 0\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("expected schema error for %q", doc)
		}
	}
}

func TestValidate_ConfigErrors(t *testing.T) {
	reg := species.Default()
	cases := []struct {
		name  string
		edit  func(*Tuning)
		param string
	}{
		{"population", func(t *Tuning) { t.Population = -1 }, "population"},
		{"species empty", func(t *Tuning) { t.Species = nil }, "species"},
		{"species unknown", func(t *Tuning) { t.Species = []string{"ghost"} }, "species"},
		{"map unknown", func(t *Tuning) { t.Map = "maze" }, "map"},
		{"boundary", func(t *Tuning) { t.Boundary = "soft" }, "boundary"},
		{"rate", func(t *Tuning) { t.Rate = "LUDICROUS" }, "rate"},
		{"pacing", func(t *Tuning) { t.PacingMs = -5 }, "pacing_ms"},
		{"victory", func(t *Tuning) { t.Victory.Mode = "eventually" }, "victory.mode"},
	}
	for _, tc := range cases {
		tn := Defaults()
		tc.edit(&tn)
		var ce *simerr.ConfigError
		if err := tn.Validate(reg); !errors.As(err, &ce) || ce.Param != tc.param {
			t.Fatalf("%s: err=%v want ConfigError on %s", tc.name, err, tc.param)
		}
	}
}

func TestPacing(t *testing.T) {
	tn := Defaults()
	if d, _ := tn.Pacing(); d != 100*time.Millisecond {
		t.Fatalf("NORMAL=%s", d)
	}
	tn.Rate = "fastest"
	if d, _ := tn.Pacing(); d != 5*time.Millisecond {
		t.Fatalf("FASTEST=%s", d)
	}
	tn.PacingMs = 7
	if d, _ := tn.Pacing(); d != 7*time.Millisecond {
		t.Fatalf("pacing_ms=%s", d)
	}
	if got := RateNames(); got[0] != "NORMAL" || got[3] != "FASTEST" {
		t.Fatalf("rate names=%v", got)
	}
}

func TestBuildMap(t *testing.T) {
	tn := Defaults()
	tn.Map = "open"
	m, b, err := tn.BuildMap()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if b != geom.BoundaryWrap || m.TraversableCount() != 75*100 {
		t.Fatalf("open: boundary=%s open=%d", b, m.TraversableCount())
	}

	tn.Boundary = "wall"
	if _, b, _ := tn.BuildMap(); b != geom.BoundaryWall {
		t.Fatalf("override ignored: %s", b)
	}

	path := filepath.Join(t.TempDir(), "tiny.map")
	if err := os.WriteFile(path, []byte("w \n  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tn = Defaults()
	tn.MapFile, tn.MapRows, tn.MapCols = path, 2, 2
	m, b, err = tn.BuildMap()
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if m.TraversableCount() != 3 || b != geom.BoundaryWall {
		t.Fatalf("file: open=%d boundary=%s", m.TraversableCount(), b)
	}
}
