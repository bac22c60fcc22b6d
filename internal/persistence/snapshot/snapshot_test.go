package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"microbots.ai/internal/sim/engine"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/species"
	"microbots.ai/internal/sim/terrain"
)

func TestSnapshot_CaptureWriteRead(t *testing.T) {
	m, err := terrain.Open("open", 6, 6)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e, _, err := engine.Build(engine.Params{
		Config:     engine.Config{RunID: "run-7", Pacing: time.Millisecond},
		Registry:   species.Default(),
		Species:    []mpu.SpeciesID{species.JunkyardBot, species.ScrapPile},
		Population: 3,
		Map:        m,
		Boundary:   geom.BoundaryWrap,
		Seed:       9,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	snap := Capture(e, 9)
	if snap.Header.Round != 5 || len(snap.Bots) != 6 || len(snap.Layout) != 6 || snap.Boundary != "wrap" {
		t.Fatalf("capture=%+v", snap)
	}
	total := 0
	for _, n := range snap.Counts {
		total += n
	}
	if total != 6 {
		t.Fatalf("counts=%v", snap.Counts)
	}

	path := Path(t.TempDir(), "run-7")
	if filepath.Base(path) != "final.snap.zst" {
		t.Fatalf("path=%s", path)
	}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != snap.Header {
		t.Fatalf("header=%+v want %+v", h, snap.Header)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header || got.Seed != 9 || got.MapID != "open" || len(got.Bots) != 6 {
		t.Fatalf("read=%+v", got)
	}
	for i := range snap.Bots {
		if got.Bots[i] != snap.Bots[i] {
			t.Fatalf("bot %d: %+v want %+v", i, got.Bots[i], snap.Bots[i])
		}
	}
}
