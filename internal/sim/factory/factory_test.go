package factory

import (
	"errors"
	"math/rand"
	"testing"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
)

func waiter() (mpu.MPU, error) {
	return mpu.Func(func(mpu.State) mpu.Action { return mpu.Wait }), nil
}

func testRegistry(t *testing.T) *mpu.Registry {
	t.Helper()
	reg := mpu.NewRegistry()
	reg.MustRegister(mpu.Species{ID: "a", New: waiter})
	reg.MustRegister(mpu.Species{ID: "b", New: waiter})
	calls := 0
	reg.MustRegister(mpu.Species{ID: "flaky", New: func() (mpu.MPU, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("boom")
		}
		return waiter()
	}})
	reg.MustRegister(mpu.Species{ID: "panics", New: func() (mpu.MPU, error) { panic("nope") }})
	return reg
}

func TestBuild_CountsAndFacing(t *testing.T) {
	reg := testRegistry(t)
	bots, rep, err := Build(reg, []mpu.SpeciesID{"a", "b", "a"}, 50, rand.New(rand.NewSource(7)), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(bots) != 100 {
		t.Fatalf("len=%d want 100", len(bots))
	}
	if rep.Built["a"] != 50 || rep.Built["b"] != 50 || len(rep.Skipped) != 0 {
		t.Fatalf("report=%+v", rep)
	}
	facings := map[geom.Direction]int{}
	counts := map[mpu.SpeciesID]int{}
	for _, b := range bots {
		facings[b.Facing()]++
		counts[b.Species()]++
	}
	if len(facings) != 4 {
		t.Fatalf("facings not spread: %v", facings)
	}
	if counts["a"] != 50 || counts["b"] != 50 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestBuild_ShufflesAcrossSpecies(t *testing.T) {
	reg := testRegistry(t)
	bots, _, err := Build(reg, []mpu.SpeciesID{"a", "b"}, 20, rand.New(rand.NewSource(3)), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sorted := true
	for i := 1; i < len(bots); i++ {
		if bots[i-1].Species() == "b" && bots[i].Species() == "a" {
			sorted = false
			break
		}
	}
	if sorted {
		t.Fatalf("population was not shuffled")
	}
}

func TestBuild_SkipsFailingSpecies(t *testing.T) {
	reg := testRegistry(t)
	bots, rep, err := Build(reg, []mpu.SpeciesID{"a", "flaky", "panics", "ghost"}, 5, rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(bots) != 5 {
		t.Fatalf("len=%d want 5", len(bots))
	}
	for _, b := range bots {
		if b.Species() != "a" {
			t.Fatalf("unexpected species %s", b.Species())
		}
	}
	if _, ok := rep.Built["flaky"]; ok {
		t.Fatalf("partially built species should contribute nothing")
	}
	skipped := map[string]bool{}
	for _, s := range rep.Skipped {
		skipped[s.SpeciesID] = true
	}
	for _, id := range []string{"flaky", "panics", "ghost"} {
		if !skipped[id] {
			t.Fatalf("%s not reported as skipped: %+v", id, rep.Skipped)
		}
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	reg := testRegistry(t)
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		name  string
		ids   []mpu.SpeciesID
		n     int
		param string
	}{
		{"zero population", []mpu.SpeciesID{"a"}, 0, "population"},
		{"negative population", []mpu.SpeciesID{"a"}, -3, "population"},
		{"no species", nil, 3, "species"},
		{"nothing builds", []mpu.SpeciesID{"panics"}, 3, "species"},
	}
	for _, tc := range cases {
		_, _, err := Build(reg, tc.ids, tc.n, rng, nil)
		var ce *simerr.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: err=%v want ConfigError", tc.name, err)
		}
		if ce.Param != tc.param {
			t.Fatalf("%s: param=%s want %s", tc.name, ce.Param, tc.param)
		}
	}
}
