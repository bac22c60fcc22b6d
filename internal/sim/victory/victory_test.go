package victory

import (
	"errors"
	"testing"
	"time"

	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
)

func counts(kv ...any) map[mpu.SpeciesID]int {
	m := map[mpu.SpeciesID]int{}
	for i := 0; i < len(kv); i += 2 {
		m[mpu.SpeciesID(kv[i].(string))] = kv[i+1].(int)
	}
	return m
}

func TestPopulationThreshold_Boundary(t *testing.T) {
	c, err := PopulationThreshold(0.5)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if !c.Satisfied(Status{Counts: counts("a", 5, "b", 5), Total: 10}) {
		t.Fatalf("5 of 10 at 0.5 should be satisfied")
	}
	if c.Satisfied(Status{Counts: counts("a", 4, "b", 3, "c", 3), Total: 10}) {
		t.Fatalf("4 of 10 at 0.5 should not be satisfied")
	}
	if c.Satisfied(Status{Counts: counts("a", 4, "b", 4, "c", 1), Total: 9}) {
		t.Fatalf("4.5 needed: 4 must not satisfy")
	}
	if !c.Satisfied(Status{Counts: counts("a", 5, "b", 4), Total: 9}) {
		t.Fatalf("5 of 9 should satisfy")
	}
}

func TestPopulationThreshold_InexactFractions(t *testing.T) {
	cases := []struct {
		f     float64
		total int
	}{
		{0.55, 100},
		{0.1, 30},
		{0.7, 10},
		{0.3, 10},
		{0.8, 25},
		{1, 7},
	}
	for _, tc := range cases {
		c, err := PopulationThreshold(tc.f)
		if err != nil {
			t.Fatalf("threshold %g: %v", tc.f, err)
		}
		need := int(tc.f*float64(tc.total) + 0.5)
		if !c.Satisfied(Status{Counts: counts("a", need, "b", tc.total-need), Total: tc.total}) {
			t.Fatalf("f=%g: exactly %d of %d should satisfy", tc.f, need, tc.total)
		}
		if need > 0 && c.Satisfied(Status{Counts: counts("a", need-1), Total: tc.total}) {
			t.Fatalf("f=%g: %d of %d should not satisfy", tc.f, need-1, tc.total)
		}
	}
}

func TestElapsedTime_Boundary(t *testing.T) {
	c, err := ElapsedTime(1000 * time.Millisecond)
	if err != nil {
		t.Fatalf("elapsed: %v", err)
	}
	if c.Satisfied(Status{Elapsed: 999 * time.Millisecond}) {
		t.Fatalf("999ms should not satisfy")
	}
	if !c.Satisfied(Status{Elapsed: 1000 * time.Millisecond}) {
		t.Fatalf("1000ms should satisfy")
	}
}

func TestConstructors_RejectBadArguments(t *testing.T) {
	checks := []func() error{
		func() error { _, err := ElapsedTime(0); return err },
		func() error { _, err := ElapsedTime(-time.Second); return err },
		func() error { _, err := PopulationThreshold(-0.1); return err },
		func() error { _, err := PopulationThreshold(1.5); return err },
		func() error { _, err := RoundCount(0); return err },
	}
	for i, f := range checks {
		var ce *simerr.ConfigError
		if err := f(); !errors.As(err, &ce) {
			t.Fatalf("case %d: err=%v want ConfigError", i, err)
		}
	}
	for _, f := range []float64{0, 1} {
		if _, err := PopulationThreshold(f); err != nil {
			t.Fatalf("threshold %g rejected: %v", f, err)
		}
	}
}

type spy struct {
	calls  *int
	answer bool
}

func (p spy) Satisfied(Status) bool { *p.calls++; return p.answer }
func (p spy) String() string        { return "spy" }

func TestAndOr_EvaluateBothOperands(t *testing.T) {
	n := 0
	tr, fa := spy{&n, true}, spy{&n, false}
	if !Or(tr, fa).Satisfied(Status{}) || n != 2 {
		t.Fatalf("or: calls=%d", n)
	}
	n = 0
	if And(fa, tr).Satisfied(Status{}) || n != 2 {
		t.Fatalf("and: calls=%d", n)
	}
	if Never().Satisfied(Status{Elapsed: time.Hour, Rounds: 1 << 40}) {
		t.Fatalf("never was satisfied")
	}
}

func TestFromSpec(t *testing.T) {
	c, err := FromSpec(DefaultSpec())
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if got := c.String(); got != "(elapsed>=1m0s || population>=0.8)" {
		t.Fatalf("default=%s", got)
	}
	if !c.Satisfied(Status{Elapsed: time.Minute}) {
		t.Fatalf("elapsed arm not wired")
	}
	if !c.Satisfied(Status{Counts: counts("a", 8, "b", 2), Total: 10}) {
		t.Fatalf("population arm not wired")
	}

	all, err := FromSpec(Spec{Mode: "all", ElapsedMS: 10, MaxRounds: 3})
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all.Satisfied(Status{Elapsed: time.Second, Rounds: 2}) {
		t.Fatalf("all: satisfied with rounds short")
	}
	if !all.Satisfied(Status{Elapsed: time.Second, Rounds: 3}) {
		t.Fatalf("all: not satisfied")
	}

	for _, bad := range []Spec{{Mode: "sometimes"}, {Mode: "any"}, {Mode: "elapsed"}, {Mode: "population", PopulationThreshold: 2}} {
		var ce *simerr.ConfigError
		if _, err := FromSpec(bad); !errors.As(err, &ce) {
			t.Fatalf("%+v: err=%v want ConfigError", bad, err)
		}
	}
}

func TestStatus_Leader(t *testing.T) {
	id, n := Status{Counts: counts("b", 3, "a", 3, "c", 1)}.Leader()
	if id != "a" || n != 3 {
		t.Fatalf("leader=%s,%d", id, n)
	}
	if id, _ := (Status{}).Leader(); id != "" {
		t.Fatalf("empty leader=%q", id)
	}
}
