package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
	"microbots.ai/internal/sim/species"
	"microbots.ai/internal/sim/terrain"
	"microbots.ai/internal/sim/victory"
)

func openMap(t *testing.T, rows, cols int) *terrain.Map {
	t.Helper()
	m, err := terrain.Open("test", rows, cols)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return m
}

func testParams(t *testing.T) Params {
	t.Helper()
	return Params{
		Config:     Config{RunID: "r1", Pacing: time.Millisecond},
		Registry:   species.Default(),
		Species:    []mpu.SpeciesID{species.JunkyardBot, species.HiveBot, species.ScrapPile},
		Population: 20,
		Map:        openMap(t, 20, 20),
		Boundary:   geom.BoundaryWrap,
		Seed:       42,
	}
}

func TestBuild_PlacesWholePopulation(t *testing.T) {
	e, rep, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rep.Skipped) != 0 || len(e.Roster()) != 60 {
		t.Fatalf("roster=%d skipped=%v", len(e.Roster()), rep.Skipped)
	}
	if e.State() != Built {
		t.Fatalf("state=%s", e.State())
	}
	if err := e.Arena().Check(e.Roster()); err != nil {
		t.Fatalf("arena: %v", err)
	}
	s := e.Latest()
	if s == nil || s.Round != 0 || s.Total != 60 || s.Counts[species.HiveBot] != 20 {
		t.Fatalf("initial snapshot=%+v", s)
	}
	if got := len(e.Species()); got != 3 {
		t.Fatalf("species=%d", got)
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Params)
		param string
	}{
		{"over capacity", func(p *Params) { p.Map = openMap(t, 5, 5) }, "population"},
		{"zero population", func(p *Params) { p.Population = 0 }, "population"},
		{"no species", func(p *Params) { p.Species = nil }, "species"},
		{"zero pacing", func(p *Params) { p.Pacing = 0 }, "pacing"},
		{"no map", func(p *Params) { p.Map = nil }, "map"},
	}
	for _, tc := range cases {
		p := testParams(t)
		tc.edit(&p)
		_, _, err := Build(p)
		var ce *simerr.ConfigError
		if !errors.As(err, &ce) || ce.Param != tc.param {
			t.Fatalf("%s: err=%v want ConfigError on %s", tc.name, err, tc.param)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, _, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build a: %v", err)
	}
	b, _, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build b: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := a.Step(); err != nil {
			t.Fatalf("step a: %v", err)
		}
		if _, err := b.Step(); err != nil {
			t.Fatalf("step b: %v", err)
		}
	}
	sa, sb := a.Latest(), b.Latest()
	for i := range sa.Bots {
		if sa.Bots[i] != sb.Bots[i] {
			t.Fatalf("bot %d diverged: %+v vs %+v", i, sa.Bots[i], sb.Bots[i])
		}
	}
}

func TestStep_ConservesPopulation(t *testing.T) {
	e, _, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 50; i++ {
		if _, err := e.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		if err := e.Arena().Check(e.Roster()); err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
		sum := 0
		for _, n := range e.Latest().Counts {
			sum += n
		}
		if sum != 60 {
			t.Fatalf("round %d: population %d", i+1, sum)
		}
	}
}

func TestSetPacing(t *testing.T) {
	e, _, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := e.SetPacing(0); err == nil {
		t.Fatalf("expected error for zero pacing")
	}
	if err := e.SetPacing(5 * time.Millisecond); err != nil {
		t.Fatalf("set pacing: %v", err)
	}
	if e.Pacing() != 5*time.Millisecond {
		t.Fatalf("pacing=%s", e.Pacing())
	}
}

func TestRun_WaitsForAck(t *testing.T) {
	p := testParams(t)
	p.Victory, _ = victory.RoundCount(3)
	e, _, err := Build(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sink := make(chan RoundDone)
	e.SetSink(sink)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	for round := uint64(1); round <= 3; round++ {
		var rd RoundDone
		select {
		case rd = <-sink:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d not published", round)
		}
		if rd.Snapshot.Round != round {
			t.Fatalf("snapshot round=%d want %d", rd.Snapshot.Round, round)
		}
		if round < 3 {
			// without an ack the engine must not advance
			select {
			case <-sink:
				t.Fatalf("engine advanced without ack")
			case <-time.After(20 * time.Millisecond):
			}
			if e.Round() != round {
				t.Fatalf("round=%d want %d", e.Round(), round)
			}
		}
		rd.Ack <- struct{}{}
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not finish")
	}
	if s := e.Latest(); s.State != Terminated || s.Reason != ReasonVictory {
		t.Fatalf("final=%s %s", s.State, s.Reason)
	}
}

func TestRun_CancelInterruptsAckWait(t *testing.T) {
	e, _, err := Build(testParams(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sink := make(chan RoundDone, 4)
	e.SetSink(sink)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	<-sink
	e.RequestCancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop on cancel")
	}
	s := e.Latest()
	if s.Reason != ReasonCancelled || s.Round != 1 {
		t.Fatalf("reason=%s round=%d", s.Reason, s.Round)
	}
}

func TestRun_ContextCancelTerminates(t *testing.T) {
	p := testParams(t)
	p.Pacing = time.Hour
	e, _, err := Build(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not exit")
	}
	if e.State() != Terminated {
		t.Fatalf("state=%s", e.State())
	}
}

func TestRun_Pacing(t *testing.T) {
	p := testParams(t)
	p.Pacing = 10 * time.Millisecond
	p.Victory, _ = victory.RoundCount(5)
	e, _, err := Build(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	start := time.Now()
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if took := time.Since(start); took < 40*time.Millisecond {
		t.Fatalf("5 paced rounds took %s", took)
	}
	if e.Round() != 5 {
		t.Fatalf("round=%d", e.Round())
	}
}
