package enginetest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"microbots.ai/internal/sim/arena"
	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/engine"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/terrain"
	"microbots.ai/internal/sim/victory"
)

// Harness is a small test helper for driving an engine over a hand-built arena:
// - Placements put agents on exact cells with exact facings
// - Step()/StepN() advance via Engine.Step, never via the paced loop
// - Clock is fake; each round advances it by Tick
//
// Tests only touch exported engine APIs so they can live outside the engine package.
type Harness struct {
	T     *testing.T
	E     *engine.Engine
	Arena *arena.Arena
	Bots  []*bot.Microbot
	Clock *FakeClock

	// Tick is added to the clock before every step.
	Tick time.Duration
}

type Placement struct {
	Species mpu.SpeciesID
	Row     int
	Col     int
	Facing  geom.Direction
}

type Options struct {
	// Layout is a symbol grid; empty means Rows x Cols open field.
	Layout []string

	Rows, Cols int
	Boundary   geom.Boundary
	Victory    victory.Condition
}

// NewHarness places the given agents in roster order. The roster order is the turn order.
func NewHarness(t *testing.T, reg *mpu.Registry, opts Options, placements ...Placement) *Harness {
	t.Helper()

	var m *terrain.Map
	var err error
	if len(opts.Layout) > 0 {
		m, err = terrain.Parse("harness", strings.NewReader(strings.Join(opts.Layout, "\n")), len(opts.Layout), len(opts.Layout[0]))
	} else {
		m, err = terrain.Open("harness", opts.Rows, opts.Cols)
	}
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	a := arena.New(m, opts.Boundary, nil)
	bots := make([]*bot.Microbot, 0, len(placements))
	for i, p := range placements {
		sp, ok := reg.Lookup(p.Species)
		if !ok {
			t.Fatalf("placement %d: unknown species %s", i, p.Species)
		}
		brain, err := sp.Instantiate()
		if err != nil {
			t.Fatalf("placement %d: %v", i, err)
		}
		b := bot.New(sp, brain, p.Facing)
		if err := a.PlaceAt(b, geom.Pos{Row: p.Row, Col: p.Col}); err != nil {
			t.Fatalf("placement %d: %v", i, err)
		}
		bots = append(bots, b)
	}

	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	e, err := engine.New(engine.Config{
		RunID:   "harness",
		Pacing:  time.Millisecond,
		Victory: opts.Victory,
		Clock:   clock.Now,
	}, a, bots)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &Harness{T: t, E: e, Arena: a, Bots: bots, Clock: clock, Tick: 100 * time.Millisecond}
}

// Step runs one round and checks the arena invariants afterwards.
func (h *Harness) Step() bool {
	h.T.Helper()
	more, err := h.E.Step()
	if err != nil {
		h.T.Fatalf("step: %v", err)
	}
	h.Clock.Advance(h.Tick)
	h.CheckInvariants()
	return more
}

func (h *Harness) StepN(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		if !h.Step() {
			return
		}
	}
}

// Counts tallies species tags straight from the roster.
func (h *Harness) Counts() map[mpu.SpeciesID]int {
	out := map[mpu.SpeciesID]int{}
	for _, b := range h.Bots {
		out[b.Species()]++
	}
	return out
}

// CheckInvariants verifies conservation, exclusivity and occupancy consistency,
// and that the engine's published counts agree with the roster.
func (h *Harness) CheckInvariants() {
	h.T.Helper()
	if err := h.Arena.Check(h.Bots); err != nil {
		h.T.Fatalf("arena: %v", err)
	}
	s := h.E.Latest()
	if s.Total != len(h.Bots) || len(s.Bots) != len(h.Bots) {
		h.T.Fatalf("population changed: total=%d bots=%d want %d", s.Total, len(s.Bots), len(h.Bots))
	}
	sum := 0
	want := h.Counts()
	for id, n := range s.Counts {
		sum += n
		if want[id] != n {
			h.T.Fatalf("count[%s]=%d roster has %d", id, n, want[id])
		}
	}
	if sum != len(h.Bots) {
		h.T.Fatalf("counts sum to %d want %d", sum, len(h.Bots))
	}
}

type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Script returns a constructor for behaviors that cycle through actions.
// Every constructed instance starts from the first action.
func Script(actions ...mpu.Action) func() (mpu.MPU, error) {
	return func() (mpu.MPU, error) {
		s := &scripted{actions: actions}
		return s, nil
	}
}

type scripted struct {
	actions []mpu.Action
	n       int
}

func (s *scripted) Decide(mpu.State) mpu.Action {
	if len(s.actions) == 0 {
		return mpu.NoAction
	}
	a := s.actions[s.n%len(s.actions)]
	s.n++
	return a
}

// Recorder wraps a constructor and records every state its instances observe.
type Recorder struct {
	mu     sync.Mutex
	States []mpu.State
	Calls  int
}

func (r *Recorder) Wrap(next func() (mpu.MPU, error)) func() (mpu.MPU, error) {
	return func() (mpu.MPU, error) {
		inner, err := next()
		if err != nil {
			return nil, err
		}
		return mpu.Func(func(st mpu.State) mpu.Action {
			r.mu.Lock()
			r.States = append(r.States, st)
			r.Calls++
			r.mu.Unlock()
			return inner.Decide(st)
		}), nil
	}
}
