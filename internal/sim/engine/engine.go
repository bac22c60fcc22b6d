// Package engine runs the round loop of a microbots simulation.
package engine

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"microbots.ai/internal/sim/arena"
	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/factory"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
	"microbots.ai/internal/sim/terrain"
	"microbots.ai/internal/sim/victory"
)

type State int32

const (
	Built State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Built:
		return "BUILT"
	case Running:
		return "RUNNING"
	case Terminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Termination reasons.
const (
	ReasonVictory   = "victory"
	ReasonCancelled = "cancelled"
	ReasonRestart   = "restart"
	ReasonError     = "error"
)

type Config struct {
	RunID   string
	Pacing  time.Duration
	Victory victory.Condition

	// Clock measures elapsed time. Defaults to time.Now.
	Clock  func() time.Time
	Logger *log.Logger
}

// Params describes a complete simulation to build from scratch.
type Params struct {
	Config

	Registry   *mpu.Registry
	Species    []mpu.SpeciesID
	Population int
	Map        *terrain.Map
	Boundary   geom.Boundary
	Seed       int64
}

// Engine is a single-threaded simulation. Step, Run and everything they call
// must run on one goroutine; the request and snapshot methods are safe from any.
type Engine struct {
	cfg Config

	arena   *arena.Arena
	roster  []*bot.Microbot
	index   map[*bot.Microbot]int
	species map[mpu.SpeciesID]mpu.Species
	counts  map[mpu.SpeciesID]int
	tally   map[mpu.Action]int

	state   atomic.Int32
	round   atomic.Uint64
	started time.Time
	elapsed time.Duration
	reason  string
	winner  mpu.SpeciesID
	err     error

	pacing     atomic.Int64
	cancel     chan struct{}
	cancelOnce sync.Once
	restart    atomic.Bool

	latest atomic.Pointer[Snapshot]

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	roundLogger      RoundLogger
	conversionLogger ConversionLogger

	sink chan<- RoundDone
}

// Build validates p, builds the population, places it and returns an engine in
// the Built state.
func Build(p Params) (*Engine, *factory.Report, error) {
	if p.Map == nil {
		return nil, nil, simerr.Config("map", nil, "missing")
	}
	if err := checkConfig(p.Config); err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	roster, rep, err := factory.Build(p.Registry, p.Species, p.Population, rng, p.Logger)
	if err != nil {
		return nil, &rep, err
	}
	if capacity := p.Map.TraversableCount(); len(roster) > capacity {
		return nil, &rep, simerr.Config("population", p.Population,
			fmt.Sprintf("%d agents exceed the %d traversable cells of map %s", len(roster), capacity, p.Map.ID()))
	}
	a := arena.New(p.Map, p.Boundary, rng)
	for _, b := range roster {
		if err := a.PlaceRandomly(b); err != nil {
			return nil, &rep, err
		}
	}
	e, err := New(p.Config, a, roster)
	if err != nil {
		return nil, &rep, err
	}
	return e, &rep, nil
}

// New wraps an already populated arena. roster is the fixed turn order; every
// agent in it must already be placed on a.
func New(cfg Config, a *arena.Arena, roster []*bot.Microbot) (*Engine, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, simerr.Config("population", 0, "roster is empty")
	}
	if err := a.Check(roster); err != nil {
		return nil, err
	}
	if cfg.Victory == nil {
		cfg.Victory = victory.Never()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	e := &Engine{
		cfg:     cfg,
		arena:   a,
		roster:  append([]*bot.Microbot(nil), roster...),
		index:   make(map[*bot.Microbot]int, len(roster)),
		species: map[mpu.SpeciesID]mpu.Species{},
		counts:  map[mpu.SpeciesID]int{},
		tally:   map[mpu.Action]int{},
		cancel:  make(chan struct{}),
	}
	for i, b := range e.roster {
		e.index[b] = i
		e.species[b.Species()] = b.SpeciesInfo()
		e.counts[b.Species()]++
	}
	e.pacing.Store(int64(cfg.Pacing))
	e.publish()
	return e, nil
}

func checkConfig(cfg Config) error {
	if cfg.Pacing <= 0 {
		return simerr.Config("pacing", cfg.Pacing, "must be positive")
	}
	return nil
}

func (e *Engine) SetRoundLogger(l RoundLogger)           { e.roundLogger = l }
func (e *Engine) SetConversionLogger(l ConversionLogger) { e.conversionLogger = l }

// SetSink enables the round-complete handshake in Run. Must be called before Run.
func (e *Engine) SetSink(ch chan<- RoundDone) { e.sink = ch }

func (e *Engine) RunID() string              { return e.cfg.RunID }
func (e *Engine) State() State               { return State(e.state.Load()) }
func (e *Engine) Round() uint64              { return e.round.Load() }
func (e *Engine) Pacing() time.Duration      { return time.Duration(e.pacing.Load()) }
func (e *Engine) Arena() *arena.Arena        { return e.arena }
func (e *Engine) Victory() victory.Condition { return e.cfg.Victory }

// Roster returns the agents in turn order. The slice is a copy; the agents are not.
func (e *Engine) Roster() []*bot.Microbot { return append([]*bot.Microbot(nil), e.roster...) }

// Species lists the species present at build time, sorted by id.
func (e *Engine) Species() []mpu.Species {
	out := make([]mpu.Species, 0, len(e.species))
	for _, sp := range e.species {
		out = append(out, sp)
	}
	sortSpecies(out)
	return out
}

// Err returns the fatal error that aborted the run, if any.
func (e *Engine) Err() error { return e.err }

// SetPacing changes the minimum delay between rounds. Takes effect at the next round.
func (e *Engine) SetPacing(d time.Duration) error {
	if d <= 0 {
		return simerr.Config("pacing", d, "must be positive")
	}
	e.pacing.Store(int64(d))
	return nil
}

// RequestCancel asks the engine to terminate at the next round boundary.
// A round in progress always completes.
func (e *Engine) RequestCancel() {
	e.cancelOnce.Do(func() { close(e.cancel) })
}

// RequestRestart cancels the run and marks it for replacement by the runner.
func (e *Engine) RequestRestart() {
	e.restart.Store(true)
	e.RequestCancel()
}

func (e *Engine) RestartRequested() bool { return e.restart.Load() }

func (e *Engine) cancelRequested() bool {
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

func (e *Engine) status() victory.Status {
	counts := make(map[mpu.SpeciesID]int, len(e.counts))
	for id, n := range e.counts {
		if n > 0 {
			counts[id] = n
		}
	}
	return victory.Status{
		Elapsed: e.elapsed,
		Rounds:  e.round.Load(),
		Counts:  counts,
		Total:   len(e.roster),
	}
}

// Status returns the current victory inputs. Engine goroutine only.
func (e *Engine) Status() victory.Status { return e.status() }
