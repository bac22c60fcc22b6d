package engine

import (
	"time"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
)

type BotView struct {
	Index   int
	Pos     geom.Pos
	Facing  geom.Direction
	Species mpu.SpeciesID
}

// Snapshot is an immutable copy of committed state taken at a round boundary.
type Snapshot struct {
	RunID   string
	Round   uint64
	Elapsed time.Duration
	State   State
	Reason  string
	Winner  mpu.SpeciesID
	Pacing  time.Duration

	Rows, Cols int
	Bots       []BotView
	Counts     map[mpu.SpeciesID]int
	Total      int
}

// Latest returns the most recently committed snapshot. Safe from any goroutine.
func (e *Engine) Latest() *Snapshot { return e.latest.Load() }

func (e *Engine) publish() {
	s := &Snapshot{
		RunID:   e.cfg.RunID,
		Round:   e.round.Load(),
		Elapsed: e.elapsed,
		State:   e.State(),
		Reason:  e.reason,
		Winner:  e.winner,
		Pacing:  e.Pacing(),
		Rows:    e.arena.Rows(),
		Cols:    e.arena.Cols(),
		Bots:    make([]BotView, len(e.roster)),
		Counts:  make(map[mpu.SpeciesID]int, len(e.counts)),
		Total:   len(e.roster),
	}
	for i, b := range e.roster {
		s.Bots[i] = BotView{Index: i, Pos: b.Pos(), Facing: b.Facing(), Species: b.Species()}
	}
	for id, n := range e.counts {
		s.Counts[id] = n
	}
	e.latest.Store(s)
}
