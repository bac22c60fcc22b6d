// Package victory defines the termination predicates of a simulation.
package victory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
)

// Status is the read-only view a condition is evaluated against.
type Status struct {
	Elapsed time.Duration
	Rounds  uint64
	Counts  map[mpu.SpeciesID]int
	Total   int
}

// Leader returns the most populous species. Ties go to the smaller id.
func (s Status) Leader() (mpu.SpeciesID, int) {
	ids := make([]mpu.SpeciesID, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var best mpu.SpeciesID
	n := -1
	for _, id := range ids {
		if s.Counts[id] > n {
			best, n = id, s.Counts[id]
		}
	}
	if n < 0 {
		return "", 0
	}
	return best, n
}

// Condition is a pure predicate over Status.
type Condition interface {
	Satisfied(Status) bool
	String() string
}

type never struct{}

func (never) Satisfied(Status) bool { return false }
func (never) String() string        { return "never" }

// Never is never satisfied; the run ends only on cancellation.
func Never() Condition { return never{} }

type elapsed time.Duration

func (e elapsed) Satisfied(s Status) bool { return s.Elapsed >= time.Duration(e) }
func (e elapsed) String() string          { return fmt.Sprintf("elapsed>=%s", time.Duration(e)) }

// ElapsedTime is satisfied once the simulated elapsed time reaches d.
func ElapsedTime(d time.Duration) (Condition, error) {
	if d <= 0 {
		return nil, simerr.Config("victory.elapsed", d, "must be positive")
	}
	return elapsed(d), nil
}

type threshold float64

// Satisfied rounds the required head count up: 0.5 of 9 agents needs 5, not 4.
// The epsilon absorbs products like 0.55*100 = 55.00000000000001.
func (f threshold) Satisfied(s Status) bool {
	need := int(math.Ceil(float64(f)*float64(s.Total) - 1e-9))
	for _, n := range s.Counts {
		if n >= need {
			return true
		}
	}
	return false
}

func (f threshold) String() string { return fmt.Sprintf("population>=%g", float64(f)) }

// PopulationThreshold is satisfied when any single species holds at least
// fraction f of the total population.
func PopulationThreshold(f float64) (Condition, error) {
	if f < 0 || f > 1 || math.IsNaN(f) {
		return nil, simerr.Config("victory.population_threshold", f, "must be in [0,1]")
	}
	return threshold(f), nil
}

type rounds uint64

func (r rounds) Satisfied(s Status) bool { return s.Rounds >= uint64(r) }
func (r rounds) String() string          { return fmt.Sprintf("rounds>=%d", uint64(r)) }

// RoundCount is satisfied after n completed rounds.
func RoundCount(n uint64) (Condition, error) {
	if n == 0 {
		return nil, simerr.Config("victory.max_rounds", n, "must be positive")
	}
	return rounds(n), nil
}

type combo struct {
	and  bool
	a, b Condition
}

// Both operands are always evaluated.
func (c combo) Satisfied(s Status) bool {
	x, y := c.a.Satisfied(s), c.b.Satisfied(s)
	if c.and {
		return x && y
	}
	return x || y
}

func (c combo) String() string {
	op := " || "
	if c.and {
		op = " && "
	}
	return "(" + c.a.String() + op + c.b.String() + ")"
}

func And(a, b Condition) Condition { return combo{and: true, a: a, b: b} }
func Or(a, b Condition) Condition  { return combo{a: a, b: b} }

// Spec is the declarative form of a condition, as found in configuration.
type Spec struct {
	// Mode is one of never, elapsed, population, rounds, any, all.
	// any/all combine every criterion with a non-zero value.
	Mode                string  `yaml:"mode" json:"mode"`
	ElapsedMS           int64   `yaml:"elapsed_ms" json:"elapsed_ms"`
	PopulationThreshold float64 `yaml:"population_threshold" json:"population_threshold"`
	MaxRounds           uint64  `yaml:"max_rounds" json:"max_rounds"`
}

// DefaultSpec ends a run after one minute or at 80% dominance.
func DefaultSpec() Spec {
	return Spec{Mode: "any", ElapsedMS: 60000, PopulationThreshold: 0.8}
}

// FromSpec builds the condition described by s.
func FromSpec(s Spec) (Condition, error) {
	switch mode := strings.ToLower(strings.TrimSpace(s.Mode)); mode {
	case "never":
		return Never(), nil
	case "elapsed":
		return ElapsedTime(time.Duration(s.ElapsedMS) * time.Millisecond)
	case "population":
		return PopulationThreshold(s.PopulationThreshold)
	case "rounds":
		return RoundCount(s.MaxRounds)
	case "any", "all", "":
		var parts []Condition
		if s.ElapsedMS != 0 {
			c, err := ElapsedTime(time.Duration(s.ElapsedMS) * time.Millisecond)
			if err != nil {
				return nil, err
			}
			parts = append(parts, c)
		}
		if s.PopulationThreshold != 0 {
			c, err := PopulationThreshold(s.PopulationThreshold)
			if err != nil {
				return nil, err
			}
			parts = append(parts, c)
		}
		if s.MaxRounds != 0 {
			parts = append(parts, rounds(s.MaxRounds))
		}
		if len(parts) == 0 {
			return nil, simerr.Config("victory.mode", s.Mode, "no criteria set")
		}
		out := parts[0]
		for _, c := range parts[1:] {
			if mode == "all" {
				out = And(out, c)
			} else {
				out = Or(out, c)
			}
		}
		return out, nil
	default:
		return nil, simerr.Config("victory.mode", s.Mode, "unknown mode")
	}
}
