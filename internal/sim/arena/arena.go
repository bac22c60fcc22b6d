// Package arena owns the occupancy grid laid over a terrain map.
// All mutation happens on the engine goroutine; the arena itself is not locked.
package arena

import (
	"fmt"
	"math/rand"

	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/terrain"
)

type Arena struct {
	terrain  *terrain.Map
	boundary geom.Boundary
	rng      *rand.Rand

	cells     []*bot.Microbot
	occupants int
}

func New(m *terrain.Map, boundary geom.Boundary, rng *rand.Rand) *Arena {
	return &Arena{
		terrain:  m,
		boundary: boundary,
		rng:      rng,
		cells:    make([]*bot.Microbot, m.Rows()*m.Cols()),
	}
}

func (a *Arena) Map() *terrain.Map       { return a.terrain }
func (a *Arena) Boundary() geom.Boundary { return a.boundary }
func (a *Arena) Rows() int               { return a.terrain.Rows() }
func (a *Arena) Cols() int               { return a.terrain.Cols() }
func (a *Arena) Occupants() int          { return a.occupants }

// Free returns the number of traversable cells that are still unoccupied.
func (a *Arena) Free() int { return a.terrain.TraversableCount() - a.occupants }

func (a *Arena) idx(p geom.Pos) int { return p.Row*a.terrain.Cols() + p.Col }

// resolve applies the boundary policy. ok is false when p lies past a walled edge.
func (a *Arena) resolve(p geom.Pos) (geom.Pos, bool) {
	if a.terrain.InBounds(p.Row, p.Col) {
		return p, true
	}
	if a.boundary != geom.BoundaryWrap {
		return p, false
	}
	return geom.Pos{Row: geom.Mod(p.Row, a.terrain.Rows()), Col: geom.Mod(p.Col, a.terrain.Cols())}, true
}

// At returns the occupant of p, or nil.
func (a *Arena) At(p geom.Pos) *bot.Microbot {
	p, ok := a.resolve(p)
	if !ok {
		return nil
	}
	return a.cells[a.idx(p)]
}

// PlaceRandomly puts b on a random traversable, unoccupied cell.
func (a *Arena) PlaceRandomly(b *bot.Microbot) error {
	if b.Placed() {
		return fmt.Errorf("place: bot already placed at %s", b.Pos())
	}
	if a.Free() <= 0 {
		return fmt.Errorf("place: no free traversable cell on map %s", a.terrain.ID())
	}
	for {
		p := geom.Pos{Row: a.rng.Intn(a.Rows()), Col: a.rng.Intn(a.Cols())}
		if a.terrain.Traversable(p.Row, p.Col) && a.cells[a.idx(p)] == nil {
			a.claim(b, p)
			return nil
		}
	}
}

// PlaceAt puts b on a specific cell. Used for scripted scenarios.
func (a *Arena) PlaceAt(b *bot.Microbot, p geom.Pos) error {
	if b.Placed() {
		return fmt.Errorf("place: bot already placed at %s", b.Pos())
	}
	if !a.terrain.Traversable(p.Row, p.Col) {
		return fmt.Errorf("place: %s is not traversable", p)
	}
	if a.cells[a.idx(p)] != nil {
		return fmt.Errorf("place: %s is occupied", p)
	}
	a.claim(b, p)
	return nil
}

func (a *Arena) claim(b *bot.Microbot, p geom.Pos) {
	a.cells[a.idx(p)] = b
	a.occupants++
	b.SetPos(p)
}

// obstacle classifies the cell next to b in direction d, from b's point of view.
func (a *Arena) obstacle(b *bot.Microbot, d geom.Direction) geom.Obstacle {
	p, ok := a.resolve(b.Pos().Step(d))
	if !ok || !a.terrain.Traversable(p.Row, p.Col) {
		return geom.Wall
	}
	if other := a.cells[a.idx(p)]; other != nil {
		return b.Classify(other)
	}
	return geom.None
}

// Surroundings reports the four neighbors of b relative to its facing.
func (a *Arena) Surroundings(b *bot.Microbot) mpu.Surroundings {
	f := b.Facing()
	return mpu.Surroundings{
		Front: a.obstacle(b, f),
		Left:  a.obstacle(b, f.Clockwise270()),
		Right: a.obstacle(b, f.Clockwise90()),
		Back:  a.obstacle(b, f.Clockwise180()),
	}
}

// FacedOccupant returns the bot directly in front of b, or nil.
func (a *Arena) FacedOccupant(b *bot.Microbot) *bot.Microbot {
	return a.At(b.Pos().Step(b.Facing()))
}

// Move steps b forward when the front cell is empty and traversable.
// Any other case leaves b where it is.
func (a *Arena) Move(b *bot.Microbot) bool {
	if a.obstacle(b, b.Facing()) != geom.None {
		return false
	}
	dst, _ := a.resolve(b.Pos().Step(b.Facing()))
	a.cells[a.idx(b.Pos())] = nil
	a.cells[a.idx(dst)] = b
	b.SetPos(dst)
	return true
}

// Check verifies that occupancy and bot positions agree for the given roster.
func (a *Arena) Check(roster []*bot.Microbot) error {
	if len(roster) != a.occupants {
		return fmt.Errorf("arena: %d occupants, roster has %d bots", a.occupants, len(roster))
	}
	seen := make(map[geom.Pos]int, len(roster))
	for i, b := range roster {
		p := b.Pos()
		if prev, dup := seen[p]; dup {
			return fmt.Errorf("arena: bots %d and %d share %s", prev, i, p)
		}
		seen[p] = i
		if !a.terrain.Traversable(p.Row, p.Col) {
			return fmt.Errorf("arena: bot %d on non-traversable %s", i, p)
		}
		if a.cells[a.idx(p)] != b {
			return fmt.Errorf("arena: cell %s does not hold bot %d", p, i)
		}
	}
	return nil
}
