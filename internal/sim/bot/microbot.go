package bot

import (
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
)

// Microbot is an agent on the arena: a position, a facing and an owned behavior.
// The behavior and its species tag only ever change together, through Hack.
type Microbot struct {
	species mpu.Species
	brain   mpu.MPU

	facing geom.Direction
	pos    geom.Pos
	placed bool
}

func New(species mpu.Species, brain mpu.MPU, facing geom.Direction) *Microbot {
	return &Microbot{species: species, brain: brain, facing: facing}
}

func (b *Microbot) Species() mpu.SpeciesID   { return b.species.ID }
func (b *Microbot) SpeciesInfo() mpu.Species { return b.species }
func (b *Microbot) Brain() mpu.MPU           { return b.brain }
func (b *Microbot) Facing() geom.Direction   { return b.facing }
func (b *Microbot) Pos() geom.Pos            { return b.pos }
func (b *Microbot) Placed() bool             { return b.placed }

// SetPos is reserved for the arena, which keeps positions and occupancy in sync.
func (b *Microbot) SetPos(p geom.Pos) {
	b.pos = p
	b.placed = true
}

func (b *Microbot) RotateLeft()  { b.facing = b.facing.Clockwise270() }
func (b *Microbot) RotateRight() { b.facing = b.facing.Clockwise90() }

// Classify reports whether other is a Friend or an Enemy.
func (b *Microbot) Classify(other *Microbot) geom.Obstacle {
	if other.species.ID == b.species.ID {
		return geom.Friend
	}
	return geom.Enemy
}

// Hack converts other to this bot's species. Nothing happens unless other is an
// enemy. The victim gets a freshly constructed behavior; none of its previous
// behavior state survives.
func (b *Microbot) Hack(other *Microbot) (bool, error) {
	if other == nil || b.Classify(other) != geom.Enemy {
		return false, nil
	}
	brain, err := b.species.Instantiate()
	if err != nil {
		return false, err
	}
	other.brain = brain
	other.species = b.species
	return true, nil
}

// Decide asks the behavior for an action. No decision means Wait.
func (b *Microbot) Decide(st mpu.State) mpu.Action {
	a := b.brain.Decide(st)
	if a == mpu.NoAction {
		return mpu.Wait
	}
	return a
}

// State builds the decision input from surroundings.
func (b *Microbot) State(s mpu.Surroundings) mpu.State {
	return mpu.State{Facing: b.facing, Surroundings: s}
}
