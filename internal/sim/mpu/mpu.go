// Package mpu defines the behavior contract of a microbot (its "processing unit")
// and the explicit registry of species that implement it.
package mpu

import (
	"fmt"

	"microbots.ai/internal/sim/geom"
)

// Action is what a microbot attempts on its turn. The zero value means the
// behavior made no decision and is treated as Wait.
type Action uint8

const (
	NoAction Action = iota
	Wait
	Move
	RotateLeft
	RotateRight
	Hack
)

var actionNames = [...]string{"NONE", "WAIT", "MOVE", "ROTATE_LEFT", "ROTATE_RIGHT", "HACK"}

func (a Action) String() string {
	if int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
	return actionNames[a]
}

// Known reports whether a is one of the dispatchable actions.
func (a Action) Known() bool { return a >= Wait && a <= Hack }

// Surroundings are the four neighbors relative to the current facing.
type Surroundings struct {
	Front geom.Obstacle `json:"front"`
	Left  geom.Obstacle `json:"left"`
	Right geom.Obstacle `json:"right"`
	Back  geom.Obstacle `json:"back"`
}

// State is everything a behavior may inspect when deciding.
type State struct {
	Facing       geom.Direction
	Surroundings Surroundings
}

// ObstacleInDirection returns the neighbor in an absolute direction.
func (s State) ObstacleInDirection(d geom.Direction) geom.Obstacle {
	switch geom.Steps(s.Facing, d) {
	case 0:
		return s.Surroundings.Front
	case 1:
		return s.Surroundings.Right
	case 2:
		return s.Surroundings.Back
	default:
		return s.Surroundings.Left
	}
}

// MPU is a per-agent decision function. Implementations may keep state between
// turns; each instance belongs to exactly one agent. Decide is assumed to return
// promptly; the engine does not time it out.
type MPU interface {
	Decide(State) Action
}

// Func adapts a plain function to MPU.
type Func func(State) Action

func (f Func) Decide(s State) Action { return f(s) }
