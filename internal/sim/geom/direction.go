package geom

import (
	"fmt"
	"math/rand"
)

// Direction is a cardinal facing. The order NORTH, EAST, SOUTH, WEST is load-bearing:
// stepping forward through it is a clockwise rotation.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

const numDirections = 4

var directionNames = [numDirections]string{"NORTH", "EAST", "SOUTH", "WEST"}

// Row/column offsets indexed by Direction.
var (
	rowOffsets = [numDirections]int{-1, 0, 1, 0}
	colOffsets = [numDirections]int{0, 1, 0, -1}
)

func Directions() []Direction {
	return []Direction{North, East, South, West}
}

func (d Direction) Valid() bool { return d < numDirections }

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
	return directionNames[d]
}

func (d Direction) RowOffset() int { return rowOffsets[d%numDirections] }
func (d Direction) ColOffset() int { return colOffsets[d%numDirections] }

func (d Direction) Clockwise90() Direction  { return (d + 1) % numDirections }
func (d Direction) Clockwise180() Direction { return (d + 2) % numDirections }
func (d Direction) Clockwise270() Direction { return (d + 3) % numDirections }

// ParseDirection accepts the upper-case names produced by String.
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// RandomDirection picks a direction uniformly.
func RandomDirection(rng *rand.Rand) Direction {
	return Direction(rng.Intn(numDirections))
}

// Steps returns how many clockwise quarter turns take from to to (0..3).
func Steps(from, to Direction) int {
	return (int(to) - int(from) + numDirections) % numDirections
}
