package geom

import "fmt"

// Obstacle classifies a neighboring cell relative to an observing agent.
type Obstacle uint8

const (
	None Obstacle = iota
	Wall
	Friend
	Enemy
)

var obstacleNames = [...]string{"NONE", "WALL", "FRIEND", "ENEMY"}

func (o Obstacle) String() string {
	if int(o) >= len(obstacleNames) {
		return fmt.Sprintf("Obstacle(%d)", uint8(o))
	}
	return obstacleNames[o]
}

// Pos is a (row, col) cell coordinate.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Pos) Step(d Direction) Pos {
	return Pos{Row: p.Row + d.RowOffset(), Col: p.Col + d.ColOffset()}
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

// Mod is a non-negative modulo for b > 0.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Boundary decides what lies past the edge of the grid.
type Boundary uint8

const (
	// BoundaryWall treats out-of-range cells as walls.
	BoundaryWall Boundary = iota
	// BoundaryWrap normalizes out-of-range coordinates modulo the grid extent.
	BoundaryWrap
)

func (b Boundary) String() string {
	if b == BoundaryWrap {
		return "wrap"
	}
	return "wall"
}

func ParseBoundary(s string) (Boundary, error) {
	switch s {
	case "wall", "walled":
		return BoundaryWall, nil
	case "wrap":
		return BoundaryWrap, nil
	default:
		return 0, fmt.Errorf("unknown boundary policy %q", s)
	}
}
