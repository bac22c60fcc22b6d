// Package gen builds the stock arena maps.
package gen

import (
	"fmt"
	"sort"
	"strings"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/terrain"
)

const (
	DefaultRows = 75
	DefaultCols = 100
)

// Preset is a named map layout.
type Preset struct {
	ID          string
	Description string
	// Boundary is the policy the preset is meant to be played with.
	Boundary geom.Boundary

	build func(rows, cols int) []string
}

var presets = map[string]Preset{
	"open": {
		ID:          "open",
		Description: "Open",
		Boundary:    geom.BoundaryWrap,
	},
	"enclosed": {
		ID:          "enclosed",
		Description: "Enclosed",
		Boundary:    geom.BoundaryWall,
		build:       enclosed,
	},
	"diamond": {
		ID:          "diamond",
		Description: "Diamond",
		Boundary:    geom.BoundaryWall,
		build:       diamond,
	},
	"quadrants": {
		ID:          "quadrants",
		Description: "Quadrants",
		Boundary:    geom.BoundaryWall,
		build:       quadrants,
	},
	"circle": {
		ID:          "circle",
		Description: "Circle",
		Boundary:    geom.BoundaryWall,
		build:       circle,
	},
}

func Lookup(id string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

func IDs() []string {
	out := make([]string, 0, len(presets))
	for id := range presets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Build generates the preset at the given extent.
func (p Preset) Build(rows, cols int) (*terrain.Map, error) {
	if p.build == nil {
		return terrain.Open(p.ID, rows, cols)
	}
	if rows < 3 || cols < 3 {
		return nil, fmt.Errorf("map %s: extent %dx%d too small", p.ID, rows, cols)
	}
	lines := p.build(rows, cols)
	return terrain.Parse(p.ID, strings.NewReader(strings.Join(lines, "\n")), rows, cols)
}

type grid [][]byte

func newGrid(rows, cols int) grid {
	g := make(grid, rows)
	for r := range g {
		g[r] = []byte(strings.Repeat(string(terrain.SymbolField), cols))
	}
	return g
}

func (g grid) lines() []string {
	out := make([]string, len(g))
	for r := range g {
		out[r] = string(g[r])
	}
	return out
}

func (g grid) border() {
	rows, cols := len(g), len(g[0])
	for c := 0; c < cols; c++ {
		g[0][c] = terrain.SymbolWall
		g[rows-1][c] = terrain.SymbolWall
	}
	for r := 0; r < rows; r++ {
		g[r][0] = terrain.SymbolWall
		g[r][cols-1] = terrain.SymbolWall
	}
}

func enclosed(rows, cols int) []string {
	g := newGrid(rows, cols)
	g.border()
	return g.lines()
}

func diamond(rows, cols int) []string {
	g := newGrid(rows, cols)
	g.border()
	cr, cc := float64(rows-1)/2, float64(cols-1)/2
	hr, hc := float64(rows)/5, float64(cols)/5
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if abs(float64(r)-cr)/hr+abs(float64(c)-cc)/hc <= 1 {
				g[r][c] = terrain.SymbolWall
			}
		}
	}
	return g.lines()
}

func quadrants(rows, cols int) []string {
	g := newGrid(rows, cols)
	g.border()
	mr, mc := rows/2, cols/2
	gap := min(rows, cols) / 8
	for c := 0; c < cols; c++ {
		if c < mc-gap || c > mc+gap {
			g[mr][c] = terrain.SymbolWall
		}
	}
	for r := 0; r < rows; r++ {
		if r < mr-gap || r > mr+gap {
			g[r][mc] = terrain.SymbolWall
		}
	}
	return g.lines()
}

func circle(rows, cols int) []string {
	g := newGrid(rows, cols)
	cr, cc := float64(rows-1)/2, float64(cols-1)/2
	rr, rc := float64(rows-2)/2, float64(cols-2)/2
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr := (float64(r) - cr) / rr
			dc := (float64(c) - cc) / rc
			if dr*dr+dc*dc > 1 {
				g[r][c] = terrain.SymbolWall
			}
		}
	}
	return g.lines()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
