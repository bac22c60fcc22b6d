package terrain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"microbots.ai/internal/sim/simerr"
)

// Symbols used in map layouts.
const (
	SymbolField = ' '
	SymbolWall  = 'w'
)

// Map is an immutable walkability grid.
type Map struct {
	id         string
	rows, cols int
	walkable   []bool
	open       int
}

// Open returns a map where every cell is traversable.
func Open(id string, rows, cols int) (*Map, error) {
	if rows <= 0 || cols <= 0 {
		return nil, &simerr.MapLoadError{MapID: id, Err: fmt.Errorf("invalid extent %dx%d", rows, cols)}
	}
	m := &Map{id: id, rows: rows, cols: cols, walkable: make([]bool, rows*cols), open: rows * cols}
	for i := range m.walkable {
		m.walkable[i] = true
	}
	return m, nil
}

// Parse reads exactly rows lines of exactly cols symbols each.
// A single trailing newline is accepted; anything else is a load error.
func Parse(id string, r io.Reader, rows, cols int) (*Map, error) {
	if rows <= 0 || cols <= 0 {
		return nil, &simerr.MapLoadError{MapID: id, Err: fmt.Errorf("invalid extent %dx%d", rows, cols)}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	m := &Map{id: id, rows: rows, cols: cols, walkable: make([]bool, rows*cols)}
	row := 0
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if row >= rows {
			return nil, &simerr.MapLoadError{MapID: id, Line: row + 1, Err: fmt.Errorf("map has more than %d rows", rows)}
		}
		if len(line) != cols {
			return nil, &simerr.MapLoadError{MapID: id, Line: row + 1, Err: fmt.Errorf("row has length %d, expected %d", len(line), cols)}
		}
		for col := 0; col < cols; col++ {
			switch line[col] {
			case SymbolField:
				m.walkable[row*cols+col] = true
				m.open++
			case SymbolWall:
			default:
				return nil, &simerr.MapLoadError{MapID: id, Line: row + 1, Err: fmt.Errorf("no terrain with symbol %q at column %d", line[col], col)}
			}
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, &simerr.MapLoadError{MapID: id, Err: err}
	}
	if row != rows {
		return nil, &simerr.MapLoadError{MapID: id, Err: fmt.Errorf("map has %d rows, expected %d", row, rows)}
	}
	return m, nil
}

// Load parses a map file. The map id is the path.
func Load(path string, rows, cols int) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &simerr.MapLoadError{MapID: path, Err: err}
	}
	defer f.Close()
	return Parse(path, f, rows, cols)
}

func (m *Map) ID() string            { return m.id }
func (m *Map) Rows() int             { return m.rows }
func (m *Map) Cols() int             { return m.cols }
func (m *Map) TraversableCount() int { return m.open }

// InBounds reports whether (row, col) lies inside the grid.
func (m *Map) InBounds(row, col int) bool {
	return row >= 0 && row < m.rows && col >= 0 && col < m.cols
}

// Traversable reports whether (row, col) is an in-bounds open cell.
func (m *Map) Traversable(row, col int) bool {
	if !m.InBounds(row, col) {
		return false
	}
	return m.walkable[row*m.cols+col]
}

// Layout renders the map back into symbol lines.
func (m *Map) Layout() []string {
	out := make([]string, m.rows)
	buf := make([]byte, m.cols)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			if m.walkable[r*m.cols+c] {
				buf[c] = SymbolField
			} else {
				buf[c] = SymbolWall
			}
		}
		out[r] = string(buf)
	}
	return out
}

// IsLoadError reports whether err came from map construction.
func IsLoadError(err error) bool {
	var mle *simerr.MapLoadError
	return errors.As(err, &mle)
}
