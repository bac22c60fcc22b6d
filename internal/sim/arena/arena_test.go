package arena

import (
	"math/rand"
	"strings"
	"testing"

	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/terrain"
)

func testSpecies(id string) mpu.Species {
	return mpu.Species{ID: mpu.SpeciesID(id), New: func() (mpu.MPU, error) {
		return mpu.Func(func(mpu.State) mpu.Action { return mpu.Wait }), nil
	}}
}

func newBot(t *testing.T, id string, facing geom.Direction) *bot.Microbot {
	t.Helper()
	sp := testSpecies(id)
	brain, err := sp.Instantiate()
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return bot.New(sp, brain, facing)
}

func openArena(t *testing.T, rows, cols int, boundary geom.Boundary) *Arena {
	t.Helper()
	m, err := terrain.Open("test", rows, cols)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return New(m, boundary, rand.New(rand.NewSource(1)))
}

func parsedArena(t *testing.T, layout []string, boundary geom.Boundary) *Arena {
	t.Helper()
	m, err := terrain.Parse("test", strings.NewReader(strings.Join(layout, "\n")), len(layout), len(layout[0]))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return New(m, boundary, rand.New(rand.NewSource(1)))
}

func TestMove_WrapsAround(t *testing.T) {
	a := openArena(t, 2, 2, geom.BoundaryWrap)
	b := newBot(t, "a", geom.East)
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 0}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if !a.Move(b) {
		t.Fatalf("first move refused")
	}
	if got := b.Pos(); got != (geom.Pos{Row: 0, Col: 1}) {
		t.Fatalf("after first move: %s", got)
	}
	if !a.Move(b) {
		t.Fatalf("second move refused")
	}
	if got := b.Pos(); got != (geom.Pos{Row: 0, Col: 0}) {
		t.Fatalf("after second move: %s", got)
	}
	if a.At(geom.Pos{Row: 0, Col: 1}) != nil || a.At(geom.Pos{Row: 0, Col: 0}) != b {
		t.Fatalf("occupancy out of sync with position")
	}
}

func TestMove_WalledEdgeBlocks(t *testing.T) {
	a := openArena(t, 2, 2, geom.BoundaryWall)
	b := newBot(t, "a", geom.North)
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 1}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := a.Surroundings(b).Front; got != geom.Wall {
		t.Fatalf("front=%s want WALL", got)
	}
	if a.Move(b) {
		t.Fatalf("moved past the edge")
	}
	if b.Pos() != (geom.Pos{Row: 0, Col: 1}) {
		t.Fatalf("position changed: %s", b.Pos())
	}
}

func TestMove_BlockedByWallCellAndBots(t *testing.T) {
	a := parsedArena(t, []string{
		"   ",
		" w ",
		"   ",
	}, geom.BoundaryWall)
	b := newBot(t, "a", geom.South)
	friend := newBot(t, "a", geom.North)
	enemy := newBot(t, "b", geom.North)
	for _, pc := range []struct {
		b *bot.Microbot
		p geom.Pos
	}{{b, geom.Pos{Row: 0, Col: 1}}, {friend, geom.Pos{Row: 0, Col: 0}}, {enemy, geom.Pos{Row: 0, Col: 2}}} {
		if err := a.PlaceAt(pc.b, pc.p); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	s := a.Surroundings(b)
	want := mpu.Surroundings{Front: geom.Wall, Left: geom.Enemy, Right: geom.Friend, Back: geom.Wall}
	if s != want {
		t.Fatalf("surroundings=%+v want %+v", s, want)
	}
	if a.Move(b) {
		t.Fatalf("moved into a wall cell")
	}
	b.RotateLeft() // facing East, toward the enemy
	if a.Move(b) {
		t.Fatalf("moved into an occupied cell")
	}
	if got := a.FacedOccupant(b); got != enemy {
		t.Fatalf("faced occupant=%v want enemy", got)
	}
	if err := a.Check([]*bot.Microbot{b, friend, enemy}); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestSurroundings_WrapSeesAcrossEdge(t *testing.T) {
	a := openArena(t, 3, 3, geom.BoundaryWrap)
	b := newBot(t, "a", geom.North)
	other := newBot(t, "b", geom.North)
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 0}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := a.PlaceAt(other, geom.Pos{Row: 2, Col: 0}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := a.Surroundings(b).Front; got != geom.Enemy {
		t.Fatalf("front=%s want ENEMY", got)
	}
	if got := a.FacedOccupant(b); got != other {
		t.Fatalf("faced occupant mismatch")
	}
}

func TestPlaceRandomly_FillsTraversableOnly(t *testing.T) {
	a := parsedArena(t, []string{
		"www",
		"w  ",
		"w w",
	}, geom.BoundaryWall)
	if a.Free() != 3 {
		t.Fatalf("free=%d want 3", a.Free())
	}
	var roster []*bot.Microbot
	for i := 0; i < 3; i++ {
		b := newBot(t, "a", geom.North)
		if err := a.PlaceRandomly(b); err != nil {
			t.Fatalf("place %d: %v", i, err)
		}
		roster = append(roster, b)
	}
	if err := a.Check(roster); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := a.PlaceRandomly(newBot(t, "a", geom.North)); err == nil {
		t.Fatalf("expected error on full arena")
	}
}

func TestPlaceAt_Rejects(t *testing.T) {
	a := parsedArena(t, []string{" w"}, geom.BoundaryWall)
	b := newBot(t, "a", geom.North)
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 1}); err == nil {
		t.Fatalf("expected error on wall cell")
	}
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 0}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := a.PlaceAt(b, geom.Pos{Row: 0, Col: 0}); err == nil {
		t.Fatalf("expected error placing twice")
	}
	if err := a.PlaceAt(newBot(t, "a", geom.North), geom.Pos{Row: 0, Col: 0}); err == nil {
		t.Fatalf("expected error on occupied cell")
	}
}
