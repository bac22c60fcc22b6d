package species

import (
	"testing"

	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
)

func state(facing geom.Direction, front, left, right, back geom.Obstacle) mpu.State {
	return mpu.State{Facing: facing, Surroundings: mpu.Surroundings{Front: front, Left: left, Right: right, Back: back}}
}

func TestDefault_RegistersAllBuiltins(t *testing.T) {
	reg := Default()
	ids := reg.IDs()
	if len(ids) != len(builtins) {
		t.Fatalf("ids=%v", ids)
	}
	for _, id := range ids {
		sp, ok := reg.Lookup(id)
		if !ok {
			t.Fatalf("lookup %s failed", id)
		}
		if sp.Color == "" || sp.Name == "" {
			t.Fatalf("species %s missing display info", id)
		}
		m, err := sp.Instantiate()
		if err != nil || m == nil {
			t.Fatalf("instantiate %s: %v", id, err)
		}
	}
	if err := Register(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestScrapPile_AlwaysWaits(t *testing.T) {
	var s scrapPile
	for _, o := range []geom.Obstacle{geom.None, geom.Wall, geom.Friend, geom.Enemy} {
		if a := s.Decide(state(geom.North, o, o, o, o)); a != mpu.Wait {
			t.Fatalf("obstacle %s: got %s", o, a)
		}
	}
}

func TestJunkyardBot(t *testing.T) {
	cases := []struct {
		name string
		st   mpu.State
		want mpu.Action
	}{
		{"hack front", state(geom.North, geom.Enemy, geom.Enemy, geom.None, geom.None), mpu.Hack},
		{"turn left to enemy", state(geom.North, geom.Wall, geom.Enemy, geom.Enemy, geom.None), mpu.RotateLeft},
		{"turn right to enemy", state(geom.North, geom.Friend, geom.Wall, geom.Enemy, geom.None), mpu.RotateRight},
		{"move", state(geom.North, geom.None, geom.None, geom.None, geom.Friend), mpu.Move},
		{"left is open", state(geom.North, geom.Wall, geom.None, geom.None, geom.None), mpu.RotateLeft},
		{"boxed in", state(geom.North, geom.Wall, geom.Wall, geom.Friend, geom.None), mpu.RotateRight},
	}
	var j junkyardBot
	for _, tc := range cases {
		if got := j.Decide(tc.st); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestHiveBot_WaitsWithFriendBehind(t *testing.T) {
	var h hiveBot
	if got := h.Decide(state(geom.East, geom.None, geom.None, geom.None, geom.Friend)); got != mpu.Wait {
		t.Fatalf("got %s want WAIT", got)
	}
	if got := h.Decide(state(geom.East, geom.Enemy, geom.None, geom.None, geom.Friend)); got != mpu.Hack {
		t.Fatalf("got %s want HACK", got)
	}
	if got := h.Decide(state(geom.East, geom.None, geom.None, geom.None, geom.None)); got != mpu.Move {
		t.Fatalf("got %s want MOVE", got)
	}
}

func TestLooper_Alternates(t *testing.T) {
	l := &looper{}
	want := []mpu.Action{mpu.Move, mpu.RotateRight, mpu.Move, mpu.RotateRight}
	for i, w := range want {
		if got := l.Decide(mpu.State{}); got != w {
			t.Fatalf("step %d: got %s want %s", i, got, w)
		}
	}
}

func TestSpiral_LegsGrow(t *testing.T) {
	s := &spiral{toMake: 1}
	facing := geom.North
	var got []mpu.Action
	for i := 0; i < 12; i++ {
		a := s.Decide(mpu.State{Facing: facing})
		if a == mpu.RotateRight {
			facing = facing.Clockwise90()
		}
		got = append(got, a)
	}
	M, R := mpu.Move, mpu.RotateRight
	// N:1, E:1, S:1, W:1 then legs of 2 after completing the loop.
	want := []mpu.Action{M, R, M, R, M, R, M, R, M, M, R, M}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %v want %v", i, got, want)
		}
	}
}

func TestSweeper_TurnsAtObstacle(t *testing.T) {
	s := newSweeper(false)
	if got := s.Decide(state(geom.North, geom.None, geom.None, geom.None, geom.None)); got != mpu.RotateRight {
		t.Fatalf("not facing target: got %s", got)
	}
	if got := s.Decide(state(geom.East, geom.None, geom.None, geom.None, geom.None)); got != mpu.Move {
		t.Fatalf("clear lane: got %s", got)
	}
	if got := s.Decide(state(geom.East, geom.Friend, geom.None, geom.None, geom.None)); got != mpu.RotateRight {
		t.Fatalf("blocked: got %s", got)
	}
	if s.target != geom.West {
		t.Fatalf("target=%s want WEST", s.target)
	}
}

func TestSweeper_CooperativeYieldsToFriends(t *testing.T) {
	s := newSweeper(true)
	if got := s.Decide(state(geom.East, geom.Friend, geom.None, geom.None, geom.None)); got != mpu.RotateLeft {
		t.Fatalf("friend ahead: got %s", got)
	}
	if s.target != geom.East {
		t.Fatalf("target changed on friend")
	}
	// facing North, target East is to the right and holds a friend
	if got := s.Decide(state(geom.North, geom.None, geom.None, geom.Friend, geom.None)); got != mpu.Move {
		t.Fatalf("friend on target side: got %s", got)
	}
}
