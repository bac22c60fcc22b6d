package species

import (
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
)

// scrapPile never does anything.
type scrapPile struct{}

func (scrapPile) Decide(mpu.State) mpu.Action { return mpu.Wait }

// hunt turns toward and hacks any adjacent enemy. ok is false when no enemy
// is in front, left or right.
func hunt(s mpu.Surroundings) (mpu.Action, bool) {
	switch {
	case s.Front == geom.Enemy:
		return mpu.Hack, true
	case s.Left == geom.Enemy:
		return mpu.RotateLeft, true
	case s.Right == geom.Enemy:
		return mpu.RotateRight, true
	}
	return mpu.NoAction, false
}

func wander(s mpu.Surroundings) mpu.Action {
	switch {
	case s.Front == geom.None:
		return mpu.Move
	case s.Left == geom.None:
		return mpu.RotateLeft
	default:
		return mpu.RotateRight
	}
}

// junkyardBot hunts, otherwise wanders.
type junkyardBot struct{}

func (junkyardBot) Decide(st mpu.State) mpu.Action {
	if a, ok := hunt(st.Surroundings); ok {
		return a
	}
	return wander(st.Surroundings)
}

// hiveBot hunts like junkyardBot but holds still once a friend covers its back,
// so hives grow into clumps.
type hiveBot struct{}

func (hiveBot) Decide(st mpu.State) mpu.Action {
	if a, ok := hunt(st.Surroundings); ok {
		return a
	}
	if st.Surroundings.Back == geom.Friend {
		return mpu.Wait
	}
	return wander(st.Surroundings)
}

// looper alternates MOVE and ROTATE_RIGHT, tracing a small square.
type looper struct {
	n int
}

func (l *looper) Decide(mpu.State) mpu.Action {
	l.n++
	if l.n%2 == 1 {
		return mpu.Move
	}
	return mpu.RotateRight
}

// spiral walks an outward square spiral: each full turn lengthens the leg by one.
type spiral struct {
	start   geom.Direction
	started bool
	toMake  int
	made    int
}

func (s *spiral) Decide(st mpu.State) mpu.Action {
	if !s.started {
		s.start = st.Facing
		s.started = true
	}
	if s.made < s.toMake {
		s.made++
		return mpu.Move
	}
	if st.Facing == s.start.Clockwise270() {
		s.toMake++
	}
	s.made = 0
	return mpu.RotateRight
}

// sweeper runs east-west lanes, turning around at each obstacle. The
// cooperative variant steps aside for friends instead of turning.
type sweeper struct {
	target      geom.Direction
	cooperative bool
}

func newSweeper(cooperative bool) *sweeper {
	return &sweeper{target: geom.East, cooperative: cooperative}
}

func (s *sweeper) Decide(st mpu.State) mpu.Action {
	if st.Facing != s.target {
		if s.cooperative && st.ObstacleInDirection(s.target) == geom.Friend {
			return mpu.Move
		}
		return mpu.RotateRight
	}
	front := st.Surroundings.Front
	if front == geom.None {
		return mpu.Move
	}
	if s.cooperative && front == geom.Friend {
		return mpu.RotateLeft
	}
	if s.target == geom.East {
		s.target = geom.West
	} else {
		s.target = geom.East
	}
	return mpu.RotateRight
}
