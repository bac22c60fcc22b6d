package engine

import (
	"sort"

	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
)

// Step advances the simulation by exactly one round, without pacing. It reports
// whether another round may follow. A pending cancellation is honored here,
// before the round starts; a fatal error terminates the run and is returned.
func (e *Engine) Step() (bool, error) {
	switch e.State() {
	case Terminated:
		return false, e.err
	case Built:
		e.started = e.cfg.Clock()
		e.state.Store(int32(Running))
	}
	if e.cancelRequested() {
		reason := ReasonCancelled
		if e.RestartRequested() {
			reason = ReasonRestart
		}
		e.terminate(reason)
		e.publish()
		return false, nil
	}

	for k := range e.tally {
		delete(e.tally, k)
	}
	var conversions []ConversionEntry
	for i, b := range e.roster {
		conv, err := e.act(i, b)
		if err != nil {
			e.err = err
			e.terminate(ReasonError)
			e.publish()
			if e.cfg.Logger != nil {
				e.cfg.Logger.Printf("run %s aborted: %v", e.cfg.RunID, err)
			}
			return false, err
		}
		if conv != nil {
			conversions = append(conversions, *conv)
		}
	}

	e.round.Add(1)
	e.elapsed = e.cfg.Clock().Sub(e.started)
	st := e.status()
	if e.cfg.Victory.Satisfied(st) {
		e.winner, _ = st.Leader()
		e.terminate(ReasonVictory)
	}
	e.publish()
	e.logRound(conversions)
	return e.State() != Terminated, nil
}

// act runs one agent's turn.
func (e *Engine) act(i int, b *bot.Microbot) (*ConversionEntry, error) {
	a := b.Decide(b.State(e.arena.Surroundings(b)))
	e.tally[a]++
	switch a {
	case mpu.Wait:
	case mpu.Move:
		e.arena.Move(b)
	case mpu.RotateLeft:
		b.RotateLeft()
	case mpu.RotateRight:
		b.RotateRight()
	case mpu.Hack:
		return e.hack(i, b)
	default:
		return nil, &simerr.UnrecognizedActionError{
			SpeciesID:  string(b.Species()),
			AgentIndex: i,
			Round:      e.round.Load() + 1,
			Action:     uint8(a),
		}
	}
	return nil, nil
}

func (e *Engine) hack(i int, b *bot.Microbot) (*ConversionEntry, error) {
	victim := e.arena.FacedOccupant(b)
	if victim == nil {
		return nil, nil
	}
	from := victim.Species()
	ok, err := b.Hack(victim)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	e.counts[from]--
	e.counts[b.Species()]++
	p := victim.Pos()
	return &ConversionEntry{
		RunID:  e.cfg.RunID,
		Round:  e.round.Load() + 1,
		Hacker: i,
		Victim: e.index[victim],
		From:   string(from),
		To:     string(b.Species()),
		Row:    p.Row,
		Col:    p.Col,
	}, nil
}

func (e *Engine) terminate(reason string) {
	e.reason = reason
	e.state.Store(int32(Terminated))
}

func (e *Engine) logRound(conversions []ConversionEntry) {
	if e.conversionLogger != nil {
		for _, c := range conversions {
			if err := e.conversionLogger.WriteConversion(c); err != nil && e.cfg.Logger != nil {
				e.cfg.Logger.Printf("conversion log: %v", err)
			}
		}
	}
	if e.roundLogger == nil {
		return
	}
	entry := RoundLogEntry{
		RunID:       e.cfg.RunID,
		Round:       e.round.Load(),
		ElapsedMS:   e.elapsed.Milliseconds(),
		Counts:      map[string]int{},
		Actions:     map[string]int{},
		Conversions: len(conversions),
		State:       e.State().String(),
		Reason:      e.reason,
		Winner:      string(e.winner),
	}
	for id, n := range e.counts {
		entry.Counts[string(id)] = n
	}
	for a, n := range e.tally {
		entry.Actions[a.String()] = n
	}
	if err := e.roundLogger.WriteRound(entry); err != nil && e.cfg.Logger != nil {
		e.cfg.Logger.Printf("round log: %v", err)
	}
}

func sortSpecies(s []mpu.Species) {
	sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
}
