package engine

import (
	"context"
	"time"
)

// RoundDone is published after every committed round. The receiver must send
// on (or close) Ack once it has consumed the snapshot; the engine does not
// start the next round before that.
type RoundDone struct {
	Snapshot *Snapshot
	Ack      chan<- struct{}
}

// Run steps the simulation until it terminates or ctx is done. Between rounds
// it waits for the sink's ack (when a sink is set) and for the pacing delay,
// whichever is later. Cancellation interrupts both waits.
func (e *Engine) Run(ctx context.Context) error {
	for {
		began := time.Now()
		more, err := e.Step()
		if err != nil {
			e.emit(ctx, false)
			return err
		}
		if !e.emit(ctx, more) {
			return e.stop(ctx)
		}
		if !more {
			return nil
		}
		wait := e.Pacing() - time.Since(began)
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-e.cancel:
			t.Stop()
		case <-ctx.Done():
			t.Stop()
			return e.stop(ctx)
		}
	}
}

// emit hands the latest snapshot to the sink and, when more rounds follow,
// waits for its ack. It returns false if ctx ended first.
func (e *Engine) emit(ctx context.Context, more bool) bool {
	if e.sink == nil {
		return ctx.Err() == nil
	}
	ack := make(chan struct{}, 1)
	select {
	case e.sink <- RoundDone{Snapshot: e.Latest(), Ack: ack}:
	case <-ctx.Done():
		return false
	}
	if !more {
		return true
	}
	select {
	case <-ack:
	case <-e.cancel:
	case <-ctx.Done():
		return false
	}
	return true
}

// stop terminates the run after ctx ended.
func (e *Engine) stop(ctx context.Context) error {
	e.RequestCancel()
	_, _ = e.Step()
	return ctx.Err()
}
