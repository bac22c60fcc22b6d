package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type RunnerConfig struct {
	// Build constructs a fresh engine for the given run id.
	Build func(runID string) (*Engine, error)

	// Sink, when set, is installed on every engine (see Engine.SetSink).
	Sink chan<- RoundDone

	// KeepAlive keeps the runner waiting for a restart after a run ends,
	// including a run aborted by a fatal error. Without it Run returns when the
	// first run ends without a restart request, with that run's error if any.
	KeepAlive bool

	OnStart func(*Engine)
	OnEnd   func(*Engine, error)

	Logger *log.Logger
}

// Runner owns the current engine and replaces it on restart.
type Runner struct {
	cfg     RunnerConfig
	restart chan struct{}

	mu  sync.RWMutex
	cur *Engine
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Build == nil {
		return nil, errors.New("runner: nil Build")
	}
	return &Runner{cfg: cfg, restart: make(chan struct{}, 1)}, nil
}

// Current returns the engine of the active (or most recent) run.
func (r *Runner) Current() *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// Restart terminates the active run at its next round boundary and starts a
// new one with the same configuration. If no run is active it starts one.
func (r *Runner) Restart() {
	if e := r.Current(); e != nil && e.State() != Terminated {
		e.RequestRestart()
		return
	}
	select {
	case r.restart <- struct{}{}:
	default:
	}
}

func (r *Runner) Run(ctx context.Context) error {
	for {
		runID := uuid.NewString()
		e, err := r.cfg.Build(runID)
		if err != nil {
			return err
		}
		if r.cfg.Sink != nil {
			e.SetSink(r.cfg.Sink)
		}
		r.mu.Lock()
		r.cur = e
		r.mu.Unlock()
		// drop a restart signal that raced with the previous run's end
		select {
		case <-r.restart:
		default:
		}

		if r.cfg.OnStart != nil {
			r.cfg.OnStart(e)
		}
		if r.cfg.Logger != nil {
			r.cfg.Logger.Printf("run %s started: %d agents, victory %s", runID, len(e.roster), e.Victory())
		}
		err = e.Run(ctx)
		if r.cfg.OnEnd != nil {
			r.cfg.OnEnd(e, err)
		}
		if r.cfg.Logger != nil {
			s := e.Latest()
			r.cfg.Logger.Printf("run %s ended after %s rounds (%s): %s %s", runID, humanize.Comma(int64(s.Round)), s.Elapsed.Round(time.Millisecond), s.Reason, s.Winner)
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err != nil && !r.cfg.KeepAlive {
			return err
		}
		if err == nil && e.RestartRequested() {
			continue
		}
		if !r.cfg.KeepAlive {
			return nil
		}
		if err != nil && r.cfg.Logger != nil {
			r.cfg.Logger.Printf("run %s aborted, waiting for restart: %v", runID, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.restart:
		}
	}
}
