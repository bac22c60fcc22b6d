package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"microbots.ai/internal/persistence/indexdb"
	persistlog "microbots.ai/internal/persistence/log"
	"microbots.ai/internal/persistence/snapshot"
	"microbots.ai/internal/sim/engine"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/species"
	"microbots.ai/internal/sim/tuning"
	"microbots.ai/internal/sim/victory"
	"microbots.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the run-history index")
		disableLog = flag.Bool("disable_logs", false, "disable the round/conversion logs")
		keepSnaps  = flag.Bool("final_snapshots", true, "write each run's final state to <data>/runs/<run>/final.snap.zst")
		headless   = flag.Bool("headless", false, "run a single simulation without HTTP and exit when it ends")

		allowRemote = flag.Bool("allow_remote_observers", false, "accept observer connections from non-loopback addresses")
		ackTimeout  = flag.Duration("ack_timeout", 30*time.Second, "release a round an observer has not acknowledged after this long (0 waits forever)")
	)
	var ov overrides
	ov.register(flag.CommandLine)
	flag.Parse()

	logger := log.New(os.Stdout, "[microbots] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	tune, err = ov.apply(tune, setFlags(flag.CommandLine))
	if err != nil {
		logger.Fatalf("flags: %v", err)
	}

	reg := species.Default()
	if err := tune.Validate(reg); err != nil {
		logger.Fatalf("tuning: %v", err)
	}
	cond, err := victory.FromSpec(tune.Victory)
	if err != nil {
		logger.Fatalf("victory: %v", err)
	}
	pacing, err := tune.Pacing()
	if err != nil {
		logger.Fatalf("pacing: %v", err)
	}

	// Optional: run-history index (does not affect the simulation).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	var roundLog engine.RoundLogger
	var convLog engine.ConversionLogger
	if !*disableLog {
		rl := persistlog.NewRoundLogger(*dataDir)
		cl := persistlog.NewConversionLogger(*dataDir)
		defer rl.Close()
		defer cl.Close()
		roundLog, convLog = rl, cl
	}
	var roundIdx engine.RoundLogger
	var convIdx engine.ConversionLogger
	if idx != nil {
		roundIdx, convIdx = idx, idx
	}

	// Build and OnEnd both run on the runner goroutine.
	seeds := map[string]int64{}

	build := func(runID string) (*engine.Engine, error) {
		m, boundary, err := tune.BuildMap()
		if err != nil {
			return nil, err
		}
		seed := tune.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		e, rep, err := engine.Build(engine.Params{
			Config: engine.Config{
				RunID:   runID,
				Pacing:  pacing,
				Victory: cond,
				Logger:  logger,
			},
			Registry:   reg,
			Species:    tune.SpeciesIDs(),
			Population: tune.Population,
			Map:        m,
			Boundary:   boundary,
			Seed:       seed,
		})
		if rep != nil {
			for _, s := range rep.Skipped {
				logger.Printf("run %s: skipped species: %v", runID, s)
			}
		}
		if err != nil {
			return nil, err
		}
		seeds[runID] = seed
		e.SetRoundLogger(multiRoundLogger{a: roundLog, b: roundIdx})
		e.SetConversionLogger(multiConversionLogger{a: convLog, b: convIdx})
		if idx != nil {
			idx.RecordRunStart(indexdb.RunInfo{
				RunID:      runID,
				MapID:      m.ID(),
				Rows:       m.Rows(),
				Cols:       m.Cols(),
				Boundary:   boundary.String(),
				Population: tune.Population,
				Species:    speciesNames(e.Species()),
				Victory:    cond.String(),
				Seed:       seed,
			})
		}
		return e, nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	var sink chan engine.RoundDone
	if !*headless {
		sink = make(chan engine.RoundDone)
	}
	runner, err := engine.NewRunner(engine.RunnerConfig{
		Build:     build,
		Sink:      sink,
		KeepAlive: !*headless,
		OnEnd: func(e *engine.Engine, err error) {
			if err != nil && ctx.Err() == nil {
				logger.Printf("run %s aborted: %v", e.RunID(), err)
			}
			seed := seeds[e.RunID()]
			delete(seeds, e.RunID())
			if *keepSnaps {
				path := snapshot.Path(*dataDir, e.RunID())
				if err := snapshot.WriteSnapshot(path, snapshot.Capture(e, seed)); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
			if idx == nil {
				return
			}
			s := e.Latest()
			idx.RecordRunEnd(indexdb.RunInfo{
				RunID:     e.RunID(),
				Rounds:    s.Round,
				ElapsedMS: s.Elapsed.Milliseconds(),
				Reason:    s.Reason,
				Winner:    string(s.Winner),
			})
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	if *headless {
		if err := runner.Run(ctx); err != nil {
			logger.Fatalf("run: %v", err)
		}
		if e := runner.Current(); e != nil {
			fmt.Println(summary(e.Latest()))
		}
		return
	}

	obsSrv := observer.NewServer(runner, logger, observer.Options{
		AllowRemote: *allowRemote,
		AckTimeout:  *ackTimeout,
	})
	go obsSrv.Pump(ctx, sink)

	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Printf("runner stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var is *indexdb.Stats
		if idx != nil {
			st := idx.Stats()
			is = &st
		}
		writeMetrics(rw, runner.Current(), obsSrv.Stats(), is)
	})
	mux.HandleFunc("/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obsSrv.WSHandler())
	if envBool("MICROBOTS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (%d agents/species, map %s, victory %s)", *addr, tune.Population, tune.Map, cond)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func speciesNames(sp []mpu.Species) []string {
	out := make([]string, 0, len(sp))
	for _, s := range sp {
		out = append(out, string(s.ID))
	}
	return out
}

func summary(s *engine.Snapshot) string {
	if s == nil {
		return "no run"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s after %d rounds (%s)", s.RunID, s.Reason, s.Round, s.Elapsed.Round(time.Millisecond))
	if s.Winner != "" {
		fmt.Fprintf(&b, ", winner %s", s.Winner)
	}
	for _, id := range sortedCounts(s.Counts) {
		fmt.Fprintf(&b, "\n  %-12s %d", id, s.Counts[id])
	}
	return b.String()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
