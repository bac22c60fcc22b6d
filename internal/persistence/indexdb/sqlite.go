package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"microbots.ai/internal/sim/engine"
)

// SQLiteIndex is a queryable secondary index of runs. Writes are queued to a
// single writer goroutine and dropped when the queue is full; the JSONL logs
// remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRound      atomic.Uint64
	dropConversion atomic.Uint64
	dropRun        atomic.Uint64
}

type reqKind int

const (
	reqRound reqKind = iota + 1
	reqConversion
	reqRunStart
	reqRunEnd
)

type req struct {
	kind reqKind

	round      engine.RoundLogEntry
	conversion engine.ConversionEntry
	run        RunInfo
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	RunID      string
	StartedAt  time.Time
	EndedAt    time.Time
	MapID      string
	Rows       int
	Cols       int
	Boundary   string
	Population int
	Species    []string
	Victory    string
	Seed       int64

	Rounds    uint64
	ElapsedMS int64
	Reason    string
	Winner    string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			map_id TEXT NOT NULL,
			map_rows INTEGER NOT NULL,
			map_cols INTEGER NOT NULL,
			boundary TEXT NOT NULL,
			population INTEGER NOT NULL,
			species_json TEXT NOT NULL,
			victory TEXT NOT NULL,
			seed INTEGER NOT NULL,
			rounds INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			winner TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			conversions INTEGER NOT NULL,
			state TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, round)
		);`,
		`CREATE TABLE IF NOT EXISTS round_counts (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			species TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, round, species)
		);`,
		`CREATE TABLE IF NOT EXISTS conversions (
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			hacker INTEGER NOT NULL,
			victim INTEGER NOT NULL,
			from_species TEXT NOT NULL,
			to_species TEXT NOT NULL,
			pos_row INTEGER NOT NULL,
			pos_col INTEGER NOT NULL,
			PRIMARY KEY (run_id, round, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_victim ON conversions(run_id, victim, round);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteRound(entry engine.RoundLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqRound, round: entry}, &s.dropRound)
	return nil
}

func (s *SQLiteIndex) WriteConversion(entry engine.ConversionEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqConversion, conversion: entry}, &s.dropConversion)
	return nil
}

// RecordRunStart inserts the run row. info.StartedAt defaults to now.
func (s *SQLiteIndex) RecordRunStart(info RunInfo) {
	if s == nil {
		return
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	s.enqueue(req{kind: reqRunStart, run: info}, &s.dropRun)
}

// RecordRunEnd fills in the outcome columns of a run. info.EndedAt defaults to now.
func (s *SQLiteIndex) RecordRunEnd(info RunInfo) {
	if s == nil {
		return
	}
	if info.EndedAt.IsZero() {
		info.EndedAt = time.Now()
	}
	s.enqueue(req{kind: reqRunEnd, run: info}, &s.dropRun)
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropRoundTotal      uint64
	DropConversionTotal uint64
	DropRunTotal        uint64
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropRoundTotal:      s.dropRound.Load(),
		DropConversionTotal: s.dropConversion.Load(),
		DropRunTotal:        s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(run_id,round,elapsed_ms,conversions,state,raw_json) VALUES(?,?,?,?,?,?)`)
	insertCount, _ := s.db.Prepare(`INSERT OR REPLACE INTO round_counts(run_id,round,species,count) VALUES(?,?,?,?)`)
	insertConversion, _ := s.db.Prepare(`INSERT OR REPLACE INTO conversions(run_id,round,seq,hacker,victim,from_species,to_species,pos_row,pos_col) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,map_id,map_rows,map_cols,boundary,population,species_json,victory,seed) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	updateRun, _ := s.db.Prepare(`UPDATE runs SET ended_at=?, rounds=?, elapsed_ms=?, reason=?, winner=? WHERE run_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRound, insertCount, insertConversion, insertRun, updateRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastConvRound uint64
		lastConvRun   string
		convSeq       int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRound:
			e := r.round
			raw, _ := json.Marshal(e)
			if !exec(insertRound, e.RunID, int64(e.Round), e.ElapsedMS, e.Conversions, e.State, string(raw)) {
				continue
			}
			for sp, n := range e.Counts {
				if !exec(insertCount, e.RunID, int64(e.Round), sp, n) {
					break
				}
			}

		case reqConversion:
			c := r.conversion
			if c.Round != lastConvRound || c.RunID != lastConvRun {
				lastConvRound, lastConvRun = c.Round, c.RunID
				convSeq = 0
			}
			seq := convSeq
			convSeq++
			exec(insertConversion, c.RunID, int64(c.Round), seq, c.Hacker, c.Victim, c.From, c.To, c.Row, c.Col)

		case reqRunStart:
			ri := r.run
			species, _ := json.Marshal(ri.Species)
			exec(insertRun, ri.RunID, ri.StartedAt.UTC().Format(time.RFC3339Nano), ri.MapID, ri.Rows, ri.Cols,
				ri.Boundary, ri.Population, string(species), ri.Victory, ri.Seed)
			commit()

		case reqRunEnd:
			ri := r.run
			exec(updateRun, ri.EndedAt.UTC().Format(time.RFC3339Nano), int64(ri.Rounds), ri.ElapsedMS, ri.Reason, ri.Winner, ri.RunID)
			commit()
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
