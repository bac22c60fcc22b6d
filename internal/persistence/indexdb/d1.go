package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"microbots.ai/internal/sim/engine"
)

// D1Config configures the remote ingest backend. Events are batched and
// POSTed as {"events":[...]} to Endpoint.
type D1Config struct {
	Endpoint      string
	Token         string
	Deployment    string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration

	// MaxRetained caps the events held while the endpoint is failing.
	// The oldest are dropped first. Default 8*BatchSize.
	MaxRetained int
	Logger      *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropped      atomic.Uint64
	flushFail    atomic.Uint64
	flushSuccess atomic.Uint64
}

type d1Event struct {
	Kind       string `json:"kind"`
	Deployment string `json:"deployment"`
	Payload    any    `json:"payload"`
}

type d1RunPayload struct {
	RunID      string   `json:"run_id"`
	StartedAt  string   `json:"started_at,omitempty"`
	EndedAt    string   `json:"ended_at,omitempty"`
	MapID      string   `json:"map_id,omitempty"`
	Rows       int      `json:"rows,omitempty"`
	Cols       int      `json:"cols,omitempty"`
	Boundary   string   `json:"boundary,omitempty"`
	Population int      `json:"population,omitempty"`
	Species    []string `json:"species,omitempty"`
	Victory    string   `json:"victory,omitempty"`
	Seed       int64    `json:"seed,omitempty"`
	Rounds     uint64   `json:"rounds,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Winner     string   `json:"winner,omitempty"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Deployment = strings.TrimSpace(cfg.Deployment)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "default"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained < cfg.BatchSize {
		cfg.MaxRetained = 8 * cfg.BatchSize
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) WriteRound(entry engine.RoundLogEntry) error {
	d.enqueue("round", entry)
	return nil
}

func (d *D1Index) WriteConversion(entry engine.ConversionEntry) error {
	d.enqueue("conversion", entry)
	return nil
}

func (d *D1Index) RecordRunStart(info RunInfo) {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	d.enqueue("run_start", d1RunPayload{
		RunID:      info.RunID,
		StartedAt:  info.StartedAt.UTC().Format(time.RFC3339Nano),
		MapID:      info.MapID,
		Rows:       info.Rows,
		Cols:       info.Cols,
		Boundary:   info.Boundary,
		Population: info.Population,
		Species:    info.Species,
		Victory:    info.Victory,
		Seed:       info.Seed,
	})
}

func (d *D1Index) RecordRunEnd(info RunInfo) {
	if info.EndedAt.IsZero() {
		info.EndedAt = time.Now()
	}
	d.enqueue("run_end", d1RunPayload{
		RunID:     info.RunID,
		EndedAt:   info.EndedAt.UTC().Format(time.RFC3339Nano),
		Rounds:    info.Rounds,
		ElapsedMS: info.ElapsedMS,
		Reason:    info.Reason,
		Winner:    info.Winner,
	})
}

type D1Stats struct {
	QueueDepth        int
	QueueCapacity     int
	QueueDroppedTotal uint64
	FlushFailTotal    uint64
	FlushSuccessTotal uint64
}

func (d *D1Index) D1Stats() D1Stats {
	if d == nil {
		return D1Stats{}
	}
	return D1Stats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		QueueDroppedTotal: d.dropped.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		FlushSuccessTotal: d.flushSuccess.Load(),
	}
}

// Stats reports the queue in the shape of the SQLite backend's stats.
func (d *D1Index) Stats() Stats {
	s := d.D1Stats()
	return Stats{QueueDepth: s.QueueDepth, QueueCapacity: s.QueueCapacity, DropRoundTotal: s.QueueDroppedTotal}
}

func (d *D1Index) enqueue(kind string, payload any) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- d1Event{Kind: kind, Deployment: d.cfg.Deployment, Payload: payload}:
	default:
		d.dropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s", kind)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	// A failed batch is kept and retried on ticks only, until a send succeeds.
	failing := false
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			failing = true
			d.flushFail.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			return
		}
		failing = false
		d.flushSuccess.Add(1)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if n := len(batch) - d.cfg.MaxRetained; n > 0 {
				d.dropped.Add(uint64(n))
				batch = append(batch[:0], batch[n:]...)
			}
			if !failing && len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-microbots-index-token", d.cfg.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
