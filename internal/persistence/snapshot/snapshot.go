package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"microbots.ai/internal/sim/engine"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Round   uint64 `json:"round"`
}

// SnapshotV1 is the state of a run at a round boundary, with enough of the
// arena to redraw it.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed      int64  `json:"seed"`
	ElapsedMS int64  `json:"elapsed_ms"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Winner    string `json:"winner,omitempty"`
	Victory   string `json:"victory"`

	MapID    string   `json:"map_id"`
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	Boundary string   `json:"boundary"`
	Layout   []string `json:"layout"`

	Bots   []BotV1        `json:"bots"`
	Counts map[string]int `json:"counts"`
}

type BotV1 struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Facing  string `json:"facing"`
	Species string `json:"species"`
}

// Capture copies the latest committed state of e.
func Capture(e *engine.Engine, seed int64) SnapshotV1 {
	s := e.Latest()
	m := e.Arena().Map()
	snap := SnapshotV1{
		Header:    Header{Version: Version, RunID: s.RunID, Round: s.Round},
		Seed:      seed,
		ElapsedMS: s.Elapsed.Milliseconds(),
		State:     s.State.String(),
		Reason:    s.Reason,
		Winner:    string(s.Winner),
		Victory:   e.Victory().String(),
		MapID:     m.ID(),
		Rows:      m.Rows(),
		Cols:      m.Cols(),
		Boundary:  e.Arena().Boundary().String(),
		Layout:    m.Layout(),
		Bots:      make([]BotV1, len(s.Bots)),
		Counts:    make(map[string]int, len(s.Counts)),
	}
	for i, b := range s.Bots {
		snap.Bots[i] = BotV1{Row: b.Pos.Row, Col: b.Pos.Col, Facing: b.Facing.String(), Species: string(b.Species)}
	}
	for id, n := range s.Counts {
		snap.Counts[string(id)] = n
	}
	return snap
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is repeated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Path is where the final snapshot of a run is kept under dataDir.
func Path(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID, "final.snap.zst")
}
