package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Runs lists the most recent runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,started_at,ended_at,map_id,map_rows,map_cols,boundary,population,
		species_json,victory,seed,rounds,elapsed_ms,reason,winner FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			ri              RunInfo
			started         string
			ended           sql.NullString
			species         string
			reason, winner  sql.NullString
			roundsCompleted int64
		)
		if err := rows.Scan(&ri.RunID, &started, &ended, &ri.MapID, &ri.Rows, &ri.Cols, &ri.Boundary, &ri.Population,
			&species, &ri.Victory, &ri.Seed, &roundsCompleted, &ri.ElapsedMS, &reason, &winner); err != nil {
			return nil, err
		}
		ri.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended.Valid {
			ri.EndedAt, _ = time.Parse(time.RFC3339Nano, ended.String)
		}
		_ = json.Unmarshal([]byte(species), &ri.Species)
		ri.Rounds = uint64(roundsCompleted)
		ri.Reason = reason.String
		ri.Winner = winner.String
		out = append(out, ri)
	}
	return out, rows.Err()
}

type TimelinePoint struct {
	Round     uint64
	ElapsedMS int64
	Counts    map[string]int
}

// Timeline returns per-round species counts of a run, sampled every step rounds.
func (s *SQLiteIndex) Timeline(ctx context.Context, runID string, step int) ([]TimelinePoint, error) {
	if step <= 0 {
		step = 1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT r.round, r.elapsed_ms, c.species, c.count
		FROM rounds r JOIN round_counts c ON c.run_id = r.run_id AND c.round = r.round
		WHERE r.run_id = ? AND (r.round % ? = 0 OR r.state = 'TERMINATED')
		ORDER BY r.round, c.species`, runID, step)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelinePoint
	for rows.Next() {
		var (
			round   int64
			elapsed int64
			species string
			n       int
		)
		if err := rows.Scan(&round, &elapsed, &species, &n); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Round != uint64(round) {
			out = append(out, TimelinePoint{Round: uint64(round), ElapsedMS: elapsed, Counts: map[string]int{}})
		}
		out[len(out)-1].Counts[species] = n
	}
	return out, rows.Err()
}

// ConversionMatrix counts conversions of a run by (from, to) species.
func (s *SQLiteIndex) ConversionMatrix(ctx context.Context, runID string) (map[[2]string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_species, to_species, COUNT(*) FROM conversions
		WHERE run_id = ? GROUP BY from_species, to_species`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[[2]string]int{}
	for rows.Next() {
		var from, to string
		var n int
		if err := rows.Scan(&from, &to, &n); err != nil {
			return nil, err
		}
		out[[2]string{from, to}] = n
	}
	return out, rows.Err()
}
