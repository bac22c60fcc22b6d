package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"microbots.ai/internal/persistence/indexdb"
	persistlog "microbots.ai/internal/persistence/log"
	"microbots.ai/internal/persistence/snapshot"
	"microbots.ai/internal/sim/engine"
)

func main() {
	var (
		dbPath  = flag.String("db", "./data/index/runs.sqlite", "run-history index")
		logsDir = flag.String("logs", "", "data dir holding rounds/rounds-*.jsonl.zst (read instead of -db)")
		runID   = flag.String("run", "", "run id (default: list runs, or the last run in -logs)")
		step    = flag.Int("step", 10, "print every Nth round")
		limit   = flag.Int("limit", 20, "runs to list")
		snap    = flag.String("snapshot", "", "print a run snapshot (.snap.zst) and exit")
	)
	flag.Parse()

	if *snap != "" {
		s, err := snapshot.ReadSnapshot(*snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		writeSnapshot(os.Stdout, s)
		return
	}

	if *logsDir != "" {
		id, points, err := timelineFromLogs(filepath.Join(*logsDir, persistlog.RoundsPrefix), *runID, *step)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read logs:", err)
			os.Exit(1)
		}
		if len(points) == 0 {
			fmt.Fprintln(os.Stderr, "no rounds found in", *logsDir)
			os.Exit(1)
		}
		fmt.Printf("run %s\n", id)
		writeTimeline(os.Stdout, points)
		return
	}

	idx, err := indexdb.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *runID == "" {
		runs, err := idx.Runs(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "runs:", err)
			os.Exit(1)
		}
		writeRuns(os.Stdout, runs, time.Now())
		return
	}

	points, err := idx.Timeline(ctx, *runID, *step)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeline:", err)
		os.Exit(1)
	}
	writeTimeline(os.Stdout, points)

	matrix, err := idx.ConversionMatrix(ctx, *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "conversions:", err)
		os.Exit(1)
	}
	writeConversions(os.Stdout, matrix)
}

// timelineFromLogs scans the round logs in dir. An empty runID selects the
// last run found.
func timelineFromLogs(dir, runID string, step int) (string, []indexdb.TimelinePoint, error) {
	if step <= 0 {
		step = 1
	}
	files, err := persistlog.ListFiles(dir, persistlog.RoundsPrefix)
	if err != nil {
		return "", nil, err
	}
	byRun := map[string][]indexdb.TimelinePoint{}
	last := ""
	for _, path := range files {
		err := persistlog.ReadFile(path, func(e engine.RoundLogEntry) bool {
			if runID != "" && e.RunID != runID {
				return true
			}
			last = e.RunID
			if e.Round%uint64(step) != 0 && e.State != engine.Terminated.String() {
				return true
			}
			byRun[e.RunID] = append(byRun[e.RunID], indexdb.TimelinePoint{Round: e.Round, ElapsedMS: e.ElapsedMS, Counts: e.Counts})
			return true
		})
		if err != nil {
			return "", nil, err
		}
	}
	if runID == "" {
		runID = last
	}
	return runID, byRun[runID], nil
}

func writeRuns(w io.Writer, runs []indexdb.RunInfo, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	for _, r := range runs {
		outcome := "running"
		if !r.EndedAt.IsZero() {
			outcome = r.Reason
			if r.Winner != "" {
				outcome += " " + r.Winner
			}
		}
		fmt.Fprintf(w, "%s  %-14s %s rounds  %s  map=%s %dx%d %s  species=%s\n",
			r.RunID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), humanize.Comma(int64(r.Rounds)), outcome,
			r.MapID, r.Rows, r.Cols, r.Boundary, strings.Join(r.Species, ","))
	}
}

func writeTimeline(w io.Writer, points []indexdb.TimelinePoint) {
	var species []string
	seen := map[string]bool{}
	for _, p := range points {
		for id := range p.Counts {
			if !seen[id] {
				seen[id] = true
				species = append(species, id)
			}
		}
	}
	sort.Strings(species)

	fmt.Fprintf(w, "%10s %10s", "round", "elapsed")
	for _, id := range species {
		fmt.Fprintf(w, " %12s", id)
	}
	fmt.Fprintln(w)
	for _, p := range points {
		elapsed := (time.Duration(p.ElapsedMS) * time.Millisecond).Round(time.Millisecond)
		fmt.Fprintf(w, "%10s %10s", humanize.Comma(int64(p.Round)), elapsed)
		for _, id := range species {
			fmt.Fprintf(w, " %12s", humanize.Comma(int64(p.Counts[id])))
		}
		fmt.Fprintln(w)
	}
}

func writeConversions(w io.Writer, matrix map[[2]string]int) {
	if len(matrix) == 0 {
		return
	}
	keys := make([][2]string, 0, len(matrix))
	for k := range matrix {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	fmt.Fprintln(w, "conversions:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s -> %s: %s\n", k[0], k[1], humanize.Comma(int64(matrix[k])))
	}
}

// writeSnapshot draws the arena with one letter per species.
func writeSnapshot(w io.Writer, s snapshot.SnapshotV1) {
	fmt.Fprintf(w, "run %s round=%s elapsed=%s state=%s %s %s\n", s.Header.RunID, humanize.Comma(int64(s.Header.Round)),
		(time.Duration(s.ElapsedMS) * time.Millisecond).Round(time.Millisecond), s.State, s.Reason, s.Winner)
	fmt.Fprintf(w, "map %s %dx%d %s, victory %s\n", s.MapID, s.Rows, s.Cols, s.Boundary, s.Victory)

	ids := make([]string, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	glyph := map[string]byte{}
	for i, id := range ids {
		glyph[id] = byte('A' + i%26)
		fmt.Fprintf(w, "  %c %-12s %s\n", glyph[id], id, humanize.Comma(int64(s.Counts[id])))
	}

	grid := make([][]byte, len(s.Layout))
	for r, row := range s.Layout {
		grid[r] = []byte(strings.ReplaceAll(row, "w", "#"))
	}
	for _, b := range s.Bots {
		if b.Row < len(grid) && b.Col < len(grid[b.Row]) {
			grid[b.Row][b.Col] = glyph[b.Species]
		}
	}
	for _, row := range grid {
		fmt.Fprintln(w, string(row))
	}
}
