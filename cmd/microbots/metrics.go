package main

import (
	"fmt"
	"io"
	"sort"

	"microbots.ai/internal/persistence/indexdb"
	"microbots.ai/internal/sim/engine"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/transport/observer"
)

// writeMetrics renders a minimal Prometheus exposition. idx may be nil.
func writeMetrics(w io.Writer, e *engine.Engine, obs observer.Stats, idx *indexdb.Stats) {
	if e != nil {
		s := e.Latest()
		run := s.RunID

		fmt.Fprintf(w, "# HELP microbots_round Rounds completed in the current run.\n")
		fmt.Fprintf(w, "# TYPE microbots_round gauge\n")
		fmt.Fprintf(w, "microbots_round{run=%q} %d\n", run, s.Round)

		fmt.Fprintf(w, "# HELP microbots_elapsed_seconds Elapsed time of the current run.\n")
		fmt.Fprintf(w, "# TYPE microbots_elapsed_seconds gauge\n")
		fmt.Fprintf(w, "microbots_elapsed_seconds{run=%q} %.3f\n", run, s.Elapsed.Seconds())

		fmt.Fprintf(w, "# HELP microbots_pacing_seconds Minimum delay between rounds.\n")
		fmt.Fprintf(w, "# TYPE microbots_pacing_seconds gauge\n")
		fmt.Fprintf(w, "microbots_pacing_seconds{run=%q} %.3f\n", run, e.Pacing().Seconds())

		fmt.Fprintf(w, "# HELP microbots_running Whether the current run is still in progress.\n")
		fmt.Fprintf(w, "# TYPE microbots_running gauge\n")
		running := 0
		if s.State != engine.Terminated {
			running = 1
		}
		fmt.Fprintf(w, "microbots_running{run=%q} %d\n", run, running)

		fmt.Fprintf(w, "# HELP microbots_species_agents Agents per species.\n")
		fmt.Fprintf(w, "# TYPE microbots_species_agents gauge\n")
		for _, id := range sortedCounts(s.Counts) {
			fmt.Fprintf(w, "microbots_species_agents{run=%q,species=%q} %d\n", run, id, s.Counts[id])
		}
	}

	fmt.Fprintf(w, "# HELP microbots_observer_clients Connected observers.\n")
	fmt.Fprintf(w, "# TYPE microbots_observer_clients gauge\n")
	fmt.Fprintf(w, "microbots_observer_clients{mode=%q} %d\n", "all", obs.Clients)
	fmt.Fprintf(w, "microbots_observer_clients{mode=%q} %d\n", "ack", obs.AckClients)

	fmt.Fprintf(w, "# HELP microbots_observer_ack_timeouts_total Rounds released without every acknowledgement.\n")
	fmt.Fprintf(w, "# TYPE microbots_observer_ack_timeouts_total counter\n")
	fmt.Fprintf(w, "microbots_observer_ack_timeouts_total %d\n", obs.AckTimeouts)

	fmt.Fprintf(w, "# HELP microbots_observer_dropped_total Observer messages dropped on full queues.\n")
	fmt.Fprintf(w, "# TYPE microbots_observer_dropped_total counter\n")
	fmt.Fprintf(w, "microbots_observer_dropped_total %d\n", obs.Dropped)

	if idx == nil {
		return
	}
	fmt.Fprintf(w, "# HELP microbots_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(w, "# TYPE microbots_index_queue_depth gauge\n")
	fmt.Fprintf(w, "microbots_index_queue_depth %d\n", idx.QueueDepth)

	fmt.Fprintf(w, "# HELP microbots_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(w, "# TYPE microbots_index_queue_capacity gauge\n")
	fmt.Fprintf(w, "microbots_index_queue_capacity %d\n", idx.QueueCapacity)

	fmt.Fprintf(w, "# HELP microbots_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(w, "# TYPE microbots_index_dropped_total counter\n")
	fmt.Fprintf(w, "microbots_index_dropped_total{kind=%q} %d\n", "round", idx.DropRoundTotal)
	fmt.Fprintf(w, "microbots_index_dropped_total{kind=%q} %d\n", "conversion", idx.DropConversionTotal)
	fmt.Fprintf(w, "microbots_index_dropped_total{kind=%q} %d\n", "run", idx.DropRunTotal)
}

func sortedCounts(counts map[mpu.SpeciesID]int) []mpu.SpeciesID {
	ids := make([]mpu.SpeciesID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
