package main

import (
	"flag"
	"strings"

	"microbots.ai/internal/sim/simerr"
	"microbots.ai/internal/sim/tuning"
)

// overrides are the tuning values that can be replaced from the command line.
// Only flags that were explicitly set take effect.
type overrides struct {
	population *int
	species    *string
	mapID      *string
	mapFile    *string
	boundary   *string
	rate       *string
	pacingMS   *int
	seed       *int64

	victoryMode *string
	elapsedMS   *int64
	threshold   *float64
	maxRounds   *uint64
}

func (o *overrides) register(fs *flag.FlagSet) {
	o.population = fs.Int("population", 0, "agents per species")
	o.species = fs.String("species", "", "comma-separated species ids")
	o.mapID = fs.String("map", "", "map preset id")
	o.mapFile = fs.String("map_file", "", "map file of ' ' and 'w' symbols (overrides -map)")
	o.boundary = fs.String("boundary", "", "boundary policy: wall or wrap")
	o.rate = fs.String("rate", "", "named rate: NORMAL, FAST, FASTER, FASTEST")
	o.pacingMS = fs.Int("pacing_ms", 0, "explicit pacing in milliseconds (overrides -rate)")
	o.seed = fs.Int64("seed", 0, "placement seed (0 picks one per run)")

	o.victoryMode = fs.String("victory", "", "victory mode: never, elapsed, population, rounds, any, all")
	o.elapsedMS = fs.Int64("victory_elapsed_ms", 0, "elapsed-time victory limit in milliseconds")
	o.threshold = fs.Float64("victory_threshold", 0, "population-threshold victory fraction")
	o.maxRounds = fs.Uint64("victory_rounds", 0, "round-count victory limit")
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// apply returns t with the explicitly set flags applied. An explicit pacing
// must be positive; 0 is not read as "use the rate".
func (o *overrides) apply(t tuning.Tuning, set map[string]bool) (tuning.Tuning, error) {
	if set["population"] {
		t.Population = *o.population
	}
	if set["species"] {
		t.Species = nil
		for _, s := range strings.Split(*o.species, ",") {
			if s = strings.TrimSpace(s); s != "" {
				t.Species = append(t.Species, s)
			}
		}
	}
	if set["map"] {
		t.Map = *o.mapID
		t.MapFile = ""
	}
	if set["map_file"] {
		t.MapFile = *o.mapFile
	}
	if set["boundary"] {
		t.Boundary = *o.boundary
	}
	if set["rate"] {
		t.Rate = *o.rate
		t.PacingMs = 0
	}
	if set["pacing_ms"] {
		if *o.pacingMS <= 0 {
			return t, simerr.Config("pacing_ms", *o.pacingMS, "must be positive")
		}
		t.PacingMs = *o.pacingMS
	}
	if set["seed"] {
		t.Seed = *o.seed
	}
	if set["victory"] {
		t.Victory.Mode = *o.victoryMode
	}
	if set["victory_elapsed_ms"] {
		t.Victory.ElapsedMS = *o.elapsedMS
	}
	if set["victory_threshold"] {
		t.Victory.PopulationThreshold = *o.threshold
	}
	if set["victory_rounds"] {
		t.Victory.MaxRounds = *o.maxRounds
	}
	return t, nil
}
