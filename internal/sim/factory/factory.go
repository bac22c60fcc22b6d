// Package factory builds the initial population of a simulation.
package factory

import (
	"errors"
	"log"
	"math/rand"

	"microbots.ai/internal/sim/bot"
	"microbots.ai/internal/sim/geom"
	"microbots.ai/internal/sim/mpu"
	"microbots.ai/internal/sim/simerr"
)

// Report describes what Build actually produced.
type Report struct {
	Built   map[mpu.SpeciesID]int
	Skipped []*simerr.SpeciesInstantiationError
}

// Build constructs n agents of every species in ids, each with a uniformly
// random facing, and returns them shuffled. The returned order is the turn order.
//
// A species whose constructor fails on any instance contributes no agents; the
// failure is recorded in the report and logged when logger is non-nil. Unknown
// ids are skipped the same way. Build fails only when nothing could be built.
func Build(reg *mpu.Registry, ids []mpu.SpeciesID, n int, rng *rand.Rand, logger *log.Logger) ([]*bot.Microbot, Report, error) {
	rep := Report{Built: map[mpu.SpeciesID]int{}}
	if n <= 0 {
		return nil, rep, simerr.Config("population", n, "must be positive")
	}
	if len(ids) == 0 {
		return nil, rep, simerr.Config("species", ids, "must not be empty")
	}

	var out []*bot.Microbot
	seen := make(map[mpu.SpeciesID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		sp, ok := reg.Lookup(id)
		if !ok {
			skip(&rep, logger, &simerr.SpeciesInstantiationError{SpeciesID: string(id), Err: errors.New("not registered")})
			continue
		}
		batch, err := buildSpecies(sp, n, rng)
		if err != nil {
			var sie *simerr.SpeciesInstantiationError
			if !errors.As(err, &sie) {
				sie = &simerr.SpeciesInstantiationError{SpeciesID: string(id), Err: err}
			}
			skip(&rep, logger, sie)
			continue
		}
		out = append(out, batch...)
		rep.Built[sp.ID] = len(batch)
	}
	if len(out) == 0 {
		return nil, rep, simerr.Config("species", ids, "no species could be instantiated")
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, rep, nil
}

func buildSpecies(sp mpu.Species, n int, rng *rand.Rand) ([]*bot.Microbot, error) {
	batch := make([]*bot.Microbot, 0, n)
	for i := 0; i < n; i++ {
		brain, err := sp.Instantiate()
		if err != nil {
			return nil, err
		}
		batch = append(batch, bot.New(sp, brain, geom.RandomDirection(rng)))
	}
	return batch, nil
}

func skip(rep *Report, logger *log.Logger, err *simerr.SpeciesInstantiationError) {
	rep.Skipped = append(rep.Skipped, err)
	if logger != nil {
		logger.Printf("factory: skipping species %s: %v", err.SpeciesID, err.Err)
	}
}
