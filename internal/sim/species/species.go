// Package species holds the built-in microbot behaviors and registers them.
package species

import "microbots.ai/internal/sim/mpu"

const (
	ScrapPile   mpu.SpeciesID = "scrappile"
	HiveBot     mpu.SpeciesID = "hivebot"
	JunkyardBot mpu.SpeciesID = "junkyardbot"
	Looper1     mpu.SpeciesID = "looper1"
	Looper2     mpu.SpeciesID = "looper2"
	Sweeper1    mpu.SpeciesID = "sweeper1"
	Sweeper2    mpu.SpeciesID = "sweeper2"
)

var builtins = []mpu.Species{
	{ID: ScrapPile, Name: "Scrap Pile", Color: "#a0ccef", New: func() (mpu.MPU, error) { return scrapPile{}, nil }},
	{ID: HiveBot, Name: "Hive Bot", Color: "#eef442", New: func() (mpu.MPU, error) { return hiveBot{}, nil }},
	{ID: JunkyardBot, Name: "Junkyard Bot", Color: "#f4414d", New: func() (mpu.MPU, error) { return junkyardBot{}, nil }},
	{ID: Looper1, Name: "Looper 1", Color: "#daed4b", New: func() (mpu.MPU, error) { return &looper{}, nil }},
	{ID: Looper2, Name: "Looper 2", Color: "#64c466", New: func() (mpu.MPU, error) { return &spiral{toMake: 1}, nil }},
	{ID: Sweeper1, Name: "Sweeper 1", Color: "#2b6dd8", New: func() (mpu.MPU, error) { return newSweeper(false), nil }},
	{ID: Sweeper2, Name: "Sweeper 2", Color: "#bc54bc", New: func() (mpu.MPU, error) { return newSweeper(true), nil }},
}

// Register adds every built-in species to reg.
func Register(reg *mpu.Registry) error {
	for _, s := range builtins {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a registry holding only the built-ins.
func Default() *mpu.Registry {
	reg := mpu.NewRegistry()
	for _, s := range builtins {
		reg.MustRegister(s)
	}
	return reg
}
