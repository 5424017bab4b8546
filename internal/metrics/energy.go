package metrics

import (
	"math"

	"github.com/san-kum/demsim/internal/dem"
)

// Energy is the mean kinetic energy of registered nodes over the run.
type Energy struct {
	name        string
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy {
	return &Energy{name: "energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(f *dem.Field, t float64) {
	e.totalEnergy += f.KineticEnergy()
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyRatio is the last observed kinetic energy relative to the peak. It
// approaches zero as a packing comes to rest.
type EnergyRatio struct {
	name    string
	peak    float64
	current float64
}

func NewEnergyRatio() *EnergyRatio {
	return &EnergyRatio{name: "energy_ratio"}
}

func (e *EnergyRatio) Name() string { return e.name }

func (e *EnergyRatio) Observe(f *dem.Field, t float64) {
	e.current = f.KineticEnergy()
	e.peak = math.Max(e.peak, e.current)
}

func (e *EnergyRatio) Value() float64 {
	if e.peak == 0 {
		return 0
	}
	return e.current / e.peak
}

func (e *EnergyRatio) Reset() {
	e.peak = 0
	e.current = 0
}
