package metrics

import "math"

// KineticEnergy tracks ½·vᵀ·M·v. Value is the most recent energy.
type KineticEnergy struct {
	name    string
	initial float64
	last    float64
	peak    float64
	samples int
}

func NewKineticEnergy() *KineticEnergy {
	return &KineticEnergy{
		name: "kinetic_energy",
	}
}

func (e *KineticEnergy) Name() string { return e.name }

func (e *KineticEnergy) Observe(s Sample) {
	if e.samples == 0 {
		e.initial = s.Energy
	}
	e.last = s.Energy
	e.peak = math.Max(e.peak, s.Energy)
	e.samples++
}

func (e *KineticEnergy) Value() float64 { return e.last }

// Peak is the largest energy seen since the last Reset.
func (e *KineticEnergy) Peak() float64 { return e.peak }

// Gain is the energy change relative to the first sample. Contacts and
// joints should never add energy, so a positive gain points at a bias or
// relaxation problem.
func (e *KineticEnergy) Gain() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.last - e.initial
}

func (e *KineticEnergy) Reset() {
	e.initial = 0
	e.last = 0
	e.peak = 0
	e.samples = 0
}
