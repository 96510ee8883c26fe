package metrics

import (
	"math"

	"github.com/san-kum/partlife/internal/dynamo"
)

// KineticEnergy averages the per-particle kinetic energy (unit mass) over
// observed snapshots.
type KineticEnergy struct {
	name    string
	samples int
	total   float64
	last    float64
}

func NewKineticEnergy() *KineticEnergy {
	return &KineticEnergy{name: "kinetic_energy"}
}

func (e *KineticEnergy) Name() string { return e.name }

func (e *KineticEnergy) Observe(ps []dynamo.Particle, step int) {
	if len(ps) == 0 {
		return
	}
	e.last = MeanKineticEnergy(ps)
	e.total += e.last
	e.samples++
}

func (e *KineticEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

// Last is the energy of the most recent snapshot.
func (e *KineticEnergy) Last() float64 { return e.last }

func (e *KineticEnergy) Reset() {
	e.total = 0
	e.last = 0
	e.samples = 0
}

// MeanKineticEnergy returns mean(0.5 * |v|^2). Non-finite particles are
// skipped.
func MeanKineticEnergy(ps []dynamo.Particle) float64 {
	var sum float64
	var n int
	for _, p := range ps {
		if !p.IsFinite() {
			continue
		}
		sum += 0.5 * float64(p.Vel().LenSq())
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// EnergyDrift tracks the largest relative change of mean kinetic energy
// from a reference snapshot. The first snapshot with non-zero energy
// becomes the reference.
type EnergyDrift struct {
	name     string
	initial  float64
	current  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(ps []dynamo.Particle, step int) {
	energy := MeanKineticEnergy(ps)
	if e.initial == 0 {
		e.initial = energy
	}

	e.current = energy
	e.samples++

	if e.initial != 0 {
		drift := math.Abs(energy-e.initial) / e.initial
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.current = 0
	e.maxDrift = 0
	e.samples = 0
}
