package metrics

import (
	"log/slog"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/partlife/internal/dynamo"
)

// Sample is one row of a run's time series.
type Sample struct {
	Step          int     `csv:"step" json:"step"`
	KineticEnergy float64 `csv:"kinetic_energy" json:"kinetic_energy"`
	MeanSpeed     float64 `csv:"mean_speed" json:"mean_speed"`
	SpeedStdDev   float64 `csv:"speed_stddev" json:"speed_stddev"`
	MaxSpeed      float64 `csv:"max_speed" json:"max_speed"`
	NonFinite     int     `csv:"non_finite" json:"non_finite"`
	BudgetHits    uint64  `csv:"budget_hits" json:"budget_hits"`
	StepMicros    int64   `csv:"step_us" json:"step_us"`
}

func (s Sample) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", s.Step),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Int("non_finite", s.NonFinite),
		slog.Uint64("budget_hits", s.BudgetHits),
	)
}

// Speeds returns |v| for every finite particle and the number skipped.
func Speeds(ps []dynamo.Particle) ([]float64, int) {
	out := make([]float64, 0, len(ps))
	skipped := 0
	for _, p := range ps {
		if !p.IsFinite() {
			skipped++
			continue
		}
		out = append(out, float64(p.Vel().Len()))
	}
	return out, skipped
}

// Summarize computes the kinematic fields of a Sample.
func Summarize(step int, ps []dynamo.Particle) Sample {
	s := Sample{Step: step}
	speeds, skipped := Speeds(ps)
	s.NonFinite = skipped
	if len(speeds) == 0 {
		return s
	}

	mean, std := stat.MeanStdDev(speeds, nil)
	s.MeanSpeed = mean
	if len(speeds) > 1 {
		s.SpeedStdDev = std
	}
	s.MaxSpeed = floats.Max(speeds)
	// 0.5 * mean(|v|^2)
	s.KineticEnergy = 0.5 * floats.Dot(speeds, speeds) / float64(len(speeds))
	return s
}

// MeanSpeed averages the mean particle speed over observed snapshots.
type MeanSpeed struct {
	name    string
	total   float64
	samples int
}

func NewMeanSpeed() *MeanSpeed { return &MeanSpeed{name: "mean_speed"} }

func (m *MeanSpeed) Name() string { return m.name }

func (m *MeanSpeed) Observe(ps []dynamo.Particle, step int) {
	speeds, _ := Speeds(ps)
	if len(speeds) == 0 {
		return
	}
	m.total += stat.Mean(speeds, nil)
	m.samples++
}

func (m *MeanSpeed) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *MeanSpeed) Reset() { m.total, m.samples = 0, 0 }

// MaxSpeed is the largest particle speed seen.
type MaxSpeed struct {
	name string
	max  float64
}

func NewMaxSpeed() *MaxSpeed { return &MaxSpeed{name: "max_speed"} }

func (m *MaxSpeed) Name() string { return m.name }

func (m *MaxSpeed) Observe(ps []dynamo.Particle, step int) {
	speeds, _ := Speeds(ps)
	if len(speeds) == 0 {
		return
	}
	if v := floats.Max(speeds); v > m.max {
		m.max = v
	}
}

func (m *MaxSpeed) Value() float64 { return m.max }
func (m *MaxSpeed) Reset()         { m.max = 0 }

// Defaults returns the standard metric set for a config.
func Defaults(cfg dynamo.Config) []dynamo.Metric {
	return []dynamo.Metric{
		NewKineticEnergy(),
		NewEnergyDrift(),
		NewMeanSpeed(),
		NewMaxSpeed(),
		NewStability(cfg.MaxVelocity),
	}
}
