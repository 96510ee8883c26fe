package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/metrics"
)

// Config controls one run of a Runner.
type Config struct {
	Steps int
	Dt    float32
	// SampleEvery records a metrics.Sample every n steps; 0 records only
	// the first and last step.
	SampleEvery int
	// TuneEvery runs the tuner every n steps when one is set.
	TuneEvery int
	// LogEvery logs perf stats every n steps; 0 disables it.
	LogEvery int
}

func (c Config) Validate() error {
	switch {
	case c.Steps < 0:
		return fmt.Errorf("%w: steps must be non-negative, got %d", dynamo.ErrInvalidConfig, c.Steps)
	case c.Dt <= 0:
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidConfig, c.Dt)
	case c.SampleEvery < 0 || c.TuneEvery < 0 || c.LogEvery < 0:
		return fmt.Errorf("%w: intervals must be non-negative", dynamo.ErrInvalidConfig)
	}
	return nil
}

type Result struct {
	Backend    string
	StepsTaken int
	Samples    []metrics.Sample
	Final      []dynamo.Particle
	Metrics    map[string]float64
	Perf       metrics.PerfStats
	Elapsed    time.Duration
	CellSize   float32
	BudgetHits uint64
}

// Series extracts one field of the sample series.
func (r *Result) Series(field string) ([]float64, error) {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		switch field {
		case "kinetic_energy":
			out[i] = s.KineticEnergy
		case "mean_speed":
			out[i] = s.MeanSpeed
		case "max_speed":
			out[i] = s.MaxSpeed
		case "speed_stddev":
			out[i] = s.SpeedStdDev
		case "step_us":
			out[i] = float64(s.StepMicros)
		default:
			return nil, fmt.Errorf("unknown series: %s", field)
		}
	}
	return out, nil
}

// SeriesNames lists the fields accepted by Result.Series.
func SeriesNames() []string {
	return []string{"kinetic_energy", "mean_speed", "max_speed", "speed_stddev", "step_us"}
}

type BrushMode int

const (
	BrushAdd BrushMode = iota
	BrushRemove
)

func (m BrushMode) String() string {
	switch m {
	case BrushAdd:
		return "add"
	case BrushRemove:
		return "remove"
	default:
		return fmt.Sprintf("BrushMode(%d)", int(m))
	}
}

// Brush is an edit around a point: add Count particles of Type inside
// the disk, or remove every particle inside it.
type Brush struct {
	Mode   BrushMode
	Center dynamo.Vec2
	Radius float32
	Count  int
	Type   uint32
}
