package metrics

import (
	"log/slog"
	"sort"
	"time"
)

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks step timing over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int
	stepStart   time.Time
}

// NewPerfCollector keeps the last windowSize steps.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
	}
}

func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
}

// EndStep records the wall time since StartStep, with optional device
// phase times, and returns it.
func (p *PerfCollector) EndStep(phases map[string]time.Duration) time.Duration {
	d := time.Since(p.stepStart)
	p.Record(PerfSample{StepDuration: d, Phases: phases})
	return d
}

func (p *PerfCollector) Record(s PerfSample) {
	p.samples[p.writeIndex] = s
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

func (p *PerfCollector) Count() int { return p.sampleCount }

// PerfStats holds aggregated timing over the window.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration
	PhaseAvg        map[string]time.Duration
	PhasePct        map[string]float64
	StepsPerSecond  float64
}

func (p *PerfCollector) Stats() PerfStats {
	out := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.sampleCount == 0 {
		return out
	}

	var total time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.StepDuration
		if i == 0 || s.StepDuration < out.MinStepDuration {
			out.MinStepDuration = s.StepDuration
		}
		if s.StepDuration > out.MaxStepDuration {
			out.MaxStepDuration = s.StepDuration
		}
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}

	out.AvgStepDuration = total / time.Duration(p.sampleCount)
	for phase, sum := range phaseSum {
		out.PhaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if out.AvgStepDuration > 0 {
			out.PhasePct[phase] = float64(out.PhaseAvg[phase]) / float64(out.AvgStepDuration) * 100
		}
	}
	if out.AvgStepDuration > 0 {
		out.StepsPerSecond = float64(time.Second) / float64(out.AvgStepDuration)
	}
	return out
}

// MillisPerStep is the window average in milliseconds.
func (s PerfStats) MillisPerStep() float64 {
	return float64(s.AvgStepDuration.Microseconds()) / 1000
}

func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}

	phases := make([]string, 0, len(s.PhasePct))
	for phase := range s.PhasePct {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		attrs = append(attrs, slog.Float64(phase+"_pct", s.PhasePct[phase]))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat row for perf.csv.
type PerfStatsCSV struct {
	WindowEnd   int     `csv:"window_end"`
	Backend     string  `csv:"backend"`
	AvgStepUS   int64   `csv:"avg_step_us"`
	MinStepUS   int64   `csv:"min_step_us"`
	MaxStepUS   int64   `csv:"max_step_us"`
	StepsPerSec float64 `csv:"steps_per_sec"`
	ForcesPct   float64 `csv:"forces_pct"`
	SortPct     float64 `csv:"sort_pct"`
	PrefixPct   float64 `csv:"prefix_pct"`
}

func (s PerfStats) ToCSV(windowEnd int, backend string) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:   windowEnd,
		Backend:     backend,
		AvgStepUS:   s.AvgStepDuration.Microseconds(),
		MinStepUS:   s.MinStepDuration.Microseconds(),
		MaxStepUS:   s.MaxStepDuration.Microseconds(),
		StepsPerSec: s.StepsPerSecond,
		ForcesPct:   s.PhasePct["forces"],
		SortPct:     s.PhasePct["sort"],
		PrefixPct:   s.PhasePct["prefix"],
	}
}
