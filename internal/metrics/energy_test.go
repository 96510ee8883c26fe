package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/san-kum/partlife/internal/dynamo"
)

func particles(vels ...dynamo.Vec2) []dynamo.Particle {
	ps := make([]dynamo.Particle, len(vels))
	for i, v := range vels {
		ps[i] = dynamo.Particle{VX: v.X, VY: v.Y}
	}
	return ps
}

func TestKineticEnergy(t *testing.T) {
	m := NewKineticEnergy()

	ps := particles(dynamo.Vec2{X: 3, Y: 4}, dynamo.Vec2{})
	m.Observe(ps, 0)

	// (0.5*25 + 0) / 2
	expected := 6.25
	if math.Abs(m.Value()-expected) > 1e-9 {
		t.Errorf("expected energy %f, got %f", expected, m.Value())
	}

	m.Observe(particles(dynamo.Vec2{}), 1)
	if math.Abs(m.Value()-expected/2) > 1e-9 {
		t.Errorf("expected running mean %f, got %f", expected/2, m.Value())
	}
	if m.Last() != 0 {
		t.Errorf("last = %f", m.Last())
	}
}

func TestKineticEnergyReset(t *testing.T) {
	m := NewKineticEnergy()

	m.Observe(particles(dynamo.Vec2{X: 1, Y: 1}), 0)
	if m.Value() == 0 {
		t.Error("expected non-zero energy")
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift()
	m.Observe(particles(dynamo.Vec2{X: 2}), 0)
	m.Observe(particles(dynamo.Vec2{X: 1}), 1)
	m.Observe(particles(dynamo.Vec2{X: 2}), 2)

	if math.Abs(m.Value()-0.75) > 1e-9 {
		t.Errorf("expected drift 0.75, got %f", m.Value())
	}
}

func TestStability(t *testing.T) {
	s := NewStability(10)
	s.Observe(particles(dynamo.Vec2{X: 5}), 0)
	s.Observe(particles(dynamo.Vec2{X: 50}), 1)
	nan := particles(dynamo.Vec2{X: float32(math.NaN())})
	s.Observe(nan, 2)
	s.Observe(particles(dynamo.Vec2{Y: 1}), 3)

	if math.Abs(s.Value()-0.5) > 1e-9 {
		t.Errorf("stability = %f, want 0.5", s.Value())
	}
	if s.NonFinite() != 1 {
		t.Errorf("non-finite = %d", s.NonFinite())
	}
}

func TestSummarize(t *testing.T) {
	ps := particles(
		dynamo.Vec2{X: 3, Y: 4},
		dynamo.Vec2{X: 0, Y: 1},
		dynamo.Vec2{X: float32(math.Inf(1))},
	)
	s := Summarize(7, ps)

	if s.Step != 7 || s.NonFinite != 1 {
		t.Errorf("step/non-finite = %d/%d", s.Step, s.NonFinite)
	}
	if s.MeanSpeed != 3 || s.MaxSpeed != 5 {
		t.Errorf("mean/max = %f/%f, want 3/5", s.MeanSpeed, s.MaxSpeed)
	}
	if math.Abs(s.KineticEnergy-6.5) > 1e-9 {
		t.Errorf("kinetic energy = %f, want 6.5", s.KineticEnergy)
	}
	// sample stddev of {5, 1}
	if math.Abs(s.SpeedStdDev-math.Sqrt(8)) > 1e-9 {
		t.Errorf("stddev = %f", s.SpeedStdDev)
	}

	if empty := Summarize(0, nil); empty.MaxSpeed != 0 || empty.NonFinite != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestSpeedMetrics(t *testing.T) {
	mean, peak := NewMeanSpeed(), NewMaxSpeed()
	for i, v := range []float32{2, 6} {
		ps := particles(dynamo.Vec2{X: v})
		mean.Observe(ps, i)
		peak.Observe(ps, i)
	}
	if mean.Value() != 4 || peak.Value() != 6 {
		t.Errorf("mean/max = %f/%f", mean.Value(), peak.Value())
	}
}

func TestDefaults(t *testing.T) {
	names := make(map[string]bool)
	for _, m := range Defaults(dynamo.DefaultConfig()) {
		if names[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		names[m.Name()] = true
	}
	if !names["kinetic_energy"] || !names["stability"] {
		t.Errorf("missing metrics: %v", names)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(3)
	for _, ms := range []int{100, 1, 2, 3} {
		pc.Record(PerfSample{
			StepDuration: time.Duration(ms) * time.Millisecond,
			Phases:       map[string]time.Duration{"forces": time.Duration(ms) * time.Millisecond / 2},
		})
	}

	stats := pc.Stats()
	if pc.Count() != 3 {
		t.Fatalf("count = %d", pc.Count())
	}
	if stats.AvgStepDuration != 2*time.Millisecond {
		t.Errorf("avg = %v, want 2ms", stats.AvgStepDuration)
	}
	if stats.MinStepDuration != time.Millisecond || stats.MaxStepDuration != 3*time.Millisecond {
		t.Errorf("min/max = %v/%v", stats.MinStepDuration, stats.MaxStepDuration)
	}
	if math.Abs(stats.PhasePct["forces"]-50) > 1e-6 {
		t.Errorf("forces pct = %f", stats.PhasePct["forces"])
	}
	if math.Abs(stats.StepsPerSecond-500) > 1e-6 {
		t.Errorf("steps/sec = %f", stats.StepsPerSecond)
	}

	row := stats.ToCSV(4, "cpu")
	if row.AvgStepUS != 2000 || row.ForcesPct != stats.PhasePct["forces"] {
		t.Errorf("csv row = %+v", row)
	}
}

func TestPerfCollector_Timing(t *testing.T) {
	pc := NewPerfCollector(0)
	pc.StartStep()
	time.Sleep(time.Millisecond)
	if d := pc.EndStep(nil); d < time.Millisecond {
		t.Errorf("step duration = %v", d)
	}
	if pc.Stats().StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
}

func TestPerfCollector_Empty(t *testing.T) {
	stats := NewPerfCollector(5).Stats()
	if stats.AvgStepDuration != 0 || stats.PhaseAvg == nil {
		t.Errorf("empty stats = %+v", stats)
	}
}
