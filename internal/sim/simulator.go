package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/metrics"
)

const defaultPerfWindow = 60

// Runner steps a loaded backend, sampling metrics and applying queued
// brush edits between steps.
type Runner struct {
	backend   compute.Backend
	cfg       dynamo.Config
	maxRadius float32
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	tuner     *analysis.Tuner
	perf      *metrics.PerfCollector
	rng       *rand.Rand
	steps     int
	lastStep  time.Duration

	mu      sync.Mutex
	pending []Brush
}

// New wraps a backend that has already been loaded with cfg and radii.
func New(backend compute.Backend, cfg dynamo.Config, radii *dynamo.RadiusMatrix) *Runner {
	return &Runner{
		backend:   backend,
		cfg:       cfg,
		maxRadius: radii.MaxInteractionRadius(),
		perf:      metrics.NewPerfCollector(defaultPerfWindow),
		rng:       rand.New(rand.NewSource(1)),
	}
}

func (r *Runner) AddMetric(m dynamo.Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o dynamo.Observer) { r.observers = append(r.observers, o) }
func (r *Runner) SetTuner(t *analysis.Tuner)    { r.tuner = t }
func (r *Runner) SetSeed(seed int64)            { r.rng = rand.New(rand.NewSource(seed)) }

func (r *Runner) Backend() compute.Backend     { return r.backend }
func (r *Runner) Config() dynamo.Config        { return r.cfg }
func (r *Runner) Steps() int                   { return r.steps }
func (r *Runner) Perf() *metrics.PerfCollector { return r.perf }

// SetConfig pushes scalar parameter changes to the backend.
func (r *Runner) SetConfig(cfg dynamo.Config) error {
	cfg.NumParticles = r.cfg.NumParticles
	cfg.NumTypes = r.cfg.NumTypes
	if err := r.backend.SetConfig(cfg); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Close releases the backend.
func (r *Runner) Close() { r.backend.Cleanup() }

// Brush queues an edit for the next step. Safe to call from another
// goroutine.
func (r *Runner) Brush(b Brush) {
	r.mu.Lock()
	r.pending = append(r.pending, b)
	r.mu.Unlock()
}

func (r *Runner) takeBrushes() []Brush {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

func (r *Runner) applyBrushes(ctx context.Context) error {
	edits := r.takeBrushes()
	if len(edits) == 0 {
		return nil
	}
	ps, err := r.backend.Particles(ctx)
	if err != nil {
		return err
	}
	for _, b := range edits {
		if ps, err = ApplyBrush(ps, b, r.cfg, r.rng); err != nil {
			return err
		}
	}
	if len(ps) == 0 {
		return fmt.Errorf("%w: brush removed every particle", dynamo.ErrEmptyStore)
	}
	if err := r.backend.SetParticles(ps); err != nil {
		return err
	}
	r.cfg.NumParticles = uint32(len(ps))
	slog.Debug("brush applied", "edits", len(edits), "particles", len(ps))
	return nil
}

// Step applies pending brush edits and advances one step.
func (r *Runner) Step(ctx context.Context, dt float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.applyBrushes(ctx); err != nil {
		return err
	}

	r.perf.StartStep()
	if err := r.backend.Step(ctx, dt); err != nil {
		return err
	}
	var phases map[string]time.Duration
	if pt, ok := r.backend.(compute.PhaseTimer); ok {
		timings := pt.PhaseTimings()
		phases = make(map[string]time.Duration, len(timings))
		for p, d := range timings {
			phases[p.String()] = d
		}
	}
	r.lastStep = r.perf.EndStep(phases)
	r.steps++
	return nil
}

// Sample reads the current state, feeds metrics and observers, and
// returns the summary row.
func (r *Runner) Sample(ctx context.Context) (metrics.Sample, error) {
	ps, err := r.backend.Particles(ctx)
	if err != nil {
		return metrics.Sample{}, err
	}
	s := metrics.Summarize(r.steps, ps)
	if s.BudgetHits, err = r.backend.BudgetHits(ctx); err != nil {
		return s, err
	}
	s.StepMicros = r.lastStep.Microseconds()

	for _, m := range r.metrics {
		m.Observe(ps, r.steps)
	}
	for _, o := range r.observers {
		o.OnStep(r.steps, ps)
	}
	return s, nil
}

func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, m := range r.metrics {
		m.Reset()
	}

	result := &Result{
		Backend: r.backend.Name(),
		Samples: make([]metrics.Sample, 0, sampleCapacity(cfg)),
		Metrics: make(map[string]float64),
	}
	start := time.Now()
	first := r.steps

	s, err := r.Sample(ctx)
	if err != nil {
		return nil, err
	}
	result.Samples = append(result.Samples, s)

	for i := 1; i <= cfg.Steps; i++ {
		if err := r.Step(ctx, cfg.Dt); err != nil {
			result.StepsTaken = r.steps - first
			return result, err
		}

		if r.tuner != nil && cfg.TuneEvery > 0 && i%cfg.TuneEvery == 0 {
			if _, err := r.tuner.Tune(ctx, r.backend, &r.cfg, r.maxRadius); err != nil {
				slog.Warn("cell size tuning failed", "step", r.steps, "err", err)
			}
		}

		if (cfg.SampleEvery > 0 && i%cfg.SampleEvery == 0) || i == cfg.Steps {
			s, err := r.Sample(ctx)
			if err != nil {
				result.StepsTaken = r.steps - first
				return result, err
			}
			result.Samples = append(result.Samples, s)
			if s.NonFinite > 0 {
				slog.Warn("non-finite particles", "step", r.steps, "count", s.NonFinite)
			}
		}

		if cfg.LogEvery > 0 && i%cfg.LogEvery == 0 {
			slog.Info("perf", "backend", result.Backend, "step", r.steps, "stats", r.perf.Stats())
		}
	}

	result.StepsTaken = r.steps - first
	result.Elapsed = time.Since(start)
	if result.Final, err = r.backend.Particles(ctx); err != nil {
		return result, err
	}
	if result.BudgetHits, err = r.backend.BudgetHits(ctx); err != nil {
		return result, err
	}
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Perf = r.perf.Stats()
	result.CellSize = r.cfg.CellSize
	return result, nil
}

func sampleCapacity(cfg Config) int {
	if cfg.SampleEvery <= 0 {
		return 2
	}
	return cfg.Steps/cfg.SampleEvery + 2
}
