package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/generate"
	"github.com/san-kum/partlife/internal/sim"
)

// Scenario is the fully generated initial state of a run.
type Scenario struct {
	Config    dynamo.Config
	Particles []dynamo.Particle
	Rules     *dynamo.InteractionMatrix
	Radii     *dynamo.RadiusMatrix
}

// BuildScenario generates particles and matrices from cfg. The same
// config and seed always produce the same scenario.
func BuildScenario(cfg *config.Config, seed int64) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	simCfg := cfg.Simulation
	n := int(simCfg.NumTypes)

	rules, err := buildRules(cfg, rng, n)
	if err != nil {
		return nil, err
	}
	radii := buildRadii(cfg, rng, n)
	if cfg.Rules.Rebalance {
		scale := generate.RebalanceRadii(radii, int(simCfg.NumParticles), simCfg.World)
		slog.Debug("radii rebalanced", "scale", scale, "max_radius", radii.MaxInteractionRadius())
	}
	if cell := radii.MaxInteractionRadius(); simCfg.CellSize < cell {
		simCfg.CellSize = cell
	}

	ps, err := generate.Spawn(cfg.Spawn.Pattern, rng, int(simCfg.NumParticles), n, simCfg.World)
	if err != nil {
		return nil, err
	}
	for i := range ps {
		pos := dynamo.NormalizePosition(ps[i].Pos(), simCfg.Boundary, simCfg.World)
		ps[i].X, ps[i].Y = pos.X, pos.Y
	}

	sc := &Scenario{Config: simCfg, Particles: ps, Rules: rules, Radii: radii}
	if err := simCfg.ValidateWith(rules, radii); err != nil {
		return nil, err
	}
	return sc, nil
}

// Backend creates the named backend and loads the scenario into it under
// cfg. ps replaces the scenario particles when non-nil; either way the
// backend gets its own copy.
func (sc *Scenario) Backend(name string, cfg dynamo.Config, ps []dynamo.Particle) (compute.Backend, error) {
	if ps == nil {
		ps = sc.Particles
	}
	own := make([]dynamo.Particle, len(ps))
	copy(own, ps)
	cfg.NumParticles = uint32(len(own))

	b, err := compute.New(name)
	if err != nil {
		return nil, err
	}
	if err := b.Load(cfg, own, sc.Rules, sc.Radii); err != nil {
		b.Cleanup()
		return nil, fmt.Errorf("load %s: %w", b.Name(), err)
	}
	return b, nil
}

func buildRules(cfg *config.Config, rng *rand.Rand, n int) (*dynamo.InteractionMatrix, error) {
	if cfg.Rules.Matrix != nil {
		m := dynamo.NewInteractionMatrix(n)
		copy(m.Data, cfg.Rules.Matrix)
		if cfg.Rules.Symmetrize {
			m.Symmetrize()
		}
		return m, nil
	}
	m, err := generate.Rules(cfg.Rules.Type, rng, n)
	if err != nil {
		return nil, err
	}
	if cfg.Rules.Symmetrize {
		m.Symmetrize()
	}
	return m, nil
}

func buildRadii(cfg *config.Config, rng *rand.Rand, n int) *dynamo.RadiusMatrix {
	if cfg.Rules.MinRadii != nil {
		r := dynamo.NewRadiusMatrix(n, 0, 0)
		copy(r.Min, cfg.Rules.MinRadii)
		copy(r.Max, cfg.Rules.MaxRadii)
		return r
	}
	if cfg.Rules.RadiusSpread > 0 {
		return generate.RandomRadii(rng, n, cfg.Rules.MinRadius, cfg.Rules.MaxRadius, cfg.Rules.RadiusSpread)
	}
	return dynamo.NewRadiusMatrix(n, cfg.Rules.MinRadius, cfg.Rules.MaxRadius)
}

// Experiment ties a config to a backend and runner.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
	scenario *Scenario
	runner   *sim.Runner
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg, registry: NewRegistry()}
}

// Setup generates the scenario for seed and loads it into the configured
// backend.
func (e *Experiment) Setup(ctx context.Context, seed int64) error {
	sc, err := BuildScenario(e.cfg, seed)
	if err != nil {
		return err
	}
	b, err := e.registry.GetBackend(e.cfg.Run.Backend)
	if err != nil {
		return err
	}
	if err := b.Load(sc.Config, sc.Particles, sc.Rules, sc.Radii); err != nil {
		b.Cleanup()
		return fmt.Errorf("load %s: %w", b.Name(), err)
	}

	r := sim.New(b, sc.Config, sc.Radii)
	r.SetSeed(seed)
	for _, m := range e.registry.DefaultMetrics(sc.Config) {
		r.AddMetric(m)
	}
	if e.cfg.Run.TuneEvery > 0 {
		r.SetTuner(analysis.NewTuner(sc.Config.MaxBinDensity))
	}

	if e.runner != nil {
		e.runner.Close()
	}
	e.scenario, e.runner = sc, r
	slog.Info("experiment ready",
		"backend", b.Name(),
		"particles", len(sc.Particles),
		"types", sc.Config.NumTypes,
		"spawn", e.cfg.Spawn.Pattern,
		"cell_size", sc.Config.CellSize,
		"seed", seed,
	)
	return nil
}

func (e *Experiment) RunConfig() sim.Config {
	return sim.Config{
		Steps:       e.cfg.Run.Steps,
		Dt:          e.cfg.Run.Dt,
		SampleEvery: e.cfg.Run.SampleEvery,
		TuneEvery:   e.cfg.Run.TuneEvery,
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.runner.Run(ctx, e.RunConfig())
}

// GetRunner returns the underlying runner for adding observers.
func (e *Experiment) GetRunner() *sim.Runner { return e.runner }

func (e *Experiment) Scenario() *Scenario { return e.scenario }

func (e *Experiment) Close() {
	if e.runner != nil {
		e.runner.Close()
		e.runner = nil
	}
}

// Factory adapts the experiment config for sim.Ensemble: each seed gets
// its own scenario and backend.
func Factory(cfg *config.Config) sim.Factory {
	return func(ctx context.Context, seed int64) (*sim.Runner, error) {
		exp := New(cfg)
		if err := exp.Setup(ctx, seed); err != nil {
			return nil, err
		}
		return exp.GetRunner(), nil
	}
}
