package compute

import (
	"context"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/physics"
	"github.com/san-kum/partlife/internal/spatial"
)

type CPUBackend struct {
	engine *physics.Engine
	store  *dynamo.Store
	cfg    dynamo.Config
	rules  *dynamo.InteractionMatrix
	radii  *dynamo.RadiusMatrix
	steps  int
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{engine: physics.NewEngine()}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}

// Engine exposes the underlying engine for diagnostics.
func (c *CPUBackend) Engine() *physics.Engine { return c.engine }

func (c *CPUBackend) Load(cfg dynamo.Config, ps []dynamo.Particle, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error {
	if err := cfg.ValidateWith(rules, radii); err != nil {
		return err
	}
	if err := dynamo.ValidateParticles(ps, cfg.NumTypes); err != nil {
		return err
	}
	c.cfg = cfg
	c.rules, c.radii = rules.Clone(), radii.Clone()
	c.store = dynamo.NewStore(ps)
	c.steps = 0
	return nil
}

func (c *CPUBackend) SetConfig(cfg dynamo.Config) error {
	if err := cfg.ValidateWith(c.rules, c.radii); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *CPUBackend) SetRules(rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error {
	if err := c.cfg.ValidateWith(rules, radii); err != nil {
		return err
	}
	c.rules, c.radii = rules.Clone(), radii.Clone()
	return nil
}

func (c *CPUBackend) SetParticles(ps []dynamo.Particle) error {
	if err := dynamo.ValidateParticles(ps, c.cfg.NumTypes); err != nil {
		return err
	}
	if c.store == nil {
		c.store = dynamo.NewStore(ps)
		return nil
	}
	c.store.Replace(ps)
	return nil
}

func (c *CPUBackend) Step(ctx context.Context, dt float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.store == nil {
		return dynamo.ErrEmptyStore
	}
	if c.rules == nil {
		return dynamo.ErrNoRules
	}
	if err := c.engine.Step(c.store, c.rules, c.radii, &c.cfg, dt); err != nil {
		return &dynamo.SimulationError{Step: c.steps, Phase: c.engine.LastMethod().String(), Wrapped: err}
	}
	c.steps++
	return nil
}

func (c *CPUBackend) Particles(ctx context.Context) ([]dynamo.Particle, error) {
	if c.store == nil {
		return nil, dynamo.ErrEmptyStore
	}
	return c.store.Snapshot(), nil
}

// BinCounts bins the current state on the grid the engine would use.
func (c *CPUBackend) BinCounts(ctx context.Context) ([]uint32, error) {
	if c.store == nil {
		return nil, dynamo.ErrEmptyStore
	}
	if c.radii == nil {
		return nil, dynamo.ErrNoRules
	}
	h := spatial.Build(c.store.Current(), physics.CellSize(&c.cfg, c.radii), c.cfg.World)
	counts := make([]uint32, h.NumCells())
	for i := range counts {
		counts[i] = uint32(len(h.Cell(i)))
	}
	return counts, nil
}

func (c *CPUBackend) BudgetHits(ctx context.Context) (uint64, error) {
	return c.engine.BudgetHits(), nil
}
