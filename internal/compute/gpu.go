package compute

import (
	"context"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/gpu"
)

// GPUBackend drives a gpu.Pipeline on any device.
type GPUBackend struct {
	name string
	dev  gpu.Device
	opts gpu.Options
	pipe *gpu.Pipeline
	err  error
}

// NewGPUBackend wraps dev. The backend owns the device and releases it
// in Cleanup.
func NewGPUBackend(name string, dev gpu.Device, opts gpu.Options) *GPUBackend {
	return &GPUBackend{name: name, dev: dev, opts: opts}
}

// NewSoftGPUBackend runs the pipeline on the software device.
func NewSoftGPUBackend(opts gpu.Options) *GPUBackend {
	name := "gpu"
	if opts.HalfVelocity {
		name = "gpu-half"
	}
	return NewGPUBackend(name, gpu.NewSoftDevice(gpu.SoftOptions{}), opts)
}

// NewOpenGLBackend runs the pipeline on the OpenGL device. When no device
// can be created the backend reports unavailable.
func NewOpenGLBackend(opts gpu.Options) *GPUBackend {
	dev, err := gpu.NewOpenGLDevice(false)
	b := &GPUBackend{name: "opengl", dev: dev, opts: opts, err: err}
	return b
}

func (g *GPUBackend) Name() string {
	if g.err != nil {
		return g.name + " (not available)"
	}
	return g.name
}

func (g *GPUBackend) Available() bool { return g.err == nil && g.dev != nil }

// Pipeline exposes the underlying pipeline, nil before Load.
func (g *GPUBackend) Pipeline() *gpu.Pipeline { return g.pipe }

func (g *GPUBackend) Load(cfg dynamo.Config, ps []dynamo.Particle, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error {
	if !g.Available() {
		return g.unavailable()
	}
	if err := cfg.ValidateWith(rules, radii); err != nil {
		return err
	}
	pipe, err := gpu.NewPipeline(g.dev, cfg, g.opts)
	if err != nil {
		return err
	}
	if err := pipe.SetRules(rules, radii); err != nil {
		pipe.Release()
		return err
	}
	if err := pipe.SyncParticles(ps); err != nil {
		pipe.Release()
		return err
	}
	if g.pipe != nil {
		g.pipe.Release()
	}
	g.pipe = pipe
	return nil
}

func (g *GPUBackend) unavailable() error {
	if g.err != nil {
		return g.err
	}
	return dynamo.ErrUnavailable
}

func (g *GPUBackend) SetConfig(cfg dynamo.Config) error {
	if g.pipe == nil {
		return dynamo.ErrEmptyStore
	}
	return g.pipe.SetConfig(cfg)
}

func (g *GPUBackend) SetRules(rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error {
	if g.pipe == nil {
		return dynamo.ErrEmptyStore
	}
	return g.pipe.SetRules(rules, radii)
}

func (g *GPUBackend) SetParticles(ps []dynamo.Particle) error {
	if g.pipe == nil {
		return dynamo.ErrEmptyStore
	}
	return g.pipe.SyncParticles(ps)
}

func (g *GPUBackend) Step(ctx context.Context, dt float32) error {
	if g.pipe == nil {
		return dynamo.ErrEmptyStore
	}
	return g.pipe.Step(ctx, dt)
}

func (g *GPUBackend) Particles(ctx context.Context) ([]dynamo.Particle, error) {
	if g.pipe == nil {
		return nil, dynamo.ErrEmptyStore
	}
	return g.pipe.ReadParticles(ctx)
}

func (g *GPUBackend) BinCounts(ctx context.Context) ([]uint32, error) {
	if g.pipe == nil {
		return nil, dynamo.ErrEmptyStore
	}
	return g.pipe.ReadBinCounts(ctx)
}

func (g *GPUBackend) BudgetHits(ctx context.Context) (uint64, error) {
	if g.pipe == nil {
		return 0, dynamo.ErrEmptyStore
	}
	return g.pipe.ReadBudgetHits(ctx)
}

func (g *GPUBackend) PhaseTimings() gpu.PhaseTimings {
	if g.pipe == nil {
		return nil
	}
	return g.pipe.PhaseTimings()
}

func (g *GPUBackend) Cleanup() {
	if g.pipe != nil {
		g.pipe.Release()
		g.pipe = nil
	}
	if g.dev != nil {
		g.dev.Release()
	}
}
