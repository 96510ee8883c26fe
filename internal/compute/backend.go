package compute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/gpu"
)

// Backend advances a particle system.
type Backend interface {
	Name() string
	Available() bool
	// Load validates and installs a complete simulation state.
	Load(cfg dynamo.Config, ps []dynamo.Particle, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error
	SetConfig(cfg dynamo.Config) error
	SetRules(rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error
	// SetParticles replaces the particle set, keeping config and rules.
	SetParticles(ps []dynamo.Particle) error
	Step(ctx context.Context, dt float32) error
	Particles(ctx context.Context) ([]dynamo.Particle, error)
	BinCounts(ctx context.Context) ([]uint32, error)
	BudgetHits(ctx context.Context) (uint64, error)
	Cleanup()
}

// PhaseTimer is implemented by backends that report per-phase device time.
type PhaseTimer interface {
	PhaseTimings() gpu.PhaseTimings
}

// Names lists the accepted backend names.
func Names() []string { return []string{"cpu", "gpu", "gpu-half", "opengl", "auto"} }

// New returns the named backend. It fails with dynamo.ErrUnavailable when
// the backend cannot run here.
func New(name string) (Backend, error) {
	switch name {
	case "cpu":
		return NewCPUBackend(), nil
	case "gpu":
		return NewSoftGPUBackend(gpu.Options{}), nil
	case "gpu-half":
		return NewSoftGPUBackend(gpu.Options{HalfVelocity: true}), nil
	case "opengl":
		b := NewOpenGLBackend(gpu.Options{})
		if !b.Available() {
			return nil, fmt.Errorf("%w: %s", dynamo.ErrUnavailable, b.Name())
		}
		return b, nil
	case "auto", "":
		return AutoSelectBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want one of %v)", name, Names())
	}
}

func AutoSelectBackend() Backend {
	gl := NewOpenGLBackend(gpu.Options{})
	if gl.Available() {
		return gl
	}
	slog.Debug("opengl unavailable, using cpu backend", "reason", gl.Name())
	return NewCPUBackend()
}
