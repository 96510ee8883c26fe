package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/dynamo"
)

// Perturb returns a copy of ps with particle i shifted by d0 along x.
func Perturb(ps []dynamo.Particle, i int, d0 float32, cfg dynamo.Config) []dynamo.Particle {
	out := make([]dynamo.Particle, len(ps))
	copy(out, ps)
	if i >= 0 && i < len(out) {
		pos := dynamo.NormalizePosition(dynamo.Vec2{X: out[i].X + d0, Y: out[i].Y}, cfg.Boundary, cfg.World)
		out[i].X, out[i].Y = pos.X, pos.Y
	}
	return out
}

// Separation is the phase-space distance between two snapshots of the
// same system, using the shortest wrapped displacement.
func Separation(a, b []dynamo.Particle, cfg dynamo.Config) float64 {
	wrap := cfg.Boundary.Wraps()
	var sum float64
	for i := range a {
		d := dynamo.WrappedDelta(a[i].Pos(), b[i].Pos(), cfg.World, wrap)
		dv := b[i].Vel().Sub(a[i].Vel())
		sum += float64(d.LenSq()) + float64(dv.LenSq())
	}
	return math.Sqrt(sum)
}

// LyapunovExponent estimates the largest Lyapunov exponent from two
// backends loaded with states d0 apart. After every step the perturbed
// run is pulled back to distance d0 along the current separation and
// re-uploaded. A positive value indicates chaos.
func LyapunovExponent(ctx context.Context, ref, pert compute.Backend, cfg dynamo.Config, steps int, dt float32, d0 float64) (float64, error) {
	if d0 <= 0 {
		return 0, fmt.Errorf("%w: perturbation must be positive", dynamo.ErrInvalidConfig)
	}

	sumLog := 0.0
	count := 0
	wrap := cfg.Boundary.Wraps()

	for i := 0; i < steps; i++ {
		if err := ref.Step(ctx, dt); err != nil {
			return 0, err
		}
		if err := pert.Step(ctx, dt); err != nil {
			return 0, err
		}
		a, err := ref.Particles(ctx)
		if err != nil {
			return 0, err
		}
		b, err := pert.Particles(ctx)
		if err != nil {
			return 0, err
		}
		if len(a) != len(b) {
			return 0, fmt.Errorf("%w: %d vs %d particles", dynamo.ErrDimensionMismatch, len(a), len(b))
		}

		sep := Separation(a, b, cfg)
		if sep == 0 || math.IsNaN(sep) || math.IsInf(sep, 0) {
			continue
		}
		sumLog += math.Log(sep / d0)
		count++

		scale := float32(d0 / sep)
		for j := range b {
			d := dynamo.WrappedDelta(a[j].Pos(), b[j].Pos(), cfg.World, wrap).Scale(scale)
			pos := dynamo.NormalizePosition(a[j].Pos().Add(d), cfg.Boundary, cfg.World)
			vel := a[j].Vel().Add(b[j].Vel().Sub(a[j].Vel()).Scale(scale))
			b[j] = dynamo.Particle{X: pos.X, Y: pos.Y, VX: vel.X, VY: vel.Y, Type: b[j].Type}
		}
		if err := pert.SetParticles(b); err != nil {
			return 0, err
		}
	}

	if count == 0 {
		return 0, nil
	}
	return sumLog / (float64(count) * float64(dt)), nil
}
