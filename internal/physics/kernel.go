package physics

import (
	"math"

	"github.com/san-kum/partlife/internal/dynamo"
)

// MinDistance is the separation below which a pair is skipped.
const MinDistance = 1e-4

// PairForce returns the force a particle receives from a neighbour at
// displacement delta (neighbour minus particle). ok is false when the pair
// does not interact.
func PairForce(delta dynamo.Vec2, minR, maxR, strength, repel float32) (f dynamo.Vec2, ok bool) {
	distSq := delta.LenSq()
	if distSq > maxR*maxR {
		return dynamo.Vec2{}, false
	}

	dist := float32(math.Sqrt(float64(distSq)))
	if dist < MinDistance {
		return dynamo.Vec2{}, false
	}

	dir := delta.Scale(1 / dist)
	if dist < minR {
		return dir.Scale(-repel * (minR - dist) / minR), true
	}

	span := maxR - minR
	if span < MinDistance {
		return dynamo.Vec2{}, false
	}
	t := (dist - minR) / span
	return dir.Scale(strength * (1 - t)), true
}

// DensityScale returns the force multiplier for a particle whose bin holds
// count particles. A non-positive cap disables scaling.
func DensityScale(count int, maxBinDensity float32) float32 {
	if maxBinDensity <= 0 || float32(count) <= maxBinDensity {
		return 1
	}
	return maxBinDensity / float32(count)
}

// Advance integrates one particle: friction, force, speed clamp, move,
// boundary.
func Advance(p dynamo.Particle, force dynamo.Vec2, cfg *dynamo.Config, dt float32) dynamo.Particle {
	p = ApplyForce(p, force, cfg.Friction, dt)
	return Move(p, cfg, dt)
}

// ApplyForce damps velocity by friction and adds force*dt.
func ApplyForce(p dynamo.Particle, force dynamo.Vec2, friction, dt float32) dynamo.Particle {
	keep := 1 - friction
	p.VX = p.VX*keep + force.X*dt
	p.VY = p.VY*keep + force.Y*dt
	return p
}

// Move clamps speed to MaxVelocity, moves by v*dt and applies the boundary.
func Move(p dynamo.Particle, cfg *dynamo.Config, dt float32) dynamo.Particle {
	speedSq := p.VX*p.VX + p.VY*p.VY
	if speedSq > cfg.MaxVelocity*cfg.MaxVelocity {
		scale := cfg.MaxVelocity / float32(math.Sqrt(float64(speedSq)))
		p.VX *= scale
		p.VY *= scale
	}

	p.X += p.VX * dt
	p.Y += p.VY * dt

	dynamo.ApplyBoundary(&p, cfg.Boundary, cfg.World, cfg.ParticleSize)
	return p
}
