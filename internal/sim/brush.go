package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/partlife/internal/dynamo"
)

// ApplyBrush returns ps edited by b. Distances use the wrapped delta when
// the boundary wraps. Added particles start at rest.
func ApplyBrush(ps []dynamo.Particle, b Brush, cfg dynamo.Config, rng *rand.Rand) ([]dynamo.Particle, error) {
	if b.Radius <= 0 {
		return nil, fmt.Errorf("%w: brush radius must be positive", dynamo.ErrInvalidConfig)
	}

	switch b.Mode {
	case BrushRemove:
		wrap := cfg.Boundary.Wraps()
		r2 := b.Radius * b.Radius
		out := ps[:0:0]
		for _, p := range ps {
			if dynamo.WrappedDelta(b.Center, p.Pos(), cfg.World, wrap).LenSq() > r2 {
				out = append(out, p)
			}
		}
		return out, nil

	case BrushAdd:
		if b.Type >= cfg.NumTypes {
			return nil, fmt.Errorf("%w: brush type %d, want < %d", dynamo.ErrInvalidConfig, b.Type, cfg.NumTypes)
		}
		out := make([]dynamo.Particle, len(ps), len(ps)+b.Count)
		copy(out, ps)
		for i := 0; i < b.Count; i++ {
			sin, cos := dynamo.FastSinCos(rng.Float32() * 2 * math.Pi)
			rr := b.Radius * float32(math.Sqrt(rng.Float64()))
			pos := dynamo.NormalizePosition(dynamo.Vec2{X: b.Center.X + rr*cos, Y: b.Center.Y + rr*sin}, cfg.Boundary, cfg.World)
			out = append(out, dynamo.Particle{X: pos.X, Y: pos.Y, Type: b.Type})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown brush mode %s", dynamo.ErrInvalidConfig, b.Mode)
	}
}
