package dynamo

import (
	"fmt"
	"math"
	"strings"
)

// BoundaryMode is the world edge policy. The set is closed: every switch
// over it is exhaustive.
type BoundaryMode uint32

const (
	Repel BoundaryMode = iota
	Wrap
	MirrorWrap
	InfiniteWrap
)

// RepelDamping scales the reflected velocity at a Repel wall.
const RepelDamping = 0.5

var boundaryNames = [...]string{
	Repel:        "repel",
	Wrap:         "wrap",
	MirrorWrap:   "mirror_wrap",
	InfiniteWrap: "infinite_wrap",
}

// BoundaryModes lists all modes in declaration order.
func BoundaryModes() []BoundaryMode {
	return []BoundaryMode{Repel, Wrap, MirrorWrap, InfiniteWrap}
}

func (m BoundaryMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("BoundaryMode(%d)", uint32(m))
	}
	return boundaryNames[m]
}

func (m BoundaryMode) Valid() bool {
	return m <= InfiniteWrap
}

// Wraps reports whether positions wrap toroidally. The three wrap modes
// differ only in how a renderer draws copies.
func (m BoundaryMode) Wraps() bool {
	switch m {
	case Repel:
		return false
	case Wrap, MirrorWrap, InfiniteWrap:
		return true
	default:
		panic(fmt.Sprintf("dynamo: unknown boundary mode %d", uint32(m)))
	}
}

func ParseBoundaryMode(s string) (BoundaryMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	for i, name := range boundaryNames {
		if name == key {
			return BoundaryMode(i), nil
		}
	}
	return Repel, fmt.Errorf("%w: unknown boundary mode %q", ErrInvalidConfig, s)
}

func (m BoundaryMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unknown boundary mode %d", ErrInvalidConfig, uint32(m))
	}
	return []byte(boundaryNames[m]), nil
}

func (m *BoundaryMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBoundaryMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// WrappedDelta returns the displacement from -> to. With wrap set, each
// axis is shifted by one world length when the naive delta exceeds half
// the world, giving the shortest vector on the torus.
func WrappedDelta(from, to, world Vec2, wrap bool) Vec2 {
	d := to.Sub(from)
	if !wrap {
		return d
	}

	if d.X > world.X*0.5 {
		d.X -= world.X
	} else if d.X < -world.X*0.5 {
		d.X += world.X
	}

	if d.Y > world.Y*0.5 {
		d.Y -= world.Y
	} else if d.Y < -world.Y*0.5 {
		d.Y += world.Y
	}

	return d
}

// ApplyBoundary constrains p to the world according to mode.
func ApplyBoundary(p *Particle, mode BoundaryMode, world Vec2, particleSize float32) {
	switch mode {
	case Repel:
		margin := particleSize * 2
		if p.X < margin {
			p.X = margin
			p.VX = abs32(p.VX) * RepelDamping
		}
		if p.X > world.X-margin {
			p.X = world.X - margin
			p.VX = -abs32(p.VX) * RepelDamping
		}
		if p.Y < margin {
			p.Y = margin
			p.VY = abs32(p.VY) * RepelDamping
		}
		if p.Y > world.Y-margin {
			p.Y = world.Y - margin
			p.VY = -abs32(p.VY) * RepelDamping
		}
	case Wrap, MirrorWrap, InfiniteWrap:
		p.X = RemEuclid(p.X, world.X)
		p.Y = RemEuclid(p.Y, world.Y)
	default:
		panic(fmt.Sprintf("dynamo: unknown boundary mode %d", uint32(mode)))
	}
}

// NormalizePosition snaps an externally supplied position into the world:
// clamped for Repel, wrapped otherwise.
func NormalizePosition(pos Vec2, mode BoundaryMode, world Vec2) Vec2 {
	if mode.Wraps() {
		return Vec2{RemEuclid(pos.X, world.X), RemEuclid(pos.Y, world.Y)}
	}
	return Vec2{clamp32(pos.X, 0, world.X), clamp32(pos.Y, 0, world.Y)}
}

// RemEuclid returns the non-negative remainder of a / b, always in [0, b).
func RemEuclid(a, b float32) float32 {
	if a >= 0 && a < b {
		return a
	}
	r := float32(math.Mod(float64(a), float64(b)))
	if r < 0 {
		r += b
	}
	// float32 rounding of tiny negatives can land exactly on b
	if r >= b {
		r = 0
	}
	return r
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
