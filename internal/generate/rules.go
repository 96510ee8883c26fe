package generate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/san-kum/partlife/internal/dynamo"
)

// RuleFunc builds an n-type interaction matrix.
type RuleFunc func(rng *rand.Rand, n int) *dynamo.InteractionMatrix

var ruleTypes = map[string]RuleFunc{
	"random":              RandomRules,
	"symmetric":           SymmetricRules,
	"snake":               SnakeRules,
	"chains":              ChainRules,
	"chains_soft":         SoftChainRules,
	"chains_loose":        LooseChainRules,
	"swirl":               SwirlRules,
	"rock_paper_scissors": RockPaperScissorsRules,
	"anti_symmetric":      AntiSymmetricRules,
}

func Rules(name string, rng *rand.Rand, n int) (*dynamo.InteractionMatrix, error) {
	fn, ok := ruleTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule type: %s", name)
	}
	if n < 1 || n > dynamo.MaxTypes {
		return nil, fmt.Errorf("%w: num_types must be in [1, %d], got %d", dynamo.ErrInvalidConfig, dynamo.MaxTypes, n)
	}
	return fn(rng, n), nil
}

func RuleTypes() []string {
	names := make([]string, 0, len(ruleTypes))
	for name := range ruleTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RandomRules draws every entry uniformly from [-1, 1).
func RandomRules(rng *rand.Rand, n int) *dynamo.InteractionMatrix {
	m := dynamo.NewInteractionMatrix(n)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

func SymmetricRules(rng *rand.Rand, n int) *dynamo.InteractionMatrix {
	m := RandomRules(rng, n)
	m.Symmetrize()
	return m
}

// SnakeRules makes each type attract itself and weakly follow the next.
func SnakeRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	m := dynamo.NewInteractionMatrix(n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		if next := (i + 1) % n; next != i {
			m.Set(i, next, 0.2)
		}
	}
	return m
}

// ChainRules attracts self and both ring neighbours and repels the rest.
func ChainRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	return chain(n, 1, 1, -1)
}

// SoftChainRules weakens the neighbour pull of ChainRules.
func SoftChainRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	return chain(n, 1, 0.2, -1)
}

// LooseChainRules ignores non-neighbours instead of repelling them.
func LooseChainRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	return chain(n, 1, 0.2, 0)
}

func chain(n int, self, neighbor, other float32) *dynamo.InteractionMatrix {
	m := dynamo.NewInteractionMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := other
			switch {
			case j == i:
				v = self
			case j == (i+1)%n || j == (i+n-1)%n:
				v = neighbor
			}
			m.Set(i, j, v)
		}
	}
	return m
}

// RockPaperScissorsRules chases the next type and flees the previous one.
func RockPaperScissorsRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	const (
		prey     = 0.9
		predator = -0.7
		self     = -0.1
	)
	m := dynamo.NewInteractionMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var v float32
			switch {
			case j == i:
				v = self
			case j == (i+1)%n:
				v = prey
			case j == (i+n-1)%n:
				v = predator
			}
			m.Set(i, j, v)
		}
	}
	return m
}

// AntiSymmetricRules gives m[i][j] = -m[j][i], which drives rotation.
func AntiSymmetricRules(rng *rand.Rand, n int) *dynamo.InteractionMatrix {
	m := RandomRules(rng, n)
	m.AntiSymmetrize()
	return m
}

// SwirlRules is a deterministic anti-symmetric ring: each type chases the
// types less than half the ring ahead of it and is chased by the rest.
func SwirlRules(_ *rand.Rand, n int) *dynamo.InteractionMatrix {
	const (
		strength = 0.7
		self     = -0.05
	)
	m := dynamo.NewInteractionMatrix(n)
	for i := 0; i < n; i++ {
		m.Set(i, i, self)
		for j := i + 1; j < n; j++ {
			v := float32(strength)
			if (j-i+n)%n > n/2 {
				v = -strength
			}
			m.Set(i, j, v)
			m.Set(j, i, -v)
		}
	}
	return m
}

// Radius defaults.
const (
	DefaultMinRadius = 30
	DefaultMaxRadius = 80
)

// RandomRadii jitters the given radii per pair by up to ±spread (a
// fraction), keeping max above min.
func RandomRadii(rng *rand.Rand, n int, minR, maxR, spread float32) *dynamo.RadiusMatrix {
	r := dynamo.NewRadiusMatrix(n, minR, maxR)
	for i := range r.Min {
		lo := minR * (1 + (rng.Float32()*2-1)*spread)
		hi := maxR * (1 + (rng.Float32()*2-1)*spread)
		if hi < lo+0.5 {
			hi = lo + 0.5
		}
		r.Min[i], r.Max[i] = lo, hi
	}
	return r
}

// Density rebalance bounds.
const (
	TargetNeighbors = 350
	minRadiusScale  = 0.25
	maxRadiusScale  = 1.5
	minRadiusFloor  = 2
	minRadiusCeil   = 512
	maxRadiusCeil   = 1024
)

// RebalanceRadii scales r in place so a particle at the given density
// expects about TargetNeighbors neighbours within the largest radius. It
// returns the applied scale, 1 when nothing changed.
func RebalanceRadii(r *dynamo.RadiusMatrix, numParticles int, world dynamo.Vec2) float32 {
	area := float64(world.X) * float64(world.Y)
	if area <= 0 || numParticles == 0 {
		return 1
	}
	density := float64(numParticles) / area
	ref := float64(r.MaxInteractionRadius())
	current := density * math.Pi * ref * ref
	if current <= 0 {
		return 1
	}

	scale := float32(math.Sqrt(TargetNeighbors / current))
	scale = clamp(scale, minRadiusScale, maxRadiusScale)

	for i := range r.Min {
		r.Min[i] = clamp(r.Min[i]*scale, minRadiusFloor, minRadiusCeil)
		r.Max[i] = clamp(r.Max[i]*scale, r.Min[i]+0.5, maxRadiusCeil)
	}
	return scale
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
