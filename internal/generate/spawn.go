package generate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/aquilax/go-perlin"

	"github.com/san-kum/partlife/internal/dynamo"
)

// SpawnFunc places n particles of types [0, types) inside world.
type SpawnFunc func(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle

const tau = 2 * math.Pi

var spawnPatterns = map[string]SpawnFunc{
	"random":   SpawnRandom,
	"disk":     SpawnDisk,
	"ring":     SpawnRing,
	"spiral":   SpawnSpiral,
	"stripes":  SpawnStripes,
	"grid":     SpawnGrid,
	"clusters": SpawnClusters,
	"perlin":   SpawnPerlin,
}

// Spawn runs the named pattern.
func Spawn(pattern string, rng *rand.Rand, n, types int, world dynamo.Vec2) ([]dynamo.Particle, error) {
	fn, ok := spawnPatterns[pattern]
	if !ok {
		return nil, fmt.Errorf("unknown spawn pattern: %s", pattern)
	}
	if types < 1 {
		return nil, fmt.Errorf("%w: spawn needs at least one type", dynamo.ErrInvalidConfig)
	}
	return fn(rng, n, types, world), nil
}

func SpawnPatterns() []string {
	names := make([]string, 0, len(spawnPatterns))
	for name := range spawnPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func place(ps []dynamo.Particle, x, y float32, t int) []dynamo.Particle {
	return append(ps, dynamo.Particle{X: x, Y: y, Type: uint32(t)})
}

func minDim(world dynamo.Vec2) float32 {
	return float32(math.Min(float64(world.X), float64(world.Y)))
}

func SpawnRandom(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		ps = place(ps, rng.Float32()*world.X, rng.Float32()*world.Y, i%types)
	}
	return ps
}

// SpawnDisk fills a centred disk uniformly by area.
func SpawnDisk(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	cx, cy := world.X/2, world.Y/2
	r := 0.46 * minDim(world)

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		sin, cos := dynamo.FastSinCos(rng.Float32() * tau)
		rr := r * float32(math.Sqrt(rng.Float64()))
		ps = place(ps, cx+rr*cos, cy+rr*sin, i%types)
	}
	return ps
}

// SpawnRing spreads particles evenly around a thick ring.
func SpawnRing(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	cx, cy := world.X/2, world.Y/2
	r := 0.46 * minDim(world)
	thick := r * 0.2
	rot := rng.Float32() * tau
	dth := float32(tau) / float32(max(n, 1))

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		sin, cos := dynamo.FastSinCos(rot + float32(i)*dth)
		rr := r - rng.Float32()*thick
		ps = place(ps, cx+rr*cos, cy+rr*sin, i%types)
	}
	return ps
}

func SpawnSpiral(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	cx, cy := world.X/2, world.Y/2
	r := 0.46 * minDim(world)
	thick := 0.0175 * minDim(world)
	turns := 1.2 + rng.Float32()*2.4
	rot := rng.Float32() * tau
	last := float32(max(n-1, 1))

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		u := float32(i) / last
		sin, cos := dynamo.FastSinCos(rot + u*turns*tau)
		rr := u*r + (rng.Float32()-0.5)*2*thick
		if rr < 0 {
			rr = 0
		}
		ps = place(ps, cx+rr*cos, cy+rr*sin, i%types)
	}
	return ps
}

// SpawnStripes gives each type its own band, vertical or horizontal at
// random.
func SpawnStripes(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	vertical := rng.Intn(2) == 0
	per, rem := n/types, n%types

	ps := make([]dynamo.Particle, 0, n)
	for t := 0; t < types; t++ {
		count := per
		if t < rem {
			count++
		}
		for i := 0; i < count; i++ {
			if vertical {
				seg := world.X / float32(types)
				ps = place(ps, float32(t)*seg+rng.Float32()*seg, rng.Float32()*world.Y, t)
			} else {
				seg := world.Y / float32(types)
				ps = place(ps, rng.Float32()*world.X, float32(t)*seg+rng.Float32()*seg, t)
			}
		}
	}
	return ps
}

// SpawnGrid places particles at cell centres of a near-square lattice.
func SpawnGrid(_ *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	rows := (n + cols - 1) / cols
	dx := world.X / float32(cols)
	dy := world.Y / float32(max(rows, 1))

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		r, c := i/cols, i%cols
		ps = place(ps, (float32(c)+0.5)*dx, (float32(r)+0.5)*dy, i%types)
	}
	return ps
}

// SpawnClusters draws one gaussian blob per type.
func SpawnClusters(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	sigma := 0.06 * minDim(world)
	margin := 3 * sigma
	centers := make([]dynamo.Vec2, types)
	for t := range centers {
		centers[t] = dynamo.Vec2{
			X: margin + rng.Float32()*(world.X-2*margin),
			Y: margin + rng.Float32()*(world.Y-2*margin),
		}
	}

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		t := i % types
		x := centers[t].X + float32(rng.NormFloat64())*sigma
		y := centers[t].Y + float32(rng.NormFloat64())*sigma
		pos := dynamo.NormalizePosition(dynamo.Vec2{X: x, Y: y}, dynamo.Repel, world)
		ps = place(ps, pos.X, pos.Y, t)
	}
	return ps
}

const (
	perlinScale     = 0.004
	perlinThreshold = 0.0
	perlinBand      = 0.5
	perlinMaxTries  = 64
)

// SpawnPerlin keeps positions where 2-D Perlin noise is above zero and
// assigns types by noise level, producing organic patches.
func SpawnPerlin(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	noise := perlin.NewPerlin(2, 2, 3, rng.Int63())

	ps := make([]dynamo.Particle, 0, n)
	for i := 0; i < n; i++ {
		var x, y float32
		var v float64
		for try := 0; try < perlinMaxTries; try++ {
			x, y = rng.Float32()*world.X, rng.Float32()*world.Y
			v = noise.Noise2D(float64(x)*perlinScale, float64(y)*perlinScale)
			if v > perlinThreshold {
				break
			}
		}
		t := int(v / perlinBand * float64(types))
		if t < 0 {
			t = 0
		} else if t >= types {
			t = types - 1
		}
		ps = place(ps, x, y, t)
	}
	return ps
}
