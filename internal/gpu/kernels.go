package gpu

import (
	"math"
	"sync/atomic"

	"github.com/x448/float16"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/physics"
	"github.com/san-kum/partlife/internal/spatial"
)

func f32bits(f float32) uint32     { return math.Float32bits(f) }
func f32frombits(w uint32) float32 { return math.Float32frombits(w) }

// packHalf2 packs two floats as IEEE half precision, x in the low 16 bits.
func packHalf2(x, y float32) uint32 {
	return uint32(float16.Fromfloat32(x).Bits()) | uint32(float16.Fromfloat32(y).Bits())<<16
}

func unpackHalf2(w uint32) (float32, float32) {
	return float16.Frombits(uint16(w)).Float32(), float16.Frombits(uint16(w >> 16)).Float32()
}

func storeVel(vel []uint32, i int, vx, vy float32, half bool) {
	if half {
		vel[i] = packHalf2(vx, vy)
		return
	}
	vel[2*i] = f32bits(vx)
	vel[2*i+1] = f32bits(vy)
}

func loadVel(vel []uint32, i int, half bool) (float32, float32) {
	if half {
		return unpackHalf2(vel[i])
	}
	return f32frombits(vel[2*i]), f32frombits(vel[2*i+1])
}

// softKernel binds a kernel to its buffers and returns the per-invocation
// body. Invocations past the kernel's range must return immediately.
type softKernel func(b [][]uint32) func(i int)

var softKernels = [numKernels]softKernel{
	KernelClear:   clearKernel,
	KernelCount:   countKernel,
	KernelPrefix:  prefixKernel,
	KernelSort:    sortKernel,
	KernelForces:  forcesKernel,
	KernelAdvance: advanceKernel,
}

// clearKernel: [bins, spatial]
func clearKernel(b [][]uint32) func(int) {
	bins := b[0]
	n := int(decodeSpatialParams(b[1]).TotalBins) + 1
	return func(i int) {
		if i >= n {
			return
		}
		bins[i] = 0
	}
}

// countKernel: [pos, bins, spatial]
func countKernel(b [][]uint32) func(int) {
	pos, bins := b[0], b[1]
	sp := decodeSpatialParams(b[2])
	g, n := sp.grid(), int(sp.NumParticles)
	return func(i int) {
		if i >= n {
			return
		}
		o := i * posWords
		bin := g.BinOf(f32frombits(pos[o+posX]), f32frombits(pos[o+posY]))
		atomic.AddUint32(&bins[bin+1], 1)
	}
}

// prefixKernel: [src, dst, spatial, step]
func prefixKernel(b [][]uint32) func(int) {
	src, dst := b[0], b[1]
	n := int(decodeSpatialParams(b[2]).TotalBins) + 1
	step := int(b[3][0])
	return func(i int) {
		if i >= n {
			return
		}
		v := src[i]
		if i >= step {
			v += src[i-step]
		}
		dst[i] = v
	}
}

// sortKernel: [posIn, velIn, offsets, slots, posOut, velOut, spatial]
func sortKernel(b [][]uint32) func(int) {
	posIn, velIn, offsets, slots, posOut, velOut := b[0], b[1], b[2], b[3], b[4], b[5]
	sp := decodeSpatialParams(b[6])
	g, n := sp.grid(), int(sp.NumParticles)
	vw := len(velIn) / max(n, 1)
	return func(i int) {
		if i >= n {
			return
		}
		o := i * posWords
		bin := g.BinOf(f32frombits(posIn[o+posX]), f32frombits(posIn[o+posY]))
		slot := atomic.AddUint32(&slots[bin], 1) - 1
		d := int(offsets[bin] + slot)

		copy(posOut[d*posWords:(d+1)*posWords], posIn[o:o+posWords])
		copy(velOut[d*vw:(d+1)*vw], velIn[i*vw:(i+1)*vw])
	}
}

// forcesKernel: [pos, vel, offsets, interaction, minR, maxR, sim, spatial, stats]
//
// Reads the sorted layout, sums pair forces over the distinct bins of the
// 3x3 neighbourhood (widened past a partial edge bin under wrap) and applies friction and force to velocity in place.
func forcesKernel(b [][]uint32) func(int) {
	pos, vel, offsets := b[0], b[1], b[2]
	interaction, minR, maxR := b[3], b[4], b[5]
	sim := decodeSimParams(b[6])
	sp := decodeSpatialParams(b[7])
	stats := b[8]

	g, n := sp.grid(), int(sim.NumParticles)
	types := int(sim.NumTypes)
	half := sim.Flags&FlagHalfVelocity != 0
	world := dynamo.Vec2{X: sim.WorldW, Y: sim.WorldH}
	wrap := dynamo.BoundaryMode(sim.BoundaryMode) != dynamo.Repel
	budget := int(sim.NeighborBudget)
	partialX, partialY := g.PartialEdges(world)

	return func(i int) {
		if i >= n {
			return
		}
		o := i * posWords
		p := dynamo.Vec2{X: f32frombits(pos[o+posX]), Y: f32frombits(pos[o+posY])}
		ti := int(pos[o+posType])

		cx := spatial.CellCoord(p.X, g.CellSize, g.Width)
		cy := spatial.CellCoord(p.Y, g.CellSize, g.Height)
		own := cy*g.Width + cx

		var xbuf, ybuf [4]int
		xs := neighborAxis(&xbuf, cx, g.Width, wrap, partialX)
		ys := neighborAxis(&ybuf, cy, g.Height, wrap, partialY)

		var total dynamo.Vec2
		examined := 0
	scan:
		for _, y := range ys {
			for _, x := range xs {
				bin := y*g.Width + x
				for j := offsets[bin]; j < offsets[bin+1]; j++ {
					if int(j) == i {
						continue
					}
					if budget > 0 && examined == budget {
						atomic.AddUint32(&stats[statBudgetHits], 1)
						break scan
					}
					examined++

					q := int(j) * posWords
					other := dynamo.Vec2{X: f32frombits(pos[q+posX]), Y: f32frombits(pos[q+posY])}
					k := ti*types + int(pos[q+posType])
					delta := dynamo.WrappedDelta(p, other, world, wrap)
					if f, ok := physics.PairForce(delta,
						f32frombits(minR[k]), f32frombits(maxR[k]),
						f32frombits(interaction[k]), sim.RepelStrength); ok {
						total = total.Add(f)
					}
				}
			}
		}

		count := int(offsets[own+1] - offsets[own])
		total = total.Scale(physics.DensityScale(count, sim.MaxBinDensity) / sim.ForceFactor)

		vx, vy := loadVel(vel, i, half)
		pt := physics.ApplyForce(dynamo.Particle{VX: vx, VY: vy}, total, sim.Friction, sim.Dt)
		storeVel(vel, i, pt.VX, pt.VY, half)
	}
}

// advanceKernel: [pos, vel, sim]
func advanceKernel(b [][]uint32) func(int) {
	pos, vel := b[0], b[1]
	sim := decodeSimParams(b[2])
	cfg := sim.config()
	n := int(sim.NumParticles)
	half := sim.Flags&FlagHalfVelocity != 0

	return func(i int) {
		if i >= n {
			return
		}
		o := i * posWords
		vx, vy := loadVel(vel, i, half)
		p := dynamo.Particle{
			X:  f32frombits(pos[o+posX]),
			Y:  f32frombits(pos[o+posY]),
			VX: vx,
			VY: vy,
		}
		p = physics.Move(p, &cfg, sim.Dt)
		pos[o+posX] = f32bits(p.X)
		pos[o+posY] = f32bits(p.Y)
		storeVel(vel, i, p.VX, p.VY, half)
	}
}
