package physics

import (
	"fmt"
	"sync/atomic"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/spatial"
)

// BruteForceLimit is the particle count at or below which the engine
// scans all pairs even when the spatial hash is enabled.
const BruteForceLimit = 256

const minChunk = 64

// Method selects the force evaluation strategy.
type Method int

const (
	MethodBrute Method = iota
	MethodSpatial
)

func (m Method) String() string {
	switch m {
	case MethodBrute:
		return "brute"
	case MethodSpatial:
		return "spatial"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// SelectMethod picks the strategy used for n particles under cfg.
func SelectMethod(n int, cfg *dynamo.Config) Method {
	if !cfg.UseSpatialHash || n <= BruteForceLimit {
		return MethodBrute
	}
	return MethodSpatial
}

// CellSize is the spatial hash cell size used for the given radii: never
// smaller than the largest interaction radius.
func CellSize(cfg *dynamo.Config, radii *dynamo.RadiusMatrix) float32 {
	cell := cfg.CellSize
	if r := radii.MaxInteractionRadius(); r > cell {
		cell = r
	}
	if cell < spatial.MinCellSize {
		cell = spatial.MinCellSize
	}
	return cell
}

// Engine owns the scratch state for CPU steps. It is not safe for
// concurrent Step calls.
type Engine struct {
	hash   *spatial.Hash
	forces []dynamo.Vec2
	last   Method

	budgetHits atomic.Uint64
}

func NewEngine() *Engine {
	return &Engine{hash: &spatial.Hash{}}
}

// Step advances store by dt. Forces are computed from the current slot,
// integrated particles are written to the next slot, then the slots swap.
func (e *Engine) Step(store *dynamo.Store, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix, cfg *dynamo.Config, dt float32) error {
	if store.Len() == 0 {
		return dynamo.ErrEmptyStore
	}

	cur := store.Current()
	e.forces = resizeVec(e.forces, len(cur))

	e.last = SelectMethod(len(cur), cfg)
	switch e.last {
	case MethodBrute:
		e.ComputeForcesBrute(cur, rules, radii, cfg, e.forces)
	case MethodSpatial:
		e.hash.Build(cur, CellSize(cfg, radii), cfg.World)
		e.ComputeForcesSpatial(cur, e.hash, rules, radii, cfg, e.forces)
	}

	Integrate(cur, store.Next(), e.forces, cfg, dt)
	store.Swap()
	return nil
}

// ComputeForcesBrute evaluates every ordered pair. out must have len(ps)
// entries.
func (e *Engine) ComputeForcesBrute(ps []dynamo.Particle, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix, cfg *dynamo.Config, out []dynamo.Vec2) {
	wrap := cfg.Boundary.Wraps()
	budget := int(cfg.NeighborBudget)

	dynamo.ParallelFor(len(ps), minChunk, func(start, end int) {
		var hits uint64
		for i := start; i < end; i++ {
			p := ps[i]
			pos := p.Pos()
			var total dynamo.Vec2
			examined := 0

			for j := range ps {
				if j == i {
					continue
				}
				if budget > 0 && examined == budget {
					hits++
					break
				}
				examined++

				q := ps[j]
				delta := dynamo.WrappedDelta(pos, q.Pos(), cfg.World, wrap)
				f, ok := PairForce(delta,
					radii.GetMin(int(p.Type), int(q.Type)),
					radii.GetMax(int(p.Type), int(q.Type)),
					rules.Get(int(p.Type), int(q.Type)),
					cfg.RepelStrength)
				if ok {
					total = total.Add(f)
				}
			}
			out[i] = total.Scale(1 / cfg.ForceFactor)
		}
		if hits > 0 {
			e.budgetHits.Add(hits)
		}
	})
}

// ComputeForcesSpatial evaluates pairs found through h, which must be
// built over ps with a cell size of at least the largest max radius.
// Forces on particles in bins above MaxBinDensity are scaled down.
func (e *Engine) ComputeForcesSpatial(ps []dynamo.Particle, h *spatial.Hash, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix, cfg *dynamo.Config, out []dynamo.Vec2) {
	wrap := cfg.Boundary.Wraps()
	budget := int(cfg.NeighborBudget)
	radius := radii.MaxInteractionRadius()

	dynamo.ParallelFor(len(ps), minChunk, func(start, end int) {
		var hits uint64
		scratch := make([]int32, 0, 256)

		for i := start; i < end; i++ {
			p := ps[i]
			pos := p.Pos()
			var total dynamo.Vec2
			examined := 0

			scratch = h.QueryRadiusInto(scratch[:0], pos, radius, wrap)
			for _, idx := range scratch {
				j := int(idx)
				if j == i {
					continue
				}
				if budget > 0 && examined == budget {
					hits++
					break
				}
				examined++

				q := ps[j]
				delta := dynamo.WrappedDelta(pos, q.Pos(), cfg.World, wrap)
				f, ok := PairForce(delta,
					radii.GetMin(int(p.Type), int(q.Type)),
					radii.GetMax(int(p.Type), int(q.Type)),
					rules.Get(int(p.Type), int(q.Type)),
					cfg.RepelStrength)
				if ok {
					total = total.Add(f)
				}
			}

			scale := DensityScale(len(h.Cell(h.CellOf(i))), cfg.MaxBinDensity)
			out[i] = total.Scale(scale / cfg.ForceFactor)
		}
		if hits > 0 {
			e.budgetHits.Add(hits)
		}
	})
}

// Integrate writes Advance(cur[i], forces[i]) into next[i].
func Integrate(cur, next []dynamo.Particle, forces []dynamo.Vec2, cfg *dynamo.Config, dt float32) {
	dynamo.ParallelFor(len(cur), minChunk*4, func(start, end int) {
		for i := start; i < end; i++ {
			next[i] = Advance(cur[i], forces[i], cfg, dt)
		}
	})
}

// Forces returns the forces computed by the last Step.
func (e *Engine) Forces() []dynamo.Vec2 { return e.forces }

// LastMethod reports the strategy used by the last Step.
func (e *Engine) LastMethod() Method { return e.last }

// Hash returns the spatial hash built by the last spatial Step.
func (e *Engine) Hash() *spatial.Hash { return e.hash }

// BudgetHits is the number of particles whose candidate scan was cut
// short by NeighborBudget since the last reset.
func (e *Engine) BudgetHits() uint64 { return e.budgetHits.Load() }

func (e *Engine) ResetBudgetHits() { e.budgetHits.Store(0) }

func resizeVec(s []dynamo.Vec2, n int) []dynamo.Vec2 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]dynamo.Vec2, n)
}
