// Package spatial implements the uniform-grid spatial hash used to find
// interaction candidates without scanning every particle.
package spatial

import (
	"math"

	"github.com/san-kum/partlife/internal/dynamo"
)

// MinCellSize is the smallest accepted cell size.
const MinCellSize = 1.0

// Hash is a uniform grid over the world. Cell contents are stored as one
// flat index array sorted by cell, with start offsets per cell.
type Hash struct {
	cellSize      float32
	width, height int
	world         dynamo.Vec2

	start   []int32
	indices []int32
	cellOf  []int32
}

// Stats summarises grid occupancy.
type Stats struct {
	TotalCells     int
	NonEmptyCells  int
	TotalParticles int
	MaxPerCell     int
	AvgPerCell     float32
}

// Build creates a hash over ps.
func Build(ps []dynamo.Particle, cellSize float32, world dynamo.Vec2) *Hash {
	h := &Hash{}
	h.Build(ps, cellSize, world)
	return h
}

// GridDims returns the grid size for a cell size, ceil(world/cell) per axis.
func GridDims(cellSize float32, world dynamo.Vec2) (int, int) {
	if cellSize < MinCellSize {
		cellSize = MinCellSize
	}
	w := int(math.Ceil(float64(world.X / cellSize)))
	h := int(math.Ceil(float64(world.Y / cellSize)))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CellCoord maps a coordinate to its cell along one axis, clamped into
// [0, dim).
func CellCoord(v, cellSize float32, dim int) int {
	c := int(math.Floor(float64(v / cellSize)))
	if c < 0 {
		return 0
	}
	if c >= dim {
		return dim - 1
	}
	return c
}

// Build rebuilds the hash in place, reusing its buffers. Not safe for
// concurrent use with queries.
func (h *Hash) Build(ps []dynamo.Particle, cellSize float32, world dynamo.Vec2) {
	if cellSize < MinCellSize {
		cellSize = MinCellSize
	}
	h.cellSize = cellSize
	h.world = world
	h.width, h.height = GridDims(cellSize, world)

	cells := h.width * h.height
	h.start = resize32(h.start, cells+1)
	h.indices = resize32(h.indices, len(ps))
	h.cellOf = resize32(h.cellOf, len(ps))

	for i := range h.start {
		h.start[i] = 0
	}

	for i, p := range ps {
		cx := CellCoord(p.X, cellSize, h.width)
		cy := CellCoord(p.Y, cellSize, h.height)
		c := int32(cy*h.width + cx)
		h.cellOf[i] = c
		h.start[c+1]++
	}

	for c := 1; c <= cells; c++ {
		h.start[c] += h.start[c-1]
	}

	// scatter using start[c] as a moving cursor, then shift back
	for i := range ps {
		c := h.cellOf[i]
		h.indices[h.start[c]] = int32(i)
		h.start[c]++
	}
	for c := cells; c > 0; c-- {
		h.start[c] = h.start[c-1]
	}
	h.start[0] = 0
}

func (h *Hash) CellSize() float32    { return h.cellSize }
func (h *Hash) Dims() (int, int)     { return h.width, h.height }
func (h *Hash) NumCells() int        { return h.width * h.height }
func (h *Hash) Cell(idx int) []int32 { return h.indices[h.start[idx]:h.start[idx+1]] }

// CellOf returns the cell index particle i was bucketed into.
func (h *Hash) CellOf(i int) int { return int(h.cellOf[i]) }

// CellIndex returns the cell holding pos, or false outside the world.
func (h *Hash) CellIndex(pos dynamo.Vec2) (int, bool) {
	if pos.X < 0 || pos.Y < 0 || pos.X >= h.world.X || pos.Y >= h.world.Y {
		return 0, false
	}
	cx := int(pos.X / h.cellSize)
	cy := int(pos.Y / h.cellSize)
	if cx >= h.width || cy >= h.height {
		return 0, false
	}
	return cy*h.width + cx, true
}

// QueryRadiusInto appends the indices of every particle in cells within
// ceil(radius/cell)+1 rings of the cell holding center. The result is a
// superset of particles within radius; callers apply the exact test.
// With wrap set, ring coordinates wrap modulo the grid; each cell is
// visited at most once even when the rings span the whole grid.
func (h *Hash) QueryRadiusInto(dst []int32, center dynamo.Vec2, radius float32, wrap bool) []int32 {
	rings := int(math.Ceil(float64(radius/h.cellSize))) + 1
	cx := CellCoord(center.X, h.cellSize, h.width)
	cy := CellCoord(center.Y, h.cellSize, h.height)

	var xbuf, ybuf [32]int
	xs := axisCells(xbuf[:0], cx, rings, h.width, wrap)
	ys := axisCells(ybuf[:0], cy, rings, h.height, wrap)

	for _, y := range ys {
		row := y * h.width
		for _, x := range xs {
			c := row + x
			dst = append(dst, h.indices[h.start[c]:h.start[c+1]]...)
		}
	}
	return dst
}

func (h *Hash) Stats() Stats {
	s := Stats{TotalCells: h.NumCells()}
	for c := 0; c < s.TotalCells; c++ {
		n := int(h.start[c+1] - h.start[c])
		if n == 0 {
			continue
		}
		s.NonEmptyCells++
		s.TotalParticles += n
		if n > s.MaxPerCell {
			s.MaxPerCell = n
		}
	}
	if s.NonEmptyCells > 0 {
		s.AvgPerCell = float32(s.TotalParticles) / float32(s.NonEmptyCells)
	}
	return s
}

// axisCells lists the distinct cell coordinates within rings of center
// along one axis.
func axisCells(dst []int, center, rings, dim int, wrap bool) []int {
	if wrap {
		if 2*rings+1 >= dim {
			for c := 0; c < dim; c++ {
				dst = append(dst, c)
			}
			return dst
		}
		for d := -rings; d <= rings; d++ {
			c := (center + d) % dim
			if c < 0 {
				c += dim
			}
			dst = append(dst, c)
		}
		return dst
	}

	lo, hi := center-rings, center+rings
	if lo < 0 {
		lo = 0
	}
	if hi > dim-1 {
		hi = dim - 1
	}
	for c := lo; c <= hi; c++ {
		dst = append(dst, c)
	}
	return dst
}

func resize32(s []int32, n int) []int32 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int32, n)
}
