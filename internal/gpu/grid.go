package gpu

import (
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/spatial"
)

// Grid is the bin layout used by the count, sort and forces kernels.
type Grid struct {
	CellSize      float32
	Width, Height int
}

// NewGrid covers world with square cells, clamping cellSize to
// spatial.MinCellSize.
func NewGrid(cellSize float32, world dynamo.Vec2) Grid {
	if cellSize < spatial.MinCellSize {
		cellSize = spatial.MinCellSize
	}
	w, h := spatial.GridDims(cellSize, world)
	return Grid{CellSize: cellSize, Width: w, Height: h}
}

func (g Grid) TotalBins() int { return g.Width * g.Height }

// TotalBinsWithEnd is the bin buffer length: one slot per bin plus the end
// sentinel holding the particle count after the scan.
func (g Grid) TotalBinsWithEnd() int { return g.TotalBins() + 1 }

// BinOf returns the bin holding position (x, y). Positions outside the
// world are clamped into the edge bins.
func (g Grid) BinOf(x, y float32) int {
	cx := spatial.CellCoord(x, g.CellSize, g.Width)
	cy := spatial.CellCoord(y, g.CellSize, g.Height)
	return cy*g.Width + cx
}

// PrefixSumPasses is ceil(log2(n)), the number of Hillis-Steele passes
// needed to scan n words.
func PrefixSumPasses(n int) int {
	p := 0
	for 1<<p < n {
		p++
	}
	return p
}

// PartialEdges reports, per axis, whether the last bin row or column
// reaches past the world edge because the world is not a whole number of
// cells.
func (g Grid) PartialEdges(world dynamo.Vec2) (x, y bool) {
	return float32(g.Width)*g.CellSize > world.X, float32(g.Height)*g.CellSize > world.Y
}

// neighborAxis lists the distinct coordinates within one cell of c along
// an axis of length dim. With wrap and a partial last bin, a window that
// crosses that bin is extended one bin further so it still spans a full
// cell width on that side.
func neighborAxis(dst *[4]int, c, dim int, wrap, partial bool) []int {
	out := dst[:0]
	for d := -1; d <= 1; d++ {
		v := c + d
		if wrap {
			v = ((v % dim) + dim) % dim
		} else if v < 0 || v >= dim {
			continue
		}
		out = appendDistinct(out, v)
	}
	if wrap && partial {
		if c == 0 {
			out = appendDistinct(out, ((dim-2)%dim+dim)%dim)
		}
		if c == dim-2 {
			out = appendDistinct(out, 0)
		}
	}
	return out
}

func appendDistinct(out []int, v int) []int {
	for _, o := range out {
		if o == v {
			return out
		}
	}
	return append(out, v)
}
