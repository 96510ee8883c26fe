package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/partlife/internal/dynamo"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a braille grid. Each cell also tallies the particle types
// plotted into it so Render can colour the cell by its dominant type.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
	tally         []uint16
}

func NewCanvas(w, h int) *Canvas {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
		tally:  make([]uint16, w*h*dynamo.MaxTypes),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
	return c
}

// SubWidth and SubHeight give the canvas size in dots.
func (c *Canvas) SubWidth() int  { return c.Width * 2 }
func (c *Canvas) SubHeight() int { return c.Height * 4 }

// Set lights the dot at (x, y) in sub-pixel coordinates.
func (c *Canvas) Set(x, y int) {
	col, row, ok := c.cell(x, y)
	if !ok {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// SetTyped lights a dot and counts it towards the cell's type tally.
func (c *Canvas) SetTyped(x, y int, t uint32) {
	col, row, ok := c.cell(x, y)
	if !ok || t >= dynamo.MaxTypes {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
	i := (row*c.Width+col)*dynamo.MaxTypes + int(t)
	if c.tally[i] < ^uint16(0) {
		c.tally[i]++
	}
}

func (c *Canvas) Unset(x, y int) {
	col, row, ok := c.cell(x, y)
	if !ok {
		return
	}
	c.Grid[row][col] &^= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) cell(x, y int) (col, row int, ok bool) {
	if x < 0 || y < 0 {
		return 0, 0, false
	}
	col, row = x/2, y/4
	if col >= c.Width || row >= c.Height {
		return 0, 0, false
	}
	return col, row, true
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
	clear(c.tally)
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// WorldToDot maps a world position onto the dot grid.
func (c *Canvas) WorldToDot(p dynamo.Vec2, world dynamo.Vec2) (int, int) {
	x := int(p.X / world.X * float32(c.SubWidth()))
	y := int(p.Y / world.Y * float32(c.SubHeight()))
	return min(max(x, 0), c.SubWidth()-1), min(max(y, 0), c.SubHeight()-1)
}

// CellToWorld maps a character cell back to the world position of its
// centre.
func (c *Canvas) CellToWorld(col, row int, world dynamo.Vec2) dynamo.Vec2 {
	return dynamo.Vec2{
		X: (float32(col) + 0.5) / float32(c.Width) * world.X,
		Y: (float32(row) + 0.5) / float32(c.Height) * world.Y,
	}
}

// PlotParticles clears the canvas and draws ps scaled to world. Repel
// worlds get a frame so the walls are visible.
func (c *Canvas) PlotParticles(ps []dynamo.Particle, world dynamo.Vec2, boundary dynamo.BoundaryMode) {
	c.Clear()
	for _, p := range ps {
		if !p.IsFinite() {
			continue
		}
		x, y := c.WorldToDot(p.Pos(), world)
		c.SetTyped(x, y, p.Type)
	}
	if !boundary.Wraps() {
		w, h := c.SubWidth()-1, c.SubHeight()-1
		c.DrawLine(0, 0, w, 0)
		c.DrawLine(0, h, w, h)
		c.DrawLine(0, 0, 0, h)
		c.DrawLine(w, 0, w, h)
	}
}

// Dominant returns the most frequent type plotted into a cell.
func (c *Canvas) Dominant(col, row int) (uint32, bool) {
	base := (row*c.Width + col) * dynamo.MaxTypes
	best, bestN := uint32(0), uint16(0)
	for t := 0; t < dynamo.MaxTypes; t++ {
		if n := c.tally[base+t]; n > bestN {
			best, bestN = uint32(t), n
		}
	}
	return best, bestN > 0
}

// Lit counts non-blank cells.
func (c *Canvas) Lit() int {
	n := 0
	for _, row := range c.Grid {
		for _, r := range row {
			if r != brailleBlank {
				n++
			}
		}
	}
	return n
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// Render draws the grid with each cell coloured from the theme palette.
// Runs of equal colour share one style call.
func (c *Canvas) Render(theme Theme) string {
	var b strings.Builder
	for row := range c.Grid {
		var run strings.Builder
		runColor := lipgloss.Color("")
		flush := func() {
			if run.Len() == 0 {
				return
			}
			b.WriteString(lipgloss.NewStyle().Foreground(runColor).Render(run.String()))
			run.Reset()
		}
		for col, r := range c.Grid[row] {
			color := theme.Muted
			if t, ok := c.Dominant(col, row); ok {
				color = theme.TypeColor(t)
			}
			if color != runColor {
				flush()
				runColor = color
			}
			run.WriteRune(r)
		}
		flush()
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
