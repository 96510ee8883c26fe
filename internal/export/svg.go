package export

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/san-kum/partlife/internal/dynamo"
)

const background = "#0a0a0a"

// ParticlesToSVG draws a snapshot at scale pixels per world unit, one
// group per type coloured from palette (cycled). Non-finite particles are
// skipped.
func ParticlesToSVG(ps []dynamo.Particle, world dynamo.Vec2, palette []string, scale, radius float64) string {
	if scale <= 0 {
		scale = 1
	}
	if radius <= 0 {
		radius = 1
	}
	if len(palette) == 0 {
		palette = []string{"#00ff00"}
	}
	width := float64(world.X) * scale
	height := float64(world.Y) * scale

	byType := make(map[uint32][]dynamo.Particle)
	var maxType uint32
	for _, p := range ps {
		if !p.IsFinite() {
			continue
		}
		byType[p.Type] = append(byType[p.Type], p)
		maxType = max(maxType, p.Type)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)

	for t := uint32(0); t <= maxType; t++ {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "<g fill=\"%s\" data-type=\"%d\">\n", palette[int(t)%len(palette)], t)
		for _, p := range group {
			fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
				float64(p.X)*scale, float64(p.Y)*scale, radius)
		}
		sb.WriteString("</g>\n")
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// SeriesToSVG plots values against their index as a polyline.
func SeriesToSVG(values []float64, width, height int, strokeColor string) string {
	if len(values) < 2 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.1
	hi += span * 0.1
	span = hi - lo
	n := float64(len(values) - 1)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, background, strokeColor)

	for i, v := range values {
		x := float64(i) / n * float64(width)
		y := float64(height) - (v-lo)/span*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// WriteFile writes an SVG document to path, or to w when path is "-".
func WriteFile(path string, svg string, w io.Writer) error {
	if path == "-" {
		_, err := io.WriteString(w, svg)
		return err
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
