package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/partlife/internal/dynamo"
)

func TestParticlesToSVG(t *testing.T) {
	nan := float32(0)
	nan = nan / nan
	ps := []dynamo.Particle{
		{X: 10, Y: 20, Type: 0},
		{X: 30, Y: 40, Type: 2},
		{X: 50, Y: 60, Type: 2},
		{X: nan, Y: 1, Type: 1},
	}
	svg := ParticlesToSVG(ps, dynamo.Vec2{X: 100, Y: 80}, []string{"#ff0000", "#00ff00"}, 2, 1.5)

	if !strings.Contains(svg, `width="200" height="160"`) {
		t.Error("world not scaled")
	}
	if got := strings.Count(svg, "<circle"); got != 3 {
		t.Errorf("circles = %d, want 3", got)
	}
	if strings.Contains(svg, `data-type="1"`) {
		t.Error("group for only non-finite particles should be omitted")
	}
	// type 2 cycles back to the first palette entry
	if !strings.Contains(svg, `<g fill="#ff0000" data-type="2">`) {
		t.Error("palette did not cycle")
	}
	if !strings.Contains(svg, `cx="60.0" cy="80.0"`) {
		t.Error("positions not scaled")
	}
}

func TestSeriesToSVG(t *testing.T) {
	if SeriesToSVG([]float64{1}, 100, 50, "#fff") != "" {
		t.Error("single value should produce nothing")
	}
	svg := SeriesToSVG([]float64{0, 1, 0.5}, 100, 50, "#00ccff")
	if !strings.Contains(svg, `stroke="#00ccff"`) {
		t.Error("stroke missing")
	}
	if got := strings.Count(svg, " L"); got != 2 {
		t.Errorf("segments = %d, want 2", got)
	}
}

func TestWriteFile(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFile("-", "<svg/>", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "<svg/>" {
		t.Errorf("stdout got %q", buf.String())
	}

	path := filepath.Join(t.TempDir(), "out.svg")
	if err := WriteFile(path, "<svg/>", nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "<svg/>" {
		t.Errorf("file got %q, %v", data, err)
	}
}
