package viz

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/experiment"
)

func TestCanvas_PlotParticles(t *testing.T) {
	c := NewCanvas(10, 5)
	world := dynamo.Vec2{X: 100, Y: 100}
	ps := []dynamo.Particle{
		{X: 1, Y: 1, Type: 2},
		{X: 2, Y: 2, Type: 2},
		{X: 3, Y: 3, Type: 1},
		{X: 99, Y: 99, Type: 0},
	}
	c.PlotParticles(ps, world, dynamo.Wrap)

	if got := c.Lit(); got != 2 {
		t.Errorf("Lit() = %d, want 2", got)
	}
	if typ, ok := c.Dominant(0, 0); !ok || typ != 2 {
		t.Errorf("Dominant(0,0) = %d,%v, want 2,true", typ, ok)
	}
	if typ, ok := c.Dominant(9, 4); !ok || typ != 0 {
		t.Errorf("Dominant(9,4) = %d,%v, want 0,true", typ, ok)
	}
	if _, ok := c.Dominant(5, 2); ok {
		t.Error("empty cell should have no dominant type")
	}
}

func TestCanvas_RepelFrame(t *testing.T) {
	c := NewCanvas(8, 4)
	c.PlotParticles(nil, dynamo.Vec2{X: 10, Y: 10}, dynamo.Repel)
	if got := c.Lit(); got != 2*8+2*(4-2) {
		t.Errorf("frame lit %d cells, want %d", got, 2*8+2*(4-2))
	}
}

func TestCanvas_SetUnset(t *testing.T) {
	c := NewCanvas(2, 2)
	c.Set(1, 5)
	if c.Lit() != 1 {
		t.Fatal("Set did not light a cell")
	}
	c.Unset(1, 5)
	if c.Lit() != 0 {
		t.Error("Unset left the cell lit")
	}
	c.Set(-1, 0)
	c.Set(100, 100)
	if c.Lit() != 0 {
		t.Error("out of range Set should be ignored")
	}
}

func TestCanvas_CellToWorld(t *testing.T) {
	c := NewCanvas(10, 10)
	got := c.CellToWorld(0, 9, dynamo.Vec2{X: 100, Y: 200})
	if !got.Eq(dynamo.Vec2{X: 5, Y: 190}, 1e-4) {
		t.Errorf("CellToWorld = %v", got)
	}
}

func TestCanvas_Render(t *testing.T) {
	c := NewCanvas(4, 2)
	c.SetTyped(0, 0, 1)
	out := c.Render(ThemeMinimal)
	if strings.Count(out, "\n") != 2 {
		t.Errorf("rendered %d rows, want 2", strings.Count(out, "\n"))
	}
	if !strings.ContainsRune(out, rune(brailleBlank|pixelMap[0][0])) {
		t.Error("rendered output missing the lit dot")
	}
}

func TestTheme_TypeColorCycles(t *testing.T) {
	th := ThemeRetroGreen
	n := uint32(len(th.Palette))
	if th.TypeColor(n) != th.TypeColor(0) {
		t.Error("palette should wrap")
	}
	if (Theme{Text: "#fff"}).TypeColor(3) != "#fff" {
		t.Error("empty palette should fall back to text colour")
	}
}

func TestNextTheme(t *testing.T) {
	names := ThemeNames()
	if got := NextTheme(names[len(names)-1]).Name; got != names[0] {
		t.Errorf("NextTheme wrap = %s, want %s", got, names[0])
	}
	if got := GetTheme("nope").Name; got != ThemeCyberpunk.Name {
		t.Errorf("GetTheme fallback = %s", got)
	}
}

func TestCycle(t *testing.T) {
	choices := []string{"a", "b", "c"}
	if got := cycle(choices, "a", -1); got != "c" {
		t.Errorf("cycle back = %s", got)
	}
	if got := cycle(choices, "c", 1); got != "a" {
		t.Errorf("cycle forward = %s", got)
	}
	if got := cycle(choices, "zzz", 1); got != "a" {
		t.Errorf("cycle unknown = %s", got)
	}
}

func TestRGBA(t *testing.T) {
	c := RGBA("#ff8000")
	if c.R != 0xff || c.G != 0x80 || c.B != 0 || c.A != 0xff {
		t.Errorf("RGBA = %+v", c)
	}
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.GetPreset("small")
	cfg.Simulation.NumParticles = 300
	cfg.Run.Backend = "cpu"
	exp := experiment.New(cfg)
	ctx := context.Background()
	if err := exp.Setup(ctx, 7); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(exp.Close)
	return NewExperimentModel(ctx, exp, cfg, "small")
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_TickSteps(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, TickMsg{})
	m = update(t, m, TickMsg{})
	if got := m.Runner().Steps(); got != 2 {
		t.Errorf("Steps() = %d, want 2", got)
	}
	if len(m.energy) != 3 {
		t.Errorf("energy history = %d, want 3", len(m.energy))
	}
	if m.canvas.Lit() == 0 {
		t.Error("canvas should show particles")
	}
	if !strings.Contains(m.View(), "Backend") {
		t.Error("view missing stats panel")
	}
}

func TestModel_PauseAndStep(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, keyRune(' '))
	m = update(t, m, TickMsg{})
	if m.Runner().Steps() != 0 {
		t.Fatal("paused model should not step on tick")
	}
	m = update(t, m, keyRune('n'))
	if m.Runner().Steps() != 1 {
		t.Errorf("single step: Steps() = %d", m.Runner().Steps())
	}
}

func TestModel_AdjustParam(t *testing.T) {
	m := newTestModel(t)
	before := m.Runner().Config().Friction
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	after := m.Runner().Config().Friction
	if after >= before {
		t.Errorf("friction %g -> %g, want decrease", before, after)
	}
}

func TestModel_MouseBrush(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, keyRune(' '))
	before := m.Runner().Config().NumParticles
	m = update(t, m, tea.MouseMsg{
		X:      canvasPadX + 3,
		Y:      canvasPadY + 3,
		Action: tea.MouseActionPress,
		Button: tea.MouseButtonLeft,
	})
	if got := m.Runner().Config().NumParticles; got != before+uint32(m.opts.BrushCount) {
		t.Errorf("particles = %d, want %d", got, before+uint32(m.opts.BrushCount))
	}
}

func TestModel_Reset(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, TickMsg{})
	m = update(t, m, keyRune('r'))
	if m.err != nil {
		t.Fatalf("reset: %v", m.err)
	}
	if m.Runner().Steps() != 0 {
		t.Errorf("Steps() after reset = %d", m.Runner().Steps())
	}
}
