package viz

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/metrics"
	"github.com/san-kum/partlife/internal/sim"
)

const (
	historyCapacity = 600
	frameInterval   = time.Second / 30
	statsWidth      = 46
	// canvas offset inside the rendered view, used to map mouse cells
	canvasPadX = 2
	canvasPadY = 1

	gifScale = 4
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(canvasPadY, canvasPadX)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(statsWidth)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

type TickMsg time.Time

// ResetFunc rebuilds the scenario and returns a freshly loaded runner.
type ResetFunc func(ctx context.Context) (*sim.Runner, error)

type Options struct {
	Title         string
	Dt            float32
	StepsPerFrame int
	Reset         ResetFunc
	GIFPath       string
	BrushRadius   float32
	BrushCount    int
}

func (o *Options) defaults() {
	if o.Title == "" {
		o.Title = "partlife"
	}
	if o.Dt <= 0 {
		o.Dt = 1.0 / 60
	}
	if o.StepsPerFrame <= 0 {
		o.StepsPerFrame = 1
	}
	if o.GIFPath == "" {
		o.GIFPath = "partlife.gif"
	}
	if o.BrushRadius <= 0 {
		o.BrushRadius = 40
	}
	if o.BrushCount <= 0 {
		o.BrushCount = 100
	}
}

// snapshot keeps the particles from the most recent sample.
type snapshot struct {
	step int
	ps   []dynamo.Particle
}

func (s *snapshot) OnStep(step int, ps []dynamo.Particle) {
	s.step = step
	s.ps = append(s.ps[:0], ps...)
}

// Model drives a runner from bubbletea ticks and draws the particles on a
// braille canvas.
type Model struct {
	ctx           context.Context
	runner        *sim.Runner
	opts          Options
	snap          *snapshot
	canvas        *Canvas
	width, height int
	running       bool
	params        []string
	selected      int
	brushMode     sim.BrushMode
	brushType     uint32
	sample        metrics.Sample
	energy        []float64
	bins          analysis.BinStats
	ticks         int
	recording     bool
	frames        []*image.Paletted
	notice        string
	err           error
	showHelp      bool
}

func NewModel(ctx context.Context, runner *sim.Runner, opts Options) Model {
	opts.defaults()
	m := Model{
		ctx:     ctx,
		opts:    opts,
		canvas:  NewCanvas(80, 24),
		width:   80 + statsWidth,
		height:  28,
		running: true,
		params:  analysis.SweepParams,
	}
	m.attach(runner)
	return m
}

func (m *Model) attach(r *sim.Runner) {
	m.runner = r
	m.snap = &snapshot{}
	r.AddObserver(m.snap)
	m.energy = m.energy[:0]
	m.err = nil
	if m.brushType >= r.Config().NumTypes {
		m.brushType = 0
	}
	m.refresh()
}

// SetStepsPerFrame changes how many steps each tick advances.
func (m *Model) SetStepsPerFrame(n int) {
	if n > 0 {
		m.opts.StepsPerFrame = n
	}
}

// Runner returns the runner currently being displayed.
func (m Model) Runner() *sim.Runner { return m.runner }

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case tea.MouseMsg:
		m.mouse(msg)
	case tea.KeyMsg:
		return m.key(msg)
	case TickMsg:
		m.ticks++
		if m.running {
			m.step()
		}
		if m.recording {
			m.captureFrame()
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.recording {
			m.saveGIF()
		}
		return m, tea.Quit
	case " ":
		m.running = !m.running
	case "n":
		if !m.running {
			m.step()
		}
	case "r":
		m.reset()
	case "tab":
		m.selected = (m.selected + 1) % len(m.params)
	case "up", "k":
		m.adjustParam(1.1)
	case "down", "j":
		m.adjustParam(1 / 1.1)
	case "b":
		if m.brushMode == sim.BrushAdd {
			m.brushMode = sim.BrushRemove
		} else {
			m.brushMode = sim.BrushAdd
		}
	case "]":
		m.brushType = (m.brushType + 1) % m.runner.Config().NumTypes
	case "[":
		n := m.runner.Config().NumTypes
		m.brushType = (m.brushType + n - 1) % n
	case "c":
		cfg := m.runner.Config()
		m.brush(m.brushMode, dynamo.Vec2{X: cfg.World.X / 2, Y: cfg.World.Y / 2})
	case "g":
		if m.recording {
			m.saveGIF()
			m.recording, m.frames = false, nil
		} else {
			m.recording, m.frames = true, nil
		}
	case "t":
		CurrentTheme = NextTheme(CurrentTheme.Name)
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	cw := w - statsWidth - 2*canvasPadX - 2
	ch := h - 2*canvasPadY - 1
	m.canvas = NewCanvas(max(cw, 10), max(ch, 5))
	cfg := m.runner.Config()
	m.canvas.PlotParticles(m.snap.ps, cfg.World, cfg.Boundary)
}

func (m *Model) mouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		return
	}
	col, row := msg.X-canvasPadX, msg.Y-canvasPadY
	if col < 0 || row < 0 || col >= m.canvas.Width || row >= m.canvas.Height {
		return
	}
	pos := m.canvas.CellToWorld(col, row, m.runner.Config().World)
	switch msg.Button {
	case tea.MouseButtonLeft:
		m.brush(m.brushMode, pos)
	case tea.MouseButtonRight:
		m.brush(sim.BrushRemove, pos)
	}
}

func (m *Model) brush(mode sim.BrushMode, at dynamo.Vec2) {
	m.runner.Brush(sim.Brush{
		Mode:   mode,
		Center: at,
		Radius: m.opts.BrushRadius,
		Count:  m.opts.BrushCount,
		Type:   m.brushType,
	})
	m.notice = fmt.Sprintf("%s at %v", mode, at)
	if !m.running {
		m.step()
	}
}

func (m *Model) adjustParam(factor float64) {
	name := m.params[m.selected]
	cfg := m.runner.Config()
	v, err := analysis.GetParam(cfg, name)
	if err != nil {
		m.err = err
		return
	}
	if err := analysis.SetParam(&cfg, name, v*factor); err != nil {
		m.err = err
		return
	}
	if err := m.runner.SetConfig(cfg); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = fmt.Sprintf("%s = %.4g", name, v*factor)
}

// step advances StepsPerFrame steps and refreshes the view. Errors pause
// the simulation.
func (m *Model) step() {
	for i := 0; i < m.opts.StepsPerFrame; i++ {
		if err := m.runner.Step(m.ctx, m.opts.Dt); err != nil {
			m.err, m.running = err, false
			slog.Error("live step failed", "step", m.runner.Steps(), "error", err)
			return
		}
	}
	m.refresh()
}

func (m *Model) refresh() {
	s, err := m.runner.Sample(m.ctx)
	if err != nil {
		m.err, m.running = err, false
		return
	}
	m.sample = s
	m.energy = append(m.energy, s.KineticEnergy)
	if len(m.energy) > historyCapacity {
		m.energy = m.energy[1:]
	}
	if counts, err := m.runner.Backend().BinCounts(m.ctx); err == nil {
		m.bins = analysis.ComputeBinStats(counts)
	}
	cfg := m.runner.Config()
	m.canvas.PlotParticles(m.snap.ps, cfg.World, cfg.Boundary)
}

// reset rebuilds the scenario. Without a ResetFunc it only clears the
// history.
func (m *Model) reset() {
	if m.opts.Reset == nil {
		m.energy = m.energy[:0]
		return
	}
	r, err := m.opts.Reset(m.ctx)
	if err != nil {
		m.err, m.running = err, false
		return
	}
	m.attach(r)
	m.notice = "reset"
}

// View renders the TUI interface.
func (m Model) View() string {
	canvasView := canvasStyle.Render(m.canvas.Render(CurrentTheme))

	var s strings.Builder
	s.WriteString(HeaderStyle.Render(GradientText(strings.ToUpper(m.opts.Title), CurrentTheme.Primary, CurrentTheme.Secondary)) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(StatusError.Render("ERROR") + " " + Subtle.Render(m.err.Error()))
	case m.recording:
		s.WriteString(StatusRecording.Render("● REC"))
	case m.running:
		s.WriteString(StatusRunning.Render(AnimatedSpinner(m.ticks) + " RUNNING"))
	default:
		s.WriteString(StatusPaused.Render("PAUSED"))
	}
	s.WriteString("\n\n")

	if len(m.energy) > 1 {
		chart := asciigraph.Plot(m.energy, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Kinetic energy"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	cfg := m.runner.Config()
	perf := m.runner.Perf().Stats()
	row := func(label, value string) {
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(value) + "\n")
	}
	row("Backend", m.runner.Backend().Name())
	row("Step", fmt.Sprintf("%d", m.runner.Steps()))
	row("Particles", fmt.Sprintf("%d", cfg.NumParticles))
	row("ms/step", fmt.Sprintf("%.2f", perf.MillisPerStep()))
	row("Mean speed", fmt.Sprintf("%.2f", m.sample.MeanSpeed))
	row("Max speed", fmt.Sprintf("%.2f", m.sample.MaxSpeed))
	if m.sample.BudgetHits > 0 {
		row("Budget hits", fmt.Sprintf("%d", m.sample.BudgetHits))
	}
	if m.bins.Bins > 0 {
		s.WriteString(MetricLabel.Render("Bins") + ProgressBar(float64(m.bins.Occupied)/float64(m.bins.Bins), 16) +
			Subtle.Render(fmt.Sprintf(" %d/%d", m.bins.Occupied, m.bins.Bins)) + "\n")
		row("Imbalance", fmt.Sprintf("%.1f", m.bins.Imbalance))
	}
	s.WriteString("\n")

	for i, name := range m.params {
		v, _ := analysis.GetParam(cfg, name)
		label := MetricLabel
		if i == m.selected {
			label = ActiveLabel
		}
		s.WriteString(label.Render(name) + MetricValue.Render(fmt.Sprintf("%.4g", v)) + "\n")
	}
	s.WriteString("\n")
	s.WriteString(MetricLabel.Render("Brush") + MetricValue.Render(m.brushMode.String()) + "  " +
		lipgloss.NewStyle().Foreground(CurrentTheme.TypeColor(m.brushType)).Render(fmt.Sprintf("● type %d", m.brushType)) + "\n")
	s.WriteString(TypeLegend(CurrentTheme, cfg.NumTypes) + "\n")
	if m.notice != "" {
		s.WriteString(Subtle.Render(m.notice) + "\n")
	}

	if m.showHelp {
		s.WriteString("\n" + KeyHint.Render(strings.Join([]string{
			"space pause   n step   r reset",
			"tab param   ↑/↓ adjust",
			"click brush   right-click erase",
			"b brush mode   [ ] brush type   c centre",
			"t theme   g record gif   q quit",
		}, "\n")))
	} else {
		s.WriteString("\n" + KeyHint.Render("? help"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
}

// captureFrame renders the current snapshot into a paletted image using
// the theme's type colours.
func (m *Model) captureFrame() {
	cfg := m.runner.Config()
	w, h := m.canvas.SubWidth()*gifScale/2, m.canvas.SubHeight()*gifScale/2
	pal := color.Palette{color.Black}
	for t := uint32(0); t < cfg.NumTypes; t++ {
		pal = append(pal, RGBA(CurrentTheme.TypeColor(t)))
	}
	img := image.NewPaletted(image.Rect(0, 0, w, h), pal)
	for _, p := range m.snap.ps {
		if !p.IsFinite() {
			continue
		}
		x := int(p.X / cfg.World.X * float32(w))
		y := int(p.Y / cfg.World.Y * float32(h))
		img.SetColorIndex(x, y, uint8(p.Type+1))
	}
	m.frames = append(m.frames, img)
}

func (m *Model) saveGIF() {
	if len(m.frames) == 0 {
		return
	}
	anim := gif.GIF{LoopCount: 0}
	for _, frame := range m.frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, int(frameInterval/(10*time.Millisecond)))
	}
	f, err := os.Create(m.opts.GIFPath)
	if err != nil {
		m.notice = err.Error()
		return
	}
	defer f.Close()
	if err := gif.EncodeAll(f, &anim); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = fmt.Sprintf("saved %d frames to %s", len(m.frames), m.opts.GIFPath)
	slog.Info("gif saved", "path", m.opts.GIFPath, "frames", len(m.frames))
}
