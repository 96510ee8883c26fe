package viz

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/experiment"
	"github.com/san-kum/partlife/internal/generate"
	"github.com/san-kum/partlife/internal/sim"
)

var (
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ffff")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	descStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff88ff"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555566"))
	idleDescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444455"))
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00aaaa")).Bold(true)
)

const (
	stateMenu = iota
	stateConfig
	stateSim
)

// setting is one editable field on the config screen.
type setting struct {
	name   string
	value  func(c *config.Config) string
	adjust func(c *config.Config, dir int)
}

var backendChoices = []string{"auto", "cpu", "gpu", "gpu-half", "opengl"}

var settings = []setting{
	{"backend", func(c *config.Config) string { return c.Run.Backend }, func(c *config.Config, dir int) {
		c.Run.Backend = cycle(backendChoices, c.Run.Backend, dir)
	}},
	{"particles", func(c *config.Config) string { return fmt.Sprint(c.Simulation.NumParticles) }, func(c *config.Config, dir int) {
		n := c.Simulation.NumParticles
		if dir > 0 {
			n *= 2
		} else if n > 500 {
			n /= 2
		}
		c.Simulation.NumParticles = n
	}},
	{"types", func(c *config.Config) string { return fmt.Sprint(c.Simulation.NumTypes) }, func(c *config.Config, dir int) {
		n := int(c.Simulation.NumTypes) + dir
		if n >= 1 && n <= dynamo.MaxTypes && len(c.Rules.Matrix) == 0 {
			c.Simulation.NumTypes = uint32(n)
		}
	}},
	{"rules", func(c *config.Config) string { return c.Rules.Type }, func(c *config.Config, dir int) {
		c.Rules.Type = cycle(generate.RuleTypes(), c.Rules.Type, dir)
	}},
	{"spawn", func(c *config.Config) string { return c.Spawn.Pattern }, func(c *config.Config, dir int) {
		c.Spawn.Pattern = cycle(generate.SpawnPatterns(), c.Spawn.Pattern, dir)
	}},
	{"seed", func(c *config.Config) string { return fmt.Sprint(c.Run.Seed) }, func(c *config.Config, dir int) {
		c.Run.Seed += int64(dir)
	}},
}

func cycle(choices []string, cur string, dir int) string {
	for i, c := range choices {
		if c == cur {
			return choices[(i+dir+len(choices))%len(choices)]
		}
	}
	return choices[0]
}

// App is the interactive front end: pick a preset, tweak it, watch it run.
type App struct {
	ctx           context.Context
	state, cursor int
	presets       []string
	cfg           *config.Config
	settingCursor int
	exp           *experiment.Experiment
	live          Model
	err           error
	width, height int
}

func NewApp(ctx context.Context) *App {
	return &App{ctx: ctx, presets: config.ListPresets(), width: 80, height: 24}
}

func (a *App) Init() tea.Cmd { return nil }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		a.width, a.height = ws.Width, ws.Height
	}
	if a.state == stateSim {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			a.stop()
			return a, nil
		}
		next, cmd := a.live.Update(msg)
		a.live = next.(Model)
		return a, cmd
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		return a.handleKey(k)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.stop()
		return a, tea.Quit
	}
	switch a.state {
	case stateMenu:
		switch msg.String() {
		case "up", "k":
			a.cursor = max(a.cursor-1, 0)
		case "down", "j":
			a.cursor = min(a.cursor+1, len(a.presets)-1)
		case "enter", " ":
			a.cfg = config.GetPreset(a.presets[a.cursor])
			a.state, a.settingCursor, a.err = stateConfig, 0, nil
		}
	case stateConfig:
		switch msg.String() {
		case "esc":
			a.state = stateMenu
		case "up", "k":
			a.settingCursor = max(a.settingCursor-1, 0)
		case "down", "j":
			a.settingCursor = min(a.settingCursor+1, len(settings)-1)
		case "left", "h":
			settings[a.settingCursor].adjust(a.cfg, -1)
		case "right", "l":
			settings[a.settingCursor].adjust(a.cfg, 1)
		case "enter", "s":
			return a, a.start()
		}
	}
	return a, nil
}

func (a *App) start() tea.Cmd {
	if err := a.cfg.Validate(); err != nil {
		a.err = err
		return nil
	}
	exp := experiment.New(a.cfg)
	if err := exp.Setup(a.ctx, a.cfg.Run.Seed); err != nil {
		a.err = err
		return nil
	}
	a.exp = exp
	a.live = NewExperimentModel(a.ctx, exp, a.cfg, a.presets[a.cursor])
	a.live.resize(a.width, a.height)
	a.state = stateSim
	return a.live.Init()
}

// Close releases the running experiment, if any.
func (a *App) Close() { a.stop() }

func (a *App) stop() {
	if a.exp != nil {
		a.exp.Close()
		a.exp = nil
	}
	a.state = stateConfig
}

// NewExperimentModel wraps a set-up experiment in a live view whose reset
// key rebuilds the scenario from the same seed.
func NewExperimentModel(ctx context.Context, exp *experiment.Experiment, cfg *config.Config, title string) Model {
	return NewModel(ctx, exp.GetRunner(), Options{
		Title: title,
		Dt:    cfg.Run.Dt,
		Reset: func(ctx context.Context) (*sim.Runner, error) {
			if err := exp.Setup(ctx, cfg.Run.Seed); err != nil {
				return nil, err
			}
			return exp.GetRunner(), nil
		},
		GIFPath: filepath.Join(cfg.Run.OutputDir, title+".gif"),
	})
}

func (a *App) View() string {
	switch a.state {
	case stateMenu:
		return a.viewMenu()
	case stateConfig:
		return a.viewConfig()
	case stateSim:
		return a.live.View()
	}
	return ""
}

func presetSummary(c *config.Config) string {
	return fmt.Sprintf("%d particles, %d types, %s rules, %s spawn",
		c.Simulation.NumParticles, c.Simulation.NumTypes, c.Rules.Type, c.Spawn.Pattern)
}

func (a *App) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n\n    " + GradientText("PARTLIFE", CurrentTheme.Primary, CurrentTheme.Secondary) +
		"\n    " + idleStyle.Render("particle life") + "\n    " + idleStyle.Render("─────────────────────────") + "\n\n")
	for i, name := range a.presets {
		desc := presetSummary(config.Presets[name])
		if i == a.cursor {
			fmt.Fprintf(&b, "    %s %s  %s\n", cursorStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-10s", name)), descStyle.Render(desc))
		} else {
			fmt.Fprintf(&b, "    %s  %s\n", idleStyle.Render(fmt.Sprintf("  %-10s", name)), idleDescStyle.Render(desc))
		}
	}
	b.WriteString("\n    " + keyStyle.Render("j/k") + idleStyle.Render(" navigate  ") +
		keyStyle.Render("enter") + idleStyle.Render(" select  ") +
		keyStyle.Render("q") + idleStyle.Render(" quit") + "\n")
	return b.String()
}

func (a *App) viewConfig() string {
	var b strings.Builder
	b.WriteString("\n\n    " + NeonGlow.Render(strings.ToUpper(a.presets[a.cursor])) +
		"\n    " + idleStyle.Render("─────────────────────────") + "\n\n")
	for i, s := range settings {
		val := s.value(a.cfg)
		if i == a.settingCursor {
			fmt.Fprintf(&b, "    %s %s %s\n", cursorStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-10s", s.name)), descStyle.Bold(true).Render(val))
		} else {
			fmt.Fprintf(&b, "    %s %s\n", idleStyle.Render(fmt.Sprintf("  %-10s", s.name)), idleDescStyle.Render(val))
		}
	}
	if a.err != nil {
		b.WriteString("\n    " + StatusError.Render(a.err.Error()) + "\n")
	}
	b.WriteString("\n    " + keyStyle.Render("j/k") + idleStyle.Render(" select  ") +
		keyStyle.Render("h/l") + idleStyle.Render(" adjust  ") +
		keyStyle.Render("s") + idleStyle.Render(" start  ") +
		keyStyle.Render("esc") + idleStyle.Render(" back") + "\n")
	return b.String()
}

// Run starts a bubbletea program with mouse support on the alt screen.
func Run(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}
