package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/experiment"
	"github.com/san-kum/partlife/internal/optim"
	"github.com/san-kum/partlife/internal/sim"
	"github.com/san-kum/partlife/internal/storage"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one run in a scenario. It starts from Preset (or the
// defaults), applies Config, then the scalar overrides and Params.
type ScenarioStep struct {
	Preset  string             `yaml:"preset"`
	Config  string             `yaml:"config"`
	Backend string             `yaml:"backend"`
	Steps   int                `yaml:"steps"`
	Seed    int64              `yaml:"seed"`
	Params  map[string]float64 `yaml:"params"`
	SaveAs  string             `yaml:"save_as"`
}

// StepResult pairs a finished run with its stored id, which is empty when
// the scenario runs without a store.
type StepResult struct {
	Name   string
	RunID  string
	Result *sim.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps", path)
	}
	return &scenario, nil
}

// StepConfig resolves the full config for one step.
func StepConfig(step ScenarioStep) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if step.Preset != "" {
		if cfg = config.GetPreset(step.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", step.Preset)
		}
	}
	if step.Config != "" {
		loaded, err := config.LoadOver(step.Config, cfg)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if step.Backend != "" {
		cfg.Run.Backend = step.Backend
	}
	if step.Steps > 0 {
		cfg.Run.Steps = step.Steps
	}
	if step.Seed != 0 {
		cfg.Run.Seed = step.Seed
	}
	if len(step.Params) > 0 {
		var err error
		if cfg, err = optim.ApplyParams(cfg, step.Params); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// RunScenario executes every step in order and saves each result to st
// when st is non-nil.
func RunScenario(ctx context.Context, scenario *Scenario, st *storage.Store) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := StepConfig(step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("%s_%d", scenario.Name, i+1)
		}
		slog.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "name", name)

		exp := experiment.New(cfg)
		if err := exp.Setup(ctx, cfg.Run.Seed); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		exp.Close()
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{Name: name, Result: result}
		if st != nil {
			if sr.RunID, err = st.Save(name, cfg, result); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

// MonteCarloConfig perturbs the physics scalars of Base by up to
// Perturbation (relative) in each trial.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
}

type MonteCarloResult struct {
	TrialID int
	Params  map[string]float64
	// Stable is true when every sample was finite and under max velocity.
	Stable        bool
	KineticEnergy float64
}

// RunMonteCarlo runs NumTrials randomly perturbed configurations.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		params := make(map[string]float64, len(analysis.SweepParams))
		for _, name := range analysis.SweepParams {
			v, err := analysis.GetParam(cfg.Base.Simulation, name)
			if err != nil {
				return nil, err
			}
			v *= 1 + (rng.Float64()-0.5)*2*cfg.Perturbation
			if name == "friction" {
				v = min(max(v, 0), 1)
			}
			params[name] = v
		}

		trialCfg, err := optim.ApplyParams(cfg.Base, params)
		if err != nil {
			return nil, err
		}
		exp := experiment.New(trialCfg)
		if err := exp.Setup(ctx, trialCfg.Run.Seed+int64(trial)); err != nil {
			return nil, err
		}
		result, err := exp.Run(ctx)
		exp.Close()
		if err != nil {
			return nil, err
		}

		results = append(results, MonteCarloResult{
			TrialID:       trial,
			Params:        params,
			Stable:        result.Metrics["stability"] >= 1,
			KineticEnergy: result.Metrics["kinetic_energy"],
		})

		if (trial+1)%10 == 0 {
			slog.Info("monte carlo progress", "done", trial+1, "trials", cfg.NumTrials)
		}
	}
	return results, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
