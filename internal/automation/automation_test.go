package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/storage"
)

const scenarioYAML = `name: smoke
description: two short cpu runs
steps:
  - preset: small
    steps: 5
    seed: 3
    params:
      friction: 0.5
    save_as: first
  - preset: cells
    backend: cpu
    steps: 4
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "smoke" || len(sc.Steps) != 2 {
		t.Fatalf("got %+v", sc)
	}
	if sc.Steps[0].Params["friction"] != 0.5 {
		t.Error("params not parsed")
	}
}

func TestLoadScenario_Empty(t *testing.T) {
	if _, err := LoadScenario(writeScenario(t, "name: empty\n")); err == nil {
		t.Error("expected error for scenario without steps")
	}
}

func TestStepConfig(t *testing.T) {
	cfg, err := StepConfig(ScenarioStep{Preset: "small", Steps: 7, Seed: 9, Params: map[string]float64{"cell_size": 90}})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Steps != 7 || cfg.Run.Seed != 9 || cfg.Simulation.CellSize != 90 {
		t.Errorf("overrides not applied: %+v", cfg.Run)
	}
	if _, err := StepConfig(ScenarioStep{Preset: "nope"}); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	st := storage.New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	results, err := RunScenario(context.Background(), sc, st)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Name != "first" || results[1].Name != "smoke_2" {
		t.Errorf("names = %s, %s", results[0].Name, results[1].Name)
	}
	if results[0].Result.StepsTaken != 5 {
		t.Errorf("steps = %d", results[0].Result.StepsTaken)
	}
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("stored %d runs, want 2", len(runs))
	}
}

func TestMonteCarlo(t *testing.T) {
	base := config.GetPreset("small")
	base.Simulation.NumParticles = 200
	base.Run.Steps = 5
	base.Run.SampleEvery = 1

	results, err := RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Base: base, Perturbation: 0.2, NumTrials: 3, Seed: 11,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for _, r := range results {
		if f := r.Params["friction"]; f < 0 || f > 1 {
			t.Errorf("friction %g out of range", f)
		}
	}
	stable, unstable := MonteCarloStats(results)
	if stable+unstable != 3 {
		t.Errorf("stats = %d + %d", stable, unstable)
	}
}
