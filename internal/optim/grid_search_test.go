package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/experiment"
	"github.com/san-kum/partlife/internal/metrics"
	"github.com/san-kum/partlife/internal/sim"
)

func baseConfig() *config.Config {
	cfg := config.GetPreset("small")
	cfg.Simulation.NumParticles = 200
	cfg.Simulation.NumTypes = 2
	cfg.Run.Steps = 3
	return cfg
}

func TestPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("points = %d, want 6", len(points))
	}
	if points[0]["a"] != 1 || points[0]["b"] != 10 || points[5]["a"] != 2 || points[5]["b"] != 30 {
		t.Errorf("order = %v", points)
	}
}

func TestApplyParams(t *testing.T) {
	base := baseConfig()
	cfg, err := ApplyParams(base, map[string]float64{"cell_size": 48, "neighbor_budget": 64, "friction": 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.CellSize != 48 || cfg.Simulation.NeighborBudget != 64 || cfg.Simulation.Friction != 0.5 {
		t.Errorf("applied = %+v", cfg.Simulation)
	}
	if base.Simulation.CellSize == 48 {
		t.Error("base config modified")
	}

	if _, err := ApplyParams(base, map[string]float64{"gravity": 1}); err == nil {
		t.Error("expected error for unknown param")
	}
	if _, err := ApplyParams(base, map[string]float64{"neighbor_budget": -1}); err == nil {
		t.Error("expected error for negative budget")
	}
}

func TestScore(t *testing.T) {
	res := &sim.Result{Metrics: map[string]float64{"max_speed": 4}, Perf: metrics.PerfStats{}}
	if v, err := Score(res, "max_speed"); err != nil || v != 4 {
		t.Errorf("score = %v, %v", v, err)
	}
	if _, err := Score(res, "nope"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	g := NewGridSearch([]string{"cell_size", "neighbor_budget"}, [][]float64{{40, 80}, {0, 16}})
	g.SetWorkers(2)

	best, score, trials, err := g.Search(ctx, ConfigBuilder(ctx, baseConfig(), 1), "max_speed")
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 4 {
		t.Fatalf("trials = %d", len(trials))
	}
	for _, tr := range trials {
		if tr.Err != nil {
			t.Errorf("trial %v failed: %v", tr.Params, tr.Err)
		}
		if tr.Score < score {
			t.Errorf("trial %v scored %v below best %v", tr.Params, tr.Score, score)
		}
	}
	if _, ok := best["cell_size"]; !ok {
		t.Errorf("best = %v", best)
	}
}

func TestSearch_AllFail(t *testing.T) {
	boom := errors.New("boom")
	g := NewGridSearch([]string{"cell_size"}, [][]float64{{1, 2}})
	_, _, trials, err := g.Search(context.Background(), func(map[string]float64) (*experiment.Experiment, error) {
		return nil, boom
	}, ObjectiveMillisPerStep)
	if err == nil {
		t.Fatal("expected error when every trial fails")
	}
	for _, tr := range trials {
		if !errors.Is(tr.Err, boom) {
			t.Errorf("trial err = %v", tr.Err)
		}
	}
}

func TestSearch_Mismatch(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1}})
	if _, _, _, err := g.Search(context.Background(), nil, "x"); err == nil {
		t.Error("expected error for mismatched grid")
	}
}
