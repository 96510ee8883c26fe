package optim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/experiment"
	"github.com/san-kum/partlife/internal/sim"
)

// ObjectiveMillisPerStep scores a trial by its average step time.
const ObjectiveMillisPerStep = "ms_per_step"

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}
}

// SetWorkers runs up to n trials at once. Timing objectives are only
// comparable with one worker.
func (g *GridSearch) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	g.workers = n
}

// Points enumerates the grid in row-major order.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.enumerate(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[g.paramNames[depth]] = val
		g.enumerate(depth+1, next, out)
	}
}

// Search evaluates every grid point and returns the lowest-scoring
// parameters, its score, and every trial in grid order. Failed trials are
// kept with their error and never win.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("grid search: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	trials := make([]Trial, len(points))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, params := range points {
		i, params := i, params
		eg.Go(func() error {
			score, err := runTrial(ctx, buildExperiment, params, metricName)
			trials[i] = Trial{Params: params, Score: score, Err: err}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("trial failed", "params", params, "err", err)
				return nil
			}
			slog.Debug("trial done", "params", params, metricName, score)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, trials, err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, t := range trials {
		if t.Err == nil && t.Score < best {
			best, bestParams = t.Score, t.Params
		}
	}
	if bestParams == nil {
		return nil, 0, trials, fmt.Errorf("grid search: all %d trials failed", len(trials))
	}
	return bestParams, best, trials, nil
}

func runTrial(
	ctx context.Context,
	build func(map[string]float64) (*experiment.Experiment, error),
	params map[string]float64,
	metricName string,
) (float64, error) {
	exp, err := build(params)
	if err != nil {
		return 0, err
	}
	defer exp.Close()

	result, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	return Score(result, metricName)
}

// Score reads the objective from a run result.
func Score(result *sim.Result, metricName string) (float64, error) {
	if metricName == ObjectiveMillisPerStep {
		return result.Perf.MillisPerStep(), nil
	}
	val, ok := result.Metrics[metricName]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", metricName)
	}
	return val, nil
}

// ApplyParams writes grid parameters into a copy of base. cell_size and
// neighbor_budget are understood in addition to the sweep parameters.
func ApplyParams(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := params[name]
		switch name {
		case "cell_size":
			cfg.Simulation.CellSize = float32(v)
		case "neighbor_budget":
			if v < 0 {
				return nil, fmt.Errorf("neighbor_budget must be non-negative, got %g", v)
			}
			cfg.Simulation.NeighborBudget = uint32(v)
		case "max_bin_density":
			cfg.Simulation.MaxBinDensity = float32(v)
		default:
			if err := analysis.SetParam(&cfg.Simulation, name, v); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

// ConfigBuilder returns a build function for Search that applies params
// to base and sets up an experiment with seed.
func ConfigBuilder(ctx context.Context, base *config.Config, seed int64) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := ApplyParams(base, params)
		if err != nil {
			return nil, err
		}
		exp := experiment.New(cfg)
		if err := exp.Setup(ctx, seed); err != nil {
			return nil, err
		}
		return exp, nil
	}
}
