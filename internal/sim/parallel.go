package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Factory builds a loaded Runner for one seed.
type Factory func(ctx context.Context, seed int64) (*Runner, error)

// Ensemble runs the same scenario over consecutive seeds in parallel.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart int64
	workers   int
}

func NewEnsemble(f Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{factory: f, numRuns: numRuns, seedStart: seedStart, workers: runtime.GOMAXPROCS(0)}
}

// SetWorkers caps concurrent runs; n < 1 means one.
func (e *Ensemble) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	e.workers = n
}

// Run executes every seed. The first failure cancels the remaining runs.
func (e *Ensemble) Run(ctx context.Context, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < e.numRuns; i++ {
		idx := i
		g.Go(func() error {
			seed := e.seedStart + int64(idx)
			r, err := e.factory(ctx, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			defer r.Close()

			res, err := r.Run(ctx, cfg)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			results[idx] = res
			slog.Debug("ensemble run done", "seed", seed, "elapsed", res.Elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summary aggregates one metric across ensemble runs.
type Summary struct {
	Metric string
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Aggregate summarises every metric present in all results, sorted by
// name.
func Aggregate(results []*Result) []Summary {
	if len(results) == 0 {
		return nil
	}
	names := make([]string, 0, len(results[0].Metrics))
	for name := range results[0].Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		vals := make([]float64, 0, len(results))
		for _, r := range results {
			if v, ok := r.Metrics[name]; ok && !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) != len(results) {
			continue
		}
		s := Summary{Metric: name, Min: floats.Min(vals), Max: floats.Max(vals)}
		s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
		if len(vals) < 2 {
			s.StdDev = 0
		}
		out = append(out, s)
	}
	return out
}
