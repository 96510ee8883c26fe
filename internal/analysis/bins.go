package analysis

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BinStats summarises per-bin particle counts.
type BinStats struct {
	Bins     int
	Occupied int
	Total    int
	Max      int
	Mean     float64
	StdDev   float64
	P50      float64
	P95      float64
	// Imbalance is Max over the mean of occupied bins.
	Imbalance float64
}

func ComputeBinStats(counts []uint32) BinStats {
	s := BinStats{Bins: len(counts)}
	if len(counts) == 0 {
		return s
	}

	xs := make([]float64, len(counts))
	occupied := make([]float64, 0, len(counts))
	for i, c := range counts {
		xs[i] = float64(c)
		s.Total += int(c)
		if c > 0 {
			occupied = append(occupied, float64(c))
		}
	}
	s.Occupied = len(occupied)
	s.Max = int(floats.Max(xs))
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		s.StdDev = 0
	}

	sort.Float64s(xs)
	s.P50 = stat.Quantile(0.5, stat.Empirical, xs, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, xs, nil)

	if len(occupied) > 0 {
		if m := stat.Mean(occupied, nil); m > 0 {
			s.Imbalance = float64(s.Max) / m
		}
	}
	return s
}

func (s BinStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bins", s.Bins),
		slog.Int("occupied", s.Occupied),
		slog.Int("total", s.Total),
		slog.Int("max", s.Max),
		slog.Float64("mean", s.Mean),
		slog.Float64("stddev", s.StdDev),
		slog.Float64("p95", s.P95),
		slog.Float64("imbalance", s.Imbalance),
	)
}

// Histogram buckets counts into width-wide ranges: out[i] is the number
// of bins holding [i*width, (i+1)*width) particles.
func Histogram(counts []uint32, width int) []int {
	if width < 1 {
		width = 1
	}
	var out []int
	for _, c := range counts {
		b := int(c) / width
		for len(out) <= b {
			out = append(out, 0)
		}
		out[b]++
	}
	return out
}
