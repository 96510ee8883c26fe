package analysis

import (
	"context"
	"log/slog"

	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/dynamo"
)

// Tuner bounds.
const (
	ShrinkFactor  = 0.8
	GrowFactor    = 1.1
	MinTunedCell  = 20
	MaxTunedCell  = 100
	crowdedFactor = 2.0
	sparseFactor  = 0.5
)

// Tuner adjusts the grid cell size from observed bin occupancy. A cell
// holding more than twice the density target shrinks the grid; a peak
// under half the target grows it.
type Tuner struct {
	MaxBinDensity float32
	adjustments   int
}

func NewTuner(maxBinDensity float32) *Tuner {
	return &Tuner{MaxBinDensity: maxBinDensity}
}

func (t *Tuner) Adjustments() int { return t.adjustments }

// Adjust returns the next cell size. The result never drops below
// max(maxRadius, MinTunedCell) and growth stops at MaxTunedCell.
func (t *Tuner) Adjust(cell, maxRadius float32, counts []uint32) (float32, bool) {
	if t.MaxBinDensity <= 0 || len(counts) == 0 {
		return cell, false
	}
	var peak uint32
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}

	floor := maxRadius
	if floor < MinTunedCell {
		floor = MinTunedCell
	}

	next := cell
	switch {
	case float32(peak) > crowdedFactor*t.MaxBinDensity:
		next = cell * ShrinkFactor
		if next < floor {
			next = floor
		}
	case float32(peak) < sparseFactor*t.MaxBinDensity && cell < MaxTunedCell:
		next = cell * GrowFactor
		if next > MaxTunedCell {
			next = MaxTunedCell
		}
	}
	if next == cell {
		return cell, false
	}
	t.adjustments++
	return next, true
}

// Tune reads the backend's bin counts and pushes a new cell size into cfg
// and the backend when it changes.
func (t *Tuner) Tune(ctx context.Context, b compute.Backend, cfg *dynamo.Config, maxRadius float32) (bool, error) {
	counts, err := b.BinCounts(ctx)
	if err != nil {
		return false, err
	}
	cell, changed := t.Adjust(cfg.CellSize, maxRadius, counts)
	if !changed {
		return false, nil
	}

	slog.Info("cell size tuned", "from", cfg.CellSize, "to", cell, "bins", ComputeBinStats(counts))
	next := *cfg
	next.CellSize = cell
	if err := b.SetConfig(next); err != nil {
		return false, err
	}
	*cfg = next
	return true, nil
}
