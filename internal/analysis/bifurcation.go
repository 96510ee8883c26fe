package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/metrics"
)

// SweepParams lists the config fields a sweep can vary.
var SweepParams = []string{"friction", "force_factor", "repel_strength", "max_velocity"}

// SetParam writes a named scalar into cfg.
func SetParam(cfg *dynamo.Config, name string, v float64) error {
	switch name {
	case "friction":
		cfg.Friction = float32(v)
	case "force_factor":
		cfg.ForceFactor = float32(v)
	case "repel_strength":
		cfg.RepelStrength = float32(v)
	case "max_velocity":
		cfg.MaxVelocity = float32(v)
	default:
		return fmt.Errorf("unknown sweep parameter: %s", name)
	}
	return nil
}

// GetParam reads a named scalar from cfg.
func GetParam(cfg dynamo.Config, name string) (float64, error) {
	switch name {
	case "friction":
		return float64(cfg.Friction), nil
	case "force_factor":
		return float64(cfg.ForceFactor), nil
	case "repel_strength":
		return float64(cfg.RepelStrength), nil
	case "max_velocity":
		return float64(cfg.MaxVelocity), nil
	}
	return 0, fmt.Errorf("unknown sweep parameter: %s", name)
}

// SetupFunc returns a backend loaded with the initial state under cfg.
type SetupFunc func(cfg dynamo.Config) (compute.Backend, error)

// BifurcationPoint holds the distinct settled values of the observable
// for one parameter value.
type BifurcationPoint struct {
	Param  float64
	Values []float64
}

// BifurcationOptions controls a sweep. Resolution is the quantisation
// step used to decide that two recorded values are distinct.
type BifurcationOptions struct {
	Param      string
	Min, Max   float64
	Points     int
	Dt         float32
	Transient  int
	Record     int
	Resolution float64
}

// BifurcationDiagram sweeps a parameter, lets each run settle for
// Transient steps, then records the mean kinetic energy for Record steps.
func BifurcationDiagram(ctx context.Context, setup SetupFunc, base dynamo.Config, opts BifurcationOptions) ([]BifurcationPoint, error) {
	points := opts.Points
	if points <= 1 {
		points = 2
	}
	res := opts.Resolution
	if res <= 0 {
		res = 1e-3
	}
	step := (opts.Max - opts.Min) / float64(points-1)

	results := make([]BifurcationPoint, 0, points)
	for i := 0; i < points; i++ {
		param := opts.Min + float64(i)*step
		cfg := base
		if err := SetParam(&cfg, opts.Param, param); err != nil {
			return nil, err
		}

		values, err := settle(ctx, setup, cfg, opts, res)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", opts.Param, param, err)
		}
		results = append(results, BifurcationPoint{Param: param, Values: values})
	}
	return results, nil
}

func settle(ctx context.Context, setup SetupFunc, cfg dynamo.Config, opts BifurcationOptions, res float64) ([]float64, error) {
	b, err := setup(cfg)
	if err != nil {
		return nil, err
	}
	defer b.Cleanup()

	for t := 0; t < opts.Transient; t++ {
		if err := b.Step(ctx, opts.Dt); err != nil {
			return nil, err
		}
	}

	values := make([]float64, 0, 16)
	seen := make(map[int64]bool)
	for t := 0; t < opts.Record; t++ {
		if err := b.Step(ctx, opts.Dt); err != nil {
			return nil, err
		}
		ps, err := b.Particles(ctx)
		if err != nil {
			return nil, err
		}
		val := metrics.MeanKineticEnergy(ps)
		key := int64(math.Round(val / res))
		if !seen[key] {
			seen[key] = true
			values = append(values, val)
		}
	}
	return values, nil
}

// BifurcationToASCII renders the diagram, parameter on x.
func BifurcationToASCII(data []BifurcationPoint, width, height int) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	var minVal, maxVal float64
	found := false
	for _, p := range data {
		for _, v := range p.Values {
			if !found {
				minVal, maxVal = v, v
				found = true
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if !found {
		return ""
	}
	if maxVal == minVal {
		maxVal = minVal + 1
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for i, p := range data {
		col := i * width / len(data)
		if col >= width {
			col = width - 1
		}
		for _, v := range p.Values {
			row := height - 1 - int((v-minVal)/(maxVal-minVal)*float64(height-1))
			if row >= 0 && row < height {
				canvas[row][col] = '•'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteByte('\n')
	}
	return sb.String()
}
