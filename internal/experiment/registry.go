package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/generate"
	"github.com/san-kum/partlife/internal/metrics"
)

// Registry resolves the names used in configs and on the command line.
type Registry struct {
	backends map[string]func() (compute.Backend, error)
	metrics  map[string]func(cfg dynamo.Config) dynamo.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		backends: make(map[string]func() (compute.Backend, error)),
		metrics:  make(map[string]func(dynamo.Config) dynamo.Metric),
	}

	for _, name := range compute.Names() {
		name := name
		r.backends[name] = func() (compute.Backend, error) { return compute.New(name) }
	}

	r.metrics["kinetic_energy"] = func(dynamo.Config) dynamo.Metric { return metrics.NewKineticEnergy() }
	r.metrics["energy_drift"] = func(dynamo.Config) dynamo.Metric { return metrics.NewEnergyDrift() }
	r.metrics["mean_speed"] = func(dynamo.Config) dynamo.Metric { return metrics.NewMeanSpeed() }
	r.metrics["max_speed"] = func(dynamo.Config) dynamo.Metric { return metrics.NewMaxSpeed() }
	r.metrics["stability"] = func(cfg dynamo.Config) dynamo.Metric { return metrics.NewStability(cfg.MaxVelocity) }

	return r
}

func (r *Registry) GetBackend(name string) (compute.Backend, error) {
	fn, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return fn()
}

func (r *Registry) GetMetric(name string, cfg dynamo.Config) (dynamo.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(cfg), nil
}

func (r *Registry) ListBackends() []string { return sortedKeys(r.backends) }
func (r *Registry) ListMetrics() []string  { return sortedKeys(r.metrics) }
func (r *Registry) ListSpawns() []string   { return generate.SpawnPatterns() }
func (r *Registry) ListRules() []string    { return generate.RuleTypes() }

func (r *Registry) DefaultMetrics(cfg dynamo.Config) []dynamo.Metric {
	return metrics.Defaults(cfg)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
