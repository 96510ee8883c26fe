package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/generate"
)

const (
	DefaultBackend     = "auto"
	DefaultSteps       = 1000
	DefaultDt          = 1.0 / 60.0
	DefaultSeed        = 1
	DefaultSampleEvery = 10
	DefaultOutputDir   = "runs"
	DefaultSpawn       = "random"
	DefaultRules       = "random"
)

// Config is the on-disk description of a run.
type Config struct {
	Simulation dynamo.Config `yaml:"simulation"`
	Run        RunConfig     `yaml:"run"`
	Spawn      SpawnConfig   `yaml:"spawn"`
	Rules      RulesConfig   `yaml:"rules"`
}

type RunConfig struct {
	Backend     string  `yaml:"backend"`
	Steps       int     `yaml:"steps"`
	Dt          float32 `yaml:"dt"`
	Seed        int64   `yaml:"seed"`
	SampleEvery int     `yaml:"sample_every"`
	// TuneEvery runs the cell size tuner every n steps; 0 disables it.
	TuneEvery    int    `yaml:"tune_every"`
	HalfVelocity bool   `yaml:"half_velocity"`
	OutputDir    string `yaml:"output_dir"`
}

type SpawnConfig struct {
	Pattern string `yaml:"pattern"`
}

type RulesConfig struct {
	Type         string  `yaml:"type"`
	MinRadius    float32 `yaml:"min_radius"`
	MaxRadius    float32 `yaml:"max_radius"`
	RadiusSpread float32 `yaml:"radius_spread"`
	Rebalance    bool    `yaml:"rebalance"`

	// Explicit matrices, row-major num_types x num_types. When set they
	// replace the generated ones.
	Matrix     []float32 `yaml:"matrix,omitempty"`
	MinRadii   []float32 `yaml:"min_radii,omitempty"`
	MaxRadii   []float32 `yaml:"max_radii,omitempty"`
	Symmetrize bool      `yaml:"symmetrize,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Simulation: dynamo.DefaultConfig(),
		Run: RunConfig{
			Backend:     DefaultBackend,
			Steps:       DefaultSteps,
			Dt:          DefaultDt,
			Seed:        DefaultSeed,
			SampleEvery: DefaultSampleEvery,
			OutputDir:   DefaultOutputDir,
		},
		Spawn: SpawnConfig{Pattern: DefaultSpawn},
		Rules: RulesConfig{
			Type:      DefaultRules,
			MinRadius: generate.DefaultMinRadius,
			MaxRadius: generate.DefaultMaxRadius,
			Rebalance: true,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of a copy of base, so keys missing from the
// file keep base's values.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Rules.Matrix = append([]float32(nil), c.Rules.Matrix...)
	out.Rules.MinRadii = append([]float32(nil), c.Rules.MinRadii...)
	out.Rules.MaxRadii = append([]float32(nil), c.Rules.MaxRadii...)
	return &out
}

func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}

	switch {
	case c.Run.Steps < 0:
		return fmt.Errorf("%w: steps must be non-negative, got %d", dynamo.ErrInvalidConfig, c.Run.Steps)
	case c.Run.Dt <= 0:
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidConfig, c.Run.Dt)
	case c.Run.SampleEvery < 0 || c.Run.TuneEvery < 0:
		return fmt.Errorf("%w: sample_every and tune_every must be non-negative", dynamo.ErrInvalidConfig)
	case c.Rules.MinRadius < 0 || c.Rules.MaxRadius < c.Rules.MinRadius:
		return fmt.Errorf("%w: radius band [%g, %g]", dynamo.ErrInvalidConfig, c.Rules.MinRadius, c.Rules.MaxRadius)
	case c.Rules.RadiusSpread < 0 || c.Rules.RadiusSpread >= 1:
		return fmt.Errorf("%w: radius_spread must be in [0, 1), got %g", dynamo.ErrInvalidConfig, c.Rules.RadiusSpread)
	}

	if !contains(generate.SpawnPatterns(), c.Spawn.Pattern) {
		return fmt.Errorf("%w: unknown spawn pattern %q", dynamo.ErrInvalidConfig, c.Spawn.Pattern)
	}
	if c.Rules.Matrix == nil && !contains(generate.RuleTypes(), c.Rules.Type) {
		return fmt.Errorf("%w: unknown rule type %q", dynamo.ErrInvalidConfig, c.Rules.Type)
	}

	cells := int(c.Simulation.NumTypes * c.Simulation.NumTypes)
	for name, m := range map[string][]float32{
		"matrix":    c.Rules.Matrix,
		"min_radii": c.Rules.MinRadii,
		"max_radii": c.Rules.MaxRadii,
	} {
		if m != nil && len(m) != cells {
			return fmt.Errorf("%w: %s has %d entries, want %d", dynamo.ErrDimensionMismatch, name, len(m), cells)
		}
	}
	if (c.Rules.MinRadii == nil) != (c.Rules.MaxRadii == nil) {
		return fmt.Errorf("%w: min_radii and max_radii must be set together", dynamo.ErrInvalidConfig)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
