package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/partlife/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Run.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Simulation.Boundary != dynamo.Wrap {
		t.Errorf("expected wrap boundary, got %s", cfg.Simulation.Boundary)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("small")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Simulation.NumParticles != 2000 {
		t.Errorf("expected 2000 particles, got %d", cfg.Simulation.NumParticles)
	}

	cfg.Simulation.NumParticles = 1
	if Presets["small"].Simulation.NumParticles != 2000 {
		t.Error("GetPreset returned a shared config")
	}
}

func TestGetPreset_Unknown(t *testing.T) {
	if cfg := GetPreset("nope"); cfg != nil {
		t.Error("expected nil for unknown preset")
	}
}

func TestPresetsValid(t *testing.T) {
	names := ListPresets()
	if len(names) != len(Presets) {
		t.Fatalf("listed %d of %d presets", len(names), len(Presets))
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			if err := GetPreset(name).Validate(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := GetPreset("cells")
	cfg.Simulation.Boundary = dynamo.MirrorWrap
	cfg.Run.Seed = 99
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Simulation.Boundary != dynamo.MirrorWrap {
		t.Errorf("boundary = %s", got.Simulation.Boundary)
	}
	if got.Run.Seed != 99 || got.Spawn.Pattern != "grid" {
		t.Errorf("run/spawn = %+v %+v", got.Run, got.Spawn)
	}
	if len(got.Rules.Matrix) != 9 || got.Rules.Matrix[1] != 0.4 {
		t.Errorf("matrix = %v", got.Rules.Matrix)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "simulation:\n  num_particles: 500\n  boundary: repel\nrun:\n  steps: 20\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.NumParticles != 500 || cfg.Run.Steps != 20 {
		t.Errorf("overrides lost: %+v", cfg.Run)
	}
	if cfg.Simulation.Boundary != dynamo.Repel {
		t.Errorf("boundary = %s", cfg.Simulation.Boundary)
	}
	if cfg.Simulation.NumTypes != 7 || cfg.Spawn.Pattern != DefaultSpawn {
		t.Errorf("defaults lost: types=%d spawn=%s", cfg.Simulation.NumTypes, cfg.Spawn.Pattern)
	}
}

func TestLoad_BadBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("simulation:\n  boundary: bouncy\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown boundary")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
		want error
	}{
		{"zero dt", func(c *Config) { c.Run.Dt = 0 }, dynamo.ErrInvalidConfig},
		{"negative steps", func(c *Config) { c.Run.Steps = -1 }, dynamo.ErrInvalidConfig},
		{"unknown spawn", func(c *Config) { c.Spawn.Pattern = "teapot" }, dynamo.ErrInvalidConfig},
		{"unknown rules", func(c *Config) { c.Rules.Type = "teapot" }, dynamo.ErrInvalidConfig},
		{"inverted band", func(c *Config) { c.Rules.MinRadius = 90 }, dynamo.ErrInvalidConfig},
		{"matrix size", func(c *Config) { c.Rules.Matrix = []float32{1, 2} }, dynamo.ErrDimensionMismatch},
		{"half radii", func(c *Config) { c.Rules.MinRadii = make([]float32, 49) }, dynamo.ErrInvalidConfig},
		{"too many types", func(c *Config) { c.Simulation.NumTypes = 17 }, dynamo.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadOver_KeepsBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "over.yaml")
	if err := os.WriteFile(path, []byte("run:\n  steps: 42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	base := GetPreset("cells")
	cfg, err := LoadOver(path, base)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Steps != 42 {
		t.Errorf("steps = %d, want 42", cfg.Run.Steps)
	}
	if cfg.Simulation.NumTypes != 3 || len(cfg.Rules.Matrix) != 9 {
		t.Error("preset values lost")
	}
	if base.Run.Steps == 42 {
		t.Error("base was modified")
	}
}
