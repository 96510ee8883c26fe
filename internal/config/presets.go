package config

import (
	"sort"

	"github.com/san-kum/partlife/internal/dynamo"
)

func preset(mod func(c *Config)) *Config {
	c := DefaultConfig()
	mod(c)
	return c
}

var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"small": preset(func(c *Config) {
		c.Simulation.NumParticles = 2000
		c.Simulation.NumTypes = 5
		c.Simulation.World = dynamo.Vec2{X: 800, Y: 600}
		c.Run.Backend = "cpu"
		c.Run.Steps = 500
	}),
	"snakes": preset(func(c *Config) {
		c.Simulation.NumParticles = 12000
		c.Simulation.NumTypes = 6
		c.Rules.Type = "snake"
		c.Spawn.Pattern = "spiral"
	}),
	"chains": preset(func(c *Config) {
		c.Simulation.NumParticles = 16000
		c.Simulation.NumTypes = 5
		c.Rules.Type = "chains_soft"
		c.Spawn.Pattern = "ring"
	}),
	"swirl": preset(func(c *Config) {
		c.Simulation.NumParticles = 20000
		c.Simulation.NumTypes = 8
		c.Simulation.Friction = 0.2
		c.Rules.Type = "swirl"
		c.Spawn.Pattern = "disk"
	}),
	"rps": preset(func(c *Config) {
		c.Simulation.NumParticles = 24000
		c.Simulation.NumTypes = 3
		c.Rules.Type = "rock_paper_scissors"
		c.Spawn.Pattern = "clusters"
	}),
	"walled": preset(func(c *Config) {
		c.Simulation.NumParticles = 8000
		c.Simulation.Boundary = dynamo.Repel
		c.Rules.Type = "symmetric"
		c.Spawn.Pattern = "perlin"
	}),
	"cells": preset(func(c *Config) {
		c.Simulation.NumParticles = 3000
		c.Simulation.NumTypes = 3
		c.Simulation.World = dynamo.Vec2{X: 1000, Y: 1000}
		c.Spawn.Pattern = "grid"
		c.Rules.Rebalance = false
		c.Rules.Matrix = []float32{
			0.8, 0.4, -0.3,
			-0.2, 0.6, 0.5,
			0.3, -0.6, 0.2,
		}
	}),
	"stress": preset(func(c *Config) {
		c.Simulation.NumParticles = 250000
		c.Simulation.NumTypes = 12
		c.Simulation.World = dynamo.Vec2{X: 3840, Y: 2160}
		c.Simulation.NeighborBudget = 512
		c.Run.Backend = "gpu"
		c.Run.Steps = 200
		c.Run.TuneEvery = 50
	}),
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
