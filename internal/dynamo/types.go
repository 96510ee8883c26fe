package dynamo

import (
	"fmt"
	"math"
)

// MaxTypes is the largest supported number of particle types.
const MaxTypes = 16

// Vec2 is a 2-D float32 vector.
type Vec2 struct {
	X float32 `yaml:"x" json:"x"`
	Y float32 `yaml:"y" json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) LenSq() float32       { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Len() float32         { return float32(math.Sqrt(float64(v.LenSq()))) }

func (v Vec2) String() string {
	return fmt.Sprintf("(%g, %g)", v.X, v.Y)
}

// Eq reports component-wise equality within eps.
func (v Vec2) Eq(o Vec2, eps float32) bool {
	return abs32(v.X-o.X) <= eps && abs32(v.Y-o.Y) <= eps
}

// Particle is one simulated particle. Type is in [0, NumTypes).
type Particle struct {
	X, Y   float32
	VX, VY float32
	Type   uint32
}

func (p Particle) Pos() Vec2 { return Vec2{p.X, p.Y} }
func (p Particle) Vel() Vec2 { return Vec2{p.VX, p.VY} }

// IsFinite reports whether position and velocity hold no NaN or Inf.
func (p Particle) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.VX) && isFinite(p.VY)
}

// ValidateParticles checks that every particle is finite and has a type
// below numTypes.
func ValidateParticles(ps []Particle, numTypes uint32) error {
	for i, p := range ps {
		if p.Type >= numTypes {
			return fmt.Errorf("%w: particle %d has type %d, want < %d", ErrInvalidConfig, i, p.Type, numTypes)
		}
		if !p.IsFinite() {
			return fmt.Errorf("%w: particle %d is not finite", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Metric accumulates a scalar over observed particle snapshots.
type Metric interface {
	Name() string
	Observe(ps []Particle, step int)
	Value() float64
	Reset()
}

// Observer is notified with a particle snapshot after sampled steps.
type Observer interface {
	OnStep(step int, ps []Particle)
}

// Config holds the parameters consumed by the physics backends.
type Config struct {
	NumParticles      uint32       `yaml:"num_particles" json:"num_particles"`
	NumTypes          uint32       `yaml:"num_types" json:"num_types"`
	ForceFactor       float32      `yaml:"force_factor" json:"force_factor"`
	Friction          float32      `yaml:"friction" json:"friction"`
	RepelStrength     float32      `yaml:"repel_strength" json:"repel_strength"`
	MaxVelocity       float32      `yaml:"max_velocity" json:"max_velocity"`
	Boundary          BoundaryMode `yaml:"boundary" json:"boundary"`
	WallRepelStrength float32      `yaml:"wall_repel_strength" json:"wall_repel_strength"`
	World             Vec2         `yaml:"world" json:"world"`
	ParticleSize      float32      `yaml:"particle_size" json:"particle_size"`
	UseSpatialHash    bool         `yaml:"use_spatial_hash" json:"use_spatial_hash"`
	CellSize          float32      `yaml:"cell_size" json:"cell_size"`
	MaxBinDensity     float32      `yaml:"max_bin_density" json:"max_bin_density"`
	// NeighborBudget caps candidates examined per particle; 0 is unlimited.
	NeighborBudget uint32 `yaml:"neighbor_budget" json:"neighbor_budget"`
}

func DefaultConfig() Config {
	return Config{
		NumParticles:      64000,
		NumTypes:          7,
		ForceFactor:       1.0,
		Friction:          0.3,
		RepelStrength:     3.0,
		MaxVelocity:       500.0,
		Boundary:          Wrap,
		WallRepelStrength: 100.0,
		World:             Vec2{1920, 1080},
		ParticleSize:      0.5,
		UseSpatialHash:    true,
		CellSize:          64.0,
		MaxBinDensity:     5000.0,
		NeighborBudget:    0,
	}
}

// Validate checks the scalar parameters.
func (c Config) Validate() error {
	switch {
	case c.NumParticles == 0:
		return fmt.Errorf("%w: num_particles must be positive", ErrInvalidConfig)
	case c.NumTypes == 0 || c.NumTypes > MaxTypes:
		return fmt.Errorf("%w: num_types must be in [1, %d], got %d", ErrInvalidConfig, MaxTypes, c.NumTypes)
	case !isFinite(c.ForceFactor) || c.ForceFactor <= 0:
		return fmt.Errorf("%w: force_factor must be positive, got %g", ErrInvalidConfig, c.ForceFactor)
	case !isFinite(c.Friction) || c.Friction < 0 || c.Friction > 1:
		return fmt.Errorf("%w: friction must be in [0, 1], got %g", ErrInvalidConfig, c.Friction)
	case !isFinite(c.RepelStrength) || c.RepelStrength < 0:
		return fmt.Errorf("%w: repel_strength must be non-negative, got %g", ErrInvalidConfig, c.RepelStrength)
	case !isFinite(c.MaxVelocity) || c.MaxVelocity <= 0:
		return fmt.Errorf("%w: max_velocity must be positive, got %g", ErrInvalidConfig, c.MaxVelocity)
	case !isFinite(c.World.X) || !isFinite(c.World.Y) || c.World.X <= 0 || c.World.Y <= 0:
		return fmt.Errorf("%w: world size must be positive, got %v", ErrInvalidConfig, c.World)
	case !isFinite(c.CellSize) || c.CellSize < 0:
		return fmt.Errorf("%w: cell_size must be non-negative, got %g", ErrInvalidConfig, c.CellSize)
	case !isFinite(c.MaxBinDensity) || c.MaxBinDensity < 0:
		return fmt.Errorf("%w: max_bin_density must be non-negative, got %g", ErrInvalidConfig, c.MaxBinDensity)
	}
	if !c.Boundary.Valid() {
		return fmt.Errorf("%w: unknown boundary mode %d", ErrInvalidConfig, c.Boundary)
	}
	return nil
}

// ValidateWith checks the config together with the rule matrices it will
// run against.
func (c Config) ValidateWith(rules *InteractionMatrix, radii *RadiusMatrix) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if rules == nil || radii == nil {
		return fmt.Errorf("%w: missing matrices", ErrInvalidConfig)
	}
	if rules.Size() != int(c.NumTypes) || radii.Size() != int(c.NumTypes) {
		return fmt.Errorf("%w: types=%d interaction=%d radius=%d",
			ErrDimensionMismatch, c.NumTypes, rules.Size(), radii.Size())
	}
	if err := rules.Validate(); err != nil {
		return err
	}
	return radii.Validate()
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
