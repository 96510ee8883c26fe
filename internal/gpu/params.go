package gpu

import (
	"math"

	"github.com/san-kum/partlife/internal/dynamo"
)

// Word layout of a particle in the pos/type buffer.
const (
	posWords   = 4
	posX       = 0
	posY       = 1
	posType    = 2
	posTag     = 3
	velWords32 = 2
	velWords16 = 1
)

// Sim params flag bits.
const (
	FlagHalfVelocity uint32 = 1 << iota
)

// SimParams is the uniform block shared by the forces and advance kernels.
type SimParams struct {
	NumParticles      uint32
	NumTypes          uint32
	ForceFactor       float32
	Friction          float32
	RepelStrength     float32
	MaxVelocity       float32
	WorldW            float32
	WorldH            float32
	BoundaryMode      uint32
	WallRepelStrength float32
	ParticleSize      float32
	Dt                float32
	MaxBinDensity     float32
	NeighborBudget    uint32
	Flags             uint32
}

const (
	simParamsWords = 16
	simDtWord      = 11
)

// NewSimParams fills the uniform from cfg for n particles.
func NewSimParams(cfg *dynamo.Config, n int, halfVelocity bool) SimParams {
	s := SimParams{
		NumParticles:      uint32(n),
		NumTypes:          cfg.NumTypes,
		ForceFactor:       cfg.ForceFactor,
		Friction:          cfg.Friction,
		RepelStrength:     cfg.RepelStrength,
		MaxVelocity:       cfg.MaxVelocity,
		WorldW:            cfg.World.X,
		WorldH:            cfg.World.Y,
		BoundaryMode:      uint32(cfg.Boundary),
		WallRepelStrength: cfg.WallRepelStrength,
		ParticleSize:      cfg.ParticleSize,
		MaxBinDensity:     cfg.MaxBinDensity,
		NeighborBudget:    cfg.NeighborBudget,
	}
	if halfVelocity {
		s.Flags |= FlagHalfVelocity
	}
	return s
}

func (s SimParams) Words() []uint32 {
	w := make([]uint32, simParamsWords)
	w[0] = s.NumParticles
	w[1] = s.NumTypes
	w[2] = math.Float32bits(s.ForceFactor)
	w[3] = math.Float32bits(s.Friction)
	w[4] = math.Float32bits(s.RepelStrength)
	w[5] = math.Float32bits(s.MaxVelocity)
	w[6] = math.Float32bits(s.WorldW)
	w[7] = math.Float32bits(s.WorldH)
	w[8] = s.BoundaryMode
	w[9] = math.Float32bits(s.WallRepelStrength)
	w[10] = math.Float32bits(s.ParticleSize)
	w[simDtWord] = math.Float32bits(s.Dt)
	w[12] = math.Float32bits(s.MaxBinDensity)
	w[13] = s.NeighborBudget
	w[14] = s.Flags
	return w
}

func decodeSimParams(w []uint32) SimParams {
	return SimParams{
		NumParticles:      w[0],
		NumTypes:          w[1],
		ForceFactor:       math.Float32frombits(w[2]),
		Friction:          math.Float32frombits(w[3]),
		RepelStrength:     math.Float32frombits(w[4]),
		MaxVelocity:       math.Float32frombits(w[5]),
		WorldW:            math.Float32frombits(w[6]),
		WorldH:            math.Float32frombits(w[7]),
		BoundaryMode:      w[8],
		WallRepelStrength: math.Float32frombits(w[9]),
		ParticleSize:      math.Float32frombits(w[10]),
		Dt:                math.Float32frombits(w[simDtWord]),
		MaxBinDensity:     math.Float32frombits(w[12]),
		NeighborBudget:    w[13],
		Flags:             w[14],
	}
}

// config rebuilds the subset of dynamo.Config the kernels consume.
func (s SimParams) config() dynamo.Config {
	return dynamo.Config{
		NumParticles:      s.NumParticles,
		NumTypes:          s.NumTypes,
		ForceFactor:       s.ForceFactor,
		Friction:          s.Friction,
		RepelStrength:     s.RepelStrength,
		MaxVelocity:       s.MaxVelocity,
		Boundary:          dynamo.BoundaryMode(s.BoundaryMode),
		WallRepelStrength: s.WallRepelStrength,
		World:             dynamo.Vec2{X: s.WorldW, Y: s.WorldH},
		ParticleSize:      s.ParticleSize,
		MaxBinDensity:     s.MaxBinDensity,
		NeighborBudget:    s.NeighborBudget,
	}
}

// SpatialParams is the uniform block describing the bin grid.
type SpatialParams struct {
	CellSize     float32
	GridW        uint32
	GridH        uint32
	TotalBins    uint32
	NumParticles uint32
}

const spatialParamsWords = 8

func NewSpatialParams(g Grid, n int) SpatialParams {
	return SpatialParams{
		CellSize:     g.CellSize,
		GridW:        uint32(g.Width),
		GridH:        uint32(g.Height),
		TotalBins:    uint32(g.TotalBins()),
		NumParticles: uint32(n),
	}
}

func (s SpatialParams) Words() []uint32 {
	w := make([]uint32, spatialParamsWords)
	w[0] = math.Float32bits(s.CellSize)
	w[1] = s.GridW
	w[2] = s.GridH
	w[3] = s.TotalBins
	w[4] = s.NumParticles
	return w
}

func decodeSpatialParams(w []uint32) SpatialParams {
	return SpatialParams{
		CellSize:     math.Float32frombits(w[0]),
		GridW:        w[1],
		GridH:        w[2],
		TotalBins:    w[3],
		NumParticles: w[4],
	}
}

func (s SpatialParams) grid() Grid {
	return Grid{CellSize: s.CellSize, Width: int(s.GridW), Height: int(s.GridH)}
}
