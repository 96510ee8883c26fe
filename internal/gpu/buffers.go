package gpu

import (
	"fmt"

	"github.com/san-kum/partlife/internal/dynamo"
)

// BinRole names the use a bin buffer serves within one step.
type BinRole int

const (
	// BinCounting receives per-bin counts, shifted by one slot.
	BinCounting BinRole = iota
	// BinOffsets holds exclusive start offsets after the scan.
	BinOffsets
	// BinSortSlots holds per-bin insertion cursors during the sort.
	BinSortSlots
)

func (r BinRole) String() string {
	switch r {
	case BinCounting:
		return "counting"
	case BinOffsets:
		return "offsets"
	case BinSortSlots:
		return "sort_slots"
	default:
		return fmt.Sprintf("bin_role(%d)", int(r))
	}
}

// Parity selects one of the two bin buffers.
type Parity int

const (
	ParityA Parity = iota
	ParityB
)

func (p Parity) Other() Parity { return 1 - p }

func (p Parity) String() string {
	if p == ParityA {
		return "A"
	}
	return "B"
}

// OffsetsParity is the buffer holding final offsets after passes scan
// passes starting from A.
func OffsetsParity(passes int) Parity {
	if passes%2 == 0 {
		return ParityA
	}
	return ParityB
}

// SimulationBuffers holds the double-buffered particle state and the
// per-simulation uniforms and matrices.
type SimulationBuffers struct {
	PosType [2]Buffer
	Vel     [2]Buffer
	Params  Buffer

	Interaction Buffer
	MinRadius   Buffer
	MaxRadius   Buffer
	Stats       Buffer

	NumParticles int
	NumTypes     int
	HalfVelocity bool

	current int
}

const statsWords = 4

// Stats buffer words.
const (
	statBudgetHits = 0
)

func velWords(half bool) int {
	if half {
		return velWords16
	}
	return velWords32
}

// NewSimulationBuffers allocates every simulation buffer. On error any
// partial allocation is released.
func NewSimulationBuffers(dev Device, n, numTypes int, half bool) (_ *SimulationBuffers, err error) {
	b := &SimulationBuffers{NumParticles: n, NumTypes: numTypes, HalfVelocity: half}
	defer func() {
		if err != nil {
			b.Destroy(dev)
		}
	}()

	vw := velWords(half)
	for i := 0; i < 2; i++ {
		if b.PosType[i], err = dev.CreateBuffer(fmt.Sprintf("pos_type_%d", i), n*posWords); err != nil {
			return nil, err
		}
		if b.Vel[i], err = dev.CreateBuffer(fmt.Sprintf("vel_%d", i), n*vw); err != nil {
			return nil, err
		}
	}
	if b.Params, err = dev.CreateBuffer("sim_params", simParamsWords); err != nil {
		return nil, err
	}
	mat := numTypes * numTypes
	if b.Interaction, err = dev.CreateBuffer("interaction", mat); err != nil {
		return nil, err
	}
	if b.MinRadius, err = dev.CreateBuffer("min_radius", mat); err != nil {
		return nil, err
	}
	if b.MaxRadius, err = dev.CreateBuffer("max_radius", mat); err != nil {
		return nil, err
	}
	if b.Stats, err = dev.CreateBuffer("stats", statsWords); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SimulationBuffers) Current() int { return b.current }

func (b *SimulationBuffers) CurrentPosType() Buffer { return b.PosType[b.current] }
func (b *SimulationBuffers) CurrentVel() Buffer     { return b.Vel[b.current] }

func (b *SimulationBuffers) flip() { b.current = 1 - b.current }

// Destroy releases every allocated buffer.
func (b *SimulationBuffers) Destroy(dev Device) {
	for _, buf := range []Buffer{
		b.PosType[0], b.PosType[1], b.Vel[0], b.Vel[1],
		b.Params, b.Interaction, b.MinRadius, b.MaxRadius, b.Stats,
	} {
		if buf != nil {
			dev.DestroyBuffer(buf)
		}
	}
}

// SpatialBuffers holds the bin buffers A and B, the grid uniform and one
// step uniform per prefix pass.
type SpatialBuffers struct {
	Bins   [2]Buffer
	Params Buffer
	Steps  []Buffer

	Grid   Grid
	Passes int
}

// NewSpatialBuffers allocates bin buffers for g and uploads the grid and
// pass uniforms.
func NewSpatialBuffers(dev Device, g Grid, n int) (_ *SpatialBuffers, err error) {
	s := &SpatialBuffers{Grid: g, Passes: PrefixSumPasses(g.TotalBinsWithEnd())}
	defer func() {
		if err != nil {
			s.Destroy(dev)
		}
	}()

	words := g.TotalBinsWithEnd()
	for i := range s.Bins {
		if s.Bins[i], err = dev.CreateBuffer("bins_"+Parity(i).String(), words); err != nil {
			return nil, err
		}
	}
	if s.Params, err = dev.CreateBuffer("spatial_params", spatialParamsWords); err != nil {
		return nil, err
	}
	if err = dev.WriteBuffer(s.Params, 0, NewSpatialParams(g, n).Words()); err != nil {
		return nil, err
	}

	s.Steps = make([]Buffer, s.Passes)
	for p := range s.Steps {
		if s.Steps[p], err = dev.CreateBuffer(fmt.Sprintf("prefix_step_%d", p), 1); err != nil {
			return nil, err
		}
		if err = dev.WriteBuffer(s.Steps[p], 0, []uint32{1 << p}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Role returns the bin buffer serving role during a step.
func (s *SpatialBuffers) Role(role BinRole) Buffer {
	offsets := OffsetsParity(s.Passes)
	switch role {
	case BinCounting:
		return s.Bins[ParityA]
	case BinOffsets:
		return s.Bins[offsets]
	case BinSortSlots:
		return s.Bins[offsets.Other()]
	default:
		panic(fmt.Sprintf("gpu: unknown bin role %d", int(role)))
	}
}

// Destroy releases every allocated buffer.
func (s *SpatialBuffers) Destroy(dev Device) {
	for _, buf := range append([]Buffer{s.Bins[0], s.Bins[1], s.Params}, s.Steps...) {
		if buf != nil {
			dev.DestroyBuffer(buf)
		}
	}
}

// encodeParticles packs ps into pos/type and velocity words. The tag word
// holds the particle index.
func encodeParticles(ps []dynamo.Particle, half bool) (pos, vel []uint32) {
	pos = make([]uint32, len(ps)*posWords)
	vel = make([]uint32, len(ps)*velWords(half))
	for i, p := range ps {
		o := i * posWords
		pos[o+posX] = f32bits(p.X)
		pos[o+posY] = f32bits(p.Y)
		pos[o+posType] = p.Type
		pos[o+posTag] = uint32(i)
		storeVel(vel, i, p.VX, p.VY, half)
	}
	return pos, vel
}

// decodeParticles restores upload order from the tag word.
func decodeParticles(pos, vel []uint32, half bool) ([]dynamo.Particle, error) {
	n := len(pos) / posWords
	out := make([]dynamo.Particle, n)
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		o := i * posWords
		tag := pos[o+posTag]
		if int(tag) >= n || seen[tag] {
			return nil, fmt.Errorf("gpu: corrupt particle tag %d at slot %d", tag, i)
		}
		seen[tag] = true
		vx, vy := loadVel(vel, i, half)
		out[tag] = dynamo.Particle{
			X:    f32frombits(pos[o+posX]),
			Y:    f32frombits(pos[o+posY]),
			VX:   vx,
			VY:   vy,
			Type: pos[o+posType],
		}
	}
	return out, nil
}
