package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/physics"
)

// Options configures a Pipeline.
type Options struct {
	// HalfVelocity stores velocity as two IEEE half floats per particle.
	HalfVelocity bool
}

// Pipeline owns the device buffers for one simulation and records the
// per-step command list.
type Pipeline struct {
	dev  Device
	cfg  dynamo.Config
	opts Options

	sim   *SimulationBuffers
	spat  *SpatialBuffers
	spatN int
	cache BindGroupCache
	dirty bool

	rules *dynamo.InteractionMatrix
	radii *dynamo.RadiusMatrix

	generation uint64
	steps      int
	phases     []Phase
	timings    PhaseTimings
}

// NewPipeline validates cfg and prepares an empty pipeline on dev.
func NewPipeline(dev Device, cfg dynamo.Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{dev: dev, cfg: cfg, opts: opts}, nil
}

func (p *Pipeline) Device() Device        { return p.dev }
func (p *Pipeline) Config() dynamo.Config { return p.cfg }
func (p *Pipeline) Steps() int            { return p.steps }

// CurrentIndex is the particle buffer index holding the current state.
func (p *Pipeline) CurrentIndex() int {
	if p.sim == nil {
		return 0
	}
	return p.sim.Current()
}

// Buffers exposes the live buffers. Either may be nil before the first
// upload and step.
func (p *Pipeline) Buffers() (*SimulationBuffers, *SpatialBuffers) { return p.sim, p.spat }

func (p *Pipeline) Cache() *BindGroupCache { return &p.cache }

// Grid is the bin grid the next step will use.
func (p *Pipeline) Grid() Grid {
	if p.radii == nil {
		return NewGrid(p.cfg.CellSize, p.cfg.World)
	}
	return NewGrid(physics.CellSize(&p.cfg, p.radii), p.cfg.World)
}

func (p *Pipeline) TotalBinsWithEnd() int { return p.Grid().TotalBinsWithEnd() }
func (p *Pipeline) PrefixSumPasses() int  { return PrefixSumPasses(p.TotalBinsWithEnd()) }

// SetConfig replaces the simulation parameters. Rules sized for a different
// type count are dropped and must be set again.
func (p *Pipeline) SetConfig(cfg dynamo.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.NumTypes != p.cfg.NumTypes {
		p.rules, p.radii = nil, nil
	}
	p.cfg = cfg
	p.dirty = true
	return p.writeParams()
}

// SetCellSize changes the requested bin size. The grid is rebuilt before
// the next step.
func (p *Pipeline) SetCellSize(cell float32) error {
	cfg := p.cfg
	cfg.CellSize = cell
	return p.SetConfig(cfg)
}

// SetRules validates and uploads the interaction and radius matrices.
func (p *Pipeline) SetRules(rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix) error {
	if err := p.cfg.ValidateWith(rules, radii); err != nil {
		return err
	}
	p.rules, p.radii = rules.Clone(), radii.Clone()
	p.dirty = true
	if p.sim == nil {
		return nil
	}
	return p.uploadRules()
}

// SyncParticles uploads ps as the current state. A change in particle
// count rebuilds every buffer and invalidates the bind group cache.
func (p *Pipeline) SyncParticles(ps []dynamo.Particle) error {
	if len(ps) == 0 {
		return dynamo.ErrEmptyStore
	}
	if err := dynamo.ValidateParticles(ps, p.cfg.NumTypes); err != nil {
		return err
	}

	if p.sim == nil || p.sim.NumParticles != len(ps) {
		sim, err := NewSimulationBuffers(p.dev, len(ps), dynamo.MaxTypes, p.opts.HalfVelocity)
		if err != nil {
			return fmt.Errorf("allocate particle buffers: %w", err)
		}
		p.teardown()
		p.sim = sim
		p.generation++
		p.cache.Invalidate()
		slog.Debug("gpu buffers rebuilt", "device", p.dev.Name(), "particles", len(ps), "generation", p.generation)

		if p.rules != nil {
			if err := p.uploadRules(); err != nil {
				return err
			}
		}
	}

	norm := make([]dynamo.Particle, len(ps))
	for i, q := range ps {
		pos := dynamo.NormalizePosition(q.Pos(), p.cfg.Boundary, p.cfg.World)
		q.X, q.Y = pos.X, pos.Y
		norm[i] = q
	}
	pos, vel := encodeParticles(norm, p.opts.HalfVelocity)
	p.sim.current = 0
	if err := p.dev.WriteBuffer(p.sim.PosType[0], 0, pos); err != nil {
		return err
	}
	if err := p.dev.WriteBuffer(p.sim.Vel[0], 0, vel); err != nil {
		return err
	}
	p.dirty = true
	return p.writeParams()
}

func (p *Pipeline) writeParams() error {
	if p.sim == nil {
		return nil
	}
	params := NewSimParams(&p.cfg, p.sim.NumParticles, p.opts.HalfVelocity)
	return p.dev.WriteBuffer(p.sim.Params, 0, params.Words())
}

func (p *Pipeline) uploadRules() error {
	n := p.rules.Size()
	inter := make([]uint32, n*n)
	minR := make([]uint32, n*n)
	maxR := make([]uint32, n*n)
	for i := 0; i < n*n; i++ {
		inter[i] = f32bits(p.rules.Data[i])
		minR[i] = f32bits(p.radii.Min[i])
		maxR[i] = f32bits(p.radii.Max[i])
	}
	if err := p.dev.WriteBuffer(p.sim.Interaction, 0, inter); err != nil {
		return err
	}
	if err := p.dev.WriteBuffer(p.sim.MinRadius, 0, minR); err != nil {
		return err
	}
	if err := p.dev.WriteBuffer(p.sim.MaxRadius, 0, maxR); err != nil {
		return err
	}
	return nil
}

// ensureSpatial rebuilds the bin buffers when the grid or particle count
// changed. The old buffers stay live until the new ones are allocated.
func (p *Pipeline) ensureSpatial() error {
	g := p.Grid()
	if p.spat != nil && !p.dirty {
		return nil
	}
	if p.spat != nil && p.spat.Grid == g && p.spatN == p.sim.NumParticles {
		p.dirty = false
		return nil
	}

	spat, err := NewSpatialBuffers(p.dev, g, p.sim.NumParticles)
	if err != nil {
		return err
	}
	if p.spat != nil {
		p.spat.Destroy(p.dev)
	}
	p.spat = spat
	p.spatN = p.sim.NumParticles
	p.generation++
	p.cache.Invalidate()
	p.dirty = false
	slog.Debug("gpu bins rebuilt", "grid_w", g.Width, "grid_h", g.Height, "cell", g.CellSize, "passes", spat.Passes)
	return nil
}

func (p *Pipeline) key() CacheKey {
	return CacheKey{Passes: p.spat.Passes, Generation: p.generation}
}

func (p *Pipeline) buildBindGroups() (*BindGroups, error) {
	sim, spat := p.sim, p.spat
	binsA := spat.Bins[ParityA]
	offsets := spat.Role(BinOffsets)
	slots := spat.Role(BinSortSlots)

	var (
		g   BindGroups
		err error
	)
	if g.Clear, err = p.dev.CreateBindGroup(KernelClear, binsA, spat.Params); err != nil {
		return nil, err
	}
	g.Prefix = make([]*BindGroup, spat.Passes)
	for pass := range g.Prefix {
		src, dst := spat.Bins[pass%2], spat.Bins[(pass+1)%2]
		if g.Prefix[pass], err = p.dev.CreateBindGroup(KernelPrefix, src, dst, spat.Params, spat.Steps[pass]); err != nil {
			return nil, err
		}
	}
	if g.ClearForSort, err = p.dev.CreateBindGroup(KernelClear, slots, spat.Params); err != nil {
		return nil, err
	}

	for cur := 0; cur < 2; cur++ {
		next := 1 - cur
		if g.Count[cur], err = p.dev.CreateBindGroup(KernelCount, sim.PosType[cur], binsA, spat.Params); err != nil {
			return nil, err
		}
		if g.Sort[cur], err = p.dev.CreateBindGroup(KernelSort,
			sim.PosType[cur], sim.Vel[cur], offsets, slots,
			sim.PosType[next], sim.Vel[next], spat.Params); err != nil {
			return nil, err
		}
		if g.Forces[cur], err = p.dev.CreateBindGroup(KernelForces,
			sim.PosType[next], sim.Vel[next], offsets,
			sim.Interaction, sim.MinRadius, sim.MaxRadius,
			sim.Params, spat.Params, sim.Stats); err != nil {
			return nil, err
		}
		if g.Advance[cur], err = p.dev.CreateBindGroup(KernelAdvance, sim.PosType[next], sim.Vel[next], sim.Params); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

// record builds the ordered command list for one step from index cur.
func (p *Pipeline) record(g *BindGroups, cur int) ([]Dispatch, []Phase) {
	n := p.sim.NumParticles
	bins := p.spat.Grid.TotalBinsWithEnd()

	cmds := make([]Dispatch, 0, 6+len(g.Prefix))
	phases := make([]Phase, 0, cap(cmds))
	add := func(ph Phase, label string, group *BindGroup, inv int) {
		cmds = append(cmds, Dispatch{Label: label, Group: group, Invocations: inv})
		phases = append(phases, ph)
	}

	add(PhaseClear, "clear", g.Clear, bins)
	add(PhaseCount, "count", g.Count[cur], n)
	for pass, group := range g.Prefix {
		add(PhasePrefix, fmt.Sprintf("prefix_%d", pass), group, bins)
	}
	add(PhaseClearForSort, "clear_for_sort", g.ClearForSort, bins)
	add(PhaseSort, "sort", g.Sort[cur], n)
	add(PhaseForces, "forces", g.Forces[cur], n)
	add(PhaseAdvance, "advance", g.Advance[cur], n)
	return cmds, phases
}

// Step submits one full step. The particle index flips only when the
// whole submission succeeds; on error the current buffers still hold the
// previous state.
func (p *Pipeline) Step(ctx context.Context, dt float32) error {
	if p.sim == nil {
		return dynamo.ErrEmptyStore
	}
	if p.rules == nil {
		return dynamo.ErrNoRules
	}

	if err := p.ensureSpatial(); err != nil {
		return &dynamo.SimulationError{Step: p.steps, Phase: "allocate", Wrapped: err}
	}
	groups, err := p.cache.Ensure(p.key(), p.buildBindGroups)
	if err != nil {
		return &dynamo.SimulationError{Step: p.steps, Phase: "bind", Wrapped: err}
	}
	if err := p.dev.WriteBuffer(p.sim.Params, simDtWord, []uint32{f32bits(dt)}); err != nil {
		return &dynamo.SimulationError{Step: p.steps, Phase: "upload", Wrapped: err}
	}

	cmds, phases := p.record(groups, p.sim.Current())
	p.phases = phases
	if err := p.dev.Submit(ctx, cmds); err != nil {
		phase := PhaseIdle
		var se *SubmitError
		if errors.As(err, &se) && se.Index < len(phases) {
			phase = phases[se.Index]
		}
		return &dynamo.SimulationError{Step: p.steps, Phase: phase.String(), Wrapped: err}
	}

	p.sim.flip()
	p.steps++
	p.collectTimings(phases)
	return nil
}

func (p *Pipeline) collectTimings(phases []Phase) {
	durations := p.dev.LastTimings()
	t := make(PhaseTimings, len(Phases()))
	for i, d := range durations {
		if i < len(phases) {
			t[phases[i]] += d
		}
	}
	p.timings = t
}

// PhaseTimings returns device time per phase of the last successful step.
func (p *Pipeline) PhaseTimings() PhaseTimings {
	out := make(PhaseTimings, len(p.timings))
	for k, v := range p.timings {
		out[k] = v
	}
	return out
}

// RecordedPhases lists the phase of each dispatch of the last step.
func (p *Pipeline) RecordedPhases() []Phase { return append([]Phase(nil), p.phases...) }

// ReadParticles blocks until the device is idle and returns the current
// state in upload order.
func (p *Pipeline) ReadParticles(ctx context.Context) ([]dynamo.Particle, error) {
	if p.sim == nil {
		return nil, dynamo.ErrEmptyStore
	}
	pos := make([]uint32, p.sim.NumParticles*posWords)
	vel := make([]uint32, p.sim.NumParticles*velWords(p.opts.HalfVelocity))
	if err := p.dev.ReadBuffer(ctx, p.sim.CurrentPosType(), 0, pos); err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	if err := p.dev.ReadBuffer(ctx, p.sim.CurrentVel(), 0, vel); err != nil {
		return nil, fmt.Errorf("read velocities: %w", err)
	}
	return decodeParticles(pos, vel, p.opts.HalfVelocity)
}

// ReadTags returns the tag word of each slot of the current buffer, in
// buffer order.
func (p *Pipeline) ReadTags(ctx context.Context) ([]uint32, error) {
	if p.sim == nil {
		return nil, dynamo.ErrEmptyStore
	}
	pos := make([]uint32, p.sim.NumParticles*posWords)
	if err := p.dev.ReadBuffer(ctx, p.sim.CurrentPosType(), 0, pos); err != nil {
		return nil, err
	}
	tags := make([]uint32, p.sim.NumParticles)
	for i := range tags {
		tags[i] = pos[i*posWords+posTag]
	}
	return tags, nil
}

// ReadOffsets returns the bin offsets of the last step, TotalBinsWithEnd
// words.
func (p *Pipeline) ReadOffsets(ctx context.Context) ([]uint32, error) {
	if p.spat == nil {
		return nil, dynamo.ErrEmptyStore
	}
	buf := p.spat.Role(BinOffsets)
	out := make([]uint32, buf.Len())
	if err := p.dev.ReadBuffer(ctx, buf, 0, out); err != nil {
		return nil, fmt.Errorf("read offsets: %w", err)
	}
	return out, nil
}

// ReadBinCounts returns the particle count per bin from the last step.
func (p *Pipeline) ReadBinCounts(ctx context.Context) ([]uint32, error) {
	offsets, err := p.ReadOffsets(ctx)
	if err != nil {
		return nil, err
	}
	counts := make([]uint32, len(offsets)-1)
	for i := range counts {
		counts[i] = offsets[i+1] - offsets[i]
	}
	return counts, nil
}

// ReadBudgetHits returns how many particles hit the neighbour budget since
// the last reset.
func (p *Pipeline) ReadBudgetHits(ctx context.Context) (uint64, error) {
	if p.sim == nil {
		return 0, dynamo.ErrEmptyStore
	}
	var w [1]uint32
	if err := p.dev.ReadBuffer(ctx, p.sim.Stats, statBudgetHits, w[:]); err != nil {
		return 0, err
	}
	return uint64(w[0]), nil
}

func (p *Pipeline) ResetBudgetHits() error {
	if p.sim == nil {
		return nil
	}
	return p.dev.WriteBuffer(p.sim.Stats, statBudgetHits, []uint32{0})
}

func (p *Pipeline) teardown() {
	if p.spat != nil {
		p.spat.Destroy(p.dev)
		p.spat = nil
	}
	if p.sim != nil {
		p.sim.Destroy(p.dev)
		p.sim = nil
	}
	p.cache.Invalidate()
}

// Release destroys every buffer owned by the pipeline. The device itself
// is not released.
func (p *Pipeline) Release() {
	p.teardown()
	p.generation++
}
