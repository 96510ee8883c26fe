package gpu_test

import (
	"context"
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/gpu"
	"github.com/san-kum/partlife/internal/physics"
	"github.com/san-kum/partlife/internal/spatial"
)

const (
	testParticles = 600
	testTypes     = 3
	testDt        = float32(1.0 / 60)
)

func testConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.NumParticles = testParticles
	cfg.NumTypes = testTypes
	cfg.World = dynamo.Vec2{X: 400, Y: 300}
	return cfg
}

// lattice spreads n particles over a jittered lattice covering world.
func lattice(rng *rand.Rand, n, types int, world dynamo.Vec2) []dynamo.Particle {
	cols := 30
	rows := (n + cols - 1) / cols
	dx, dy := world.X/float32(cols), world.Y/float32(rows)

	ps := make([]dynamo.Particle, n)
	for i := range ps {
		c, r := i%cols, i/cols
		ps[i] = dynamo.Particle{
			X:    (float32(c) + 0.25 + rng.Float32()*0.5) * dx,
			Y:    (float32(r) + 0.25 + rng.Float32()*0.5) * dy,
			VX:   rng.Float32()*4 - 2,
			VY:   rng.Float32()*4 - 2,
			Type: uint32(rng.Intn(types)),
		}
	}
	return ps
}

func randomRules(rng *rand.Rand, n int) *dynamo.InteractionMatrix {
	m := dynamo.NewInteractionMatrix(n)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

func cpuSteps(ps []dynamo.Particle, rules *dynamo.InteractionMatrix, radii *dynamo.RadiusMatrix, cfg dynamo.Config, steps int) []dynamo.Particle {
	store := dynamo.NewStore(ps)
	engine := physics.NewEngine()
	for i := 0; i < steps; i++ {
		Expect(engine.Step(store, rules, radii, &cfg, testDt)).To(Succeed())
	}
	return store.Snapshot()
}

func expectClose(cpu, gpuPs []dynamo.Particle, cfg dynamo.Config, tol float32) {
	Expect(gpuPs).To(HaveLen(len(cpu)))
	wrap := cfg.Boundary.Wraps()
	for i := range cpu {
		d := dynamo.WrappedDelta(cpu[i].Pos(), gpuPs[i].Pos(), cfg.World, wrap)
		Expect(d.Len()).To(BeNumerically("<", tol), "position of particle %d: cpu %v gpu %v", i, cpu[i].Pos(), gpuPs[i].Pos())
		Expect(cpu[i].Vel().Sub(gpuPs[i].Vel()).Len()).To(BeNumerically("<", tol*(1+cpu[i].Vel().Len())), "velocity of particle %d", i)
		Expect(gpuPs[i].Type).To(Equal(cpu[i].Type))
	}
}

var _ = Describe("Grid", func() {
	DescribeTable("PrefixSumPasses",
		func(n, want int) {
			Expect(gpu.PrefixSumPasses(n)).To(Equal(want))
		},
		Entry("single word", 1, 0),
		Entry("two words", 2, 1),
		Entry("three words", 3, 2),
		Entry("power of two", 4, 2),
		Entry("just above power of two", 5, 3),
		Entry("large grid", 1025, 11),
	)

	It("sizes bins with an end sentinel", func() {
		g := gpu.NewGrid(80, dynamo.Vec2{X: 400, Y: 300})
		Expect(g.Width).To(Equal(5))
		Expect(g.Height).To(Equal(4))
		Expect(g.TotalBinsWithEnd()).To(Equal(21))
	})

	It("clamps positions into edge bins", func() {
		g := gpu.NewGrid(100, dynamo.Vec2{X: 400, Y: 300})
		Expect(g.BinOf(-5, -5)).To(Equal(0))
		Expect(g.BinOf(450, 350)).To(Equal(g.TotalBins() - 1))
		Expect(g.BinOf(150, 250)).To(Equal(2*4 + 1))
	})

	It("ends the scan in A for even pass counts", func() {
		Expect(gpu.OffsetsParity(4)).To(Equal(gpu.ParityA))
		Expect(gpu.OffsetsParity(5)).To(Equal(gpu.ParityB))
		Expect(gpu.ParityA.Other()).To(Equal(gpu.ParityB))
	})
})

var _ = Describe("Pipeline", func() {
	var (
		ctx   context.Context
		rng   *rand.Rand
		cfg   dynamo.Config
		dev   *gpu.SoftDevice
		pipe  *gpu.Pipeline
		ps    []dynamo.Particle
		rules *dynamo.InteractionMatrix
		radii *dynamo.RadiusMatrix
	)

	BeforeEach(func() {
		ctx = context.Background()
		rng = rand.New(rand.NewSource(42))
		cfg = testConfig()
		ps = lattice(rng, testParticles, testTypes, cfg.World)
		rules = randomRules(rng, testTypes)
		radii = dynamo.NewRadiusMatrix(testTypes, 10, 40)

		dev = gpu.NewSoftDevice(gpu.SoftOptions{})
		var err error
		pipe, err = gpu.NewPipeline(dev, cfg, gpu.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(pipe.SetRules(rules, radii)).To(Succeed())
		Expect(pipe.SyncParticles(ps)).To(Succeed())
	})

	AfterEach(func() {
		pipe.Release()
		dev.Release()
	})

	Describe("step", func() {
		It("records every phase in order", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())

			want := []gpu.Phase{gpu.PhaseClear, gpu.PhaseCount}
			for i := 0; i < pipe.PrefixSumPasses(); i++ {
				want = append(want, gpu.PhasePrefix)
			}
			want = append(want, gpu.PhaseClearForSort, gpu.PhaseSort, gpu.PhaseForces, gpu.PhaseAdvance)
			Expect(pipe.RecordedPhases()).To(Equal(want))
		})

		It("flips the particle index once per step", func() {
			Expect(pipe.CurrentIndex()).To(Equal(0))
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.CurrentIndex()).To(Equal(1))
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.CurrentIndex()).To(Equal(0))
			Expect(pipe.Steps()).To(Equal(2))
		})

		It("reports device time per phase", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			timings := pipe.PhaseTimings()
			for _, ph := range gpu.Phases() {
				Expect(timings).To(HaveKey(ph))
			}
		})
	})

	Describe("prefix sum", func() {
		It("produces monotonic offsets ending at the particle count", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())

			offsets, err := pipe.ReadOffsets(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(offsets).To(HaveLen(pipe.TotalBinsWithEnd()))
			Expect(offsets[0]).To(BeZero())
			for i := 1; i < len(offsets); i++ {
				Expect(offsets[i]).To(BeNumerically(">=", offsets[i-1]), "offset %d", i)
			}
			Expect(offsets[len(offsets)-1]).To(BeEquivalentTo(testParticles))
		})

		It("counts the same bins as the CPU hash", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			counts, err := pipe.ReadBinCounts(ctx)
			Expect(err).NotTo(HaveOccurred())

			h := spatial.Build(ps, physics.CellSize(&cfg, radii), cfg.World)
			Expect(counts).To(HaveLen(h.NumCells()))
			for c := range counts {
				Expect(counts[c]).To(BeEquivalentTo(len(h.Cell(c))), "bin %d", c)
			}
		})
	})

	Describe("sort", func() {
		It("is a bijection that places each particle inside its bin", func() {
			Expect(pipe.Step(ctx, 0)).To(Succeed())

			tags, err := pipe.ReadTags(ctx)
			Expect(err).NotTo(HaveOccurred())
			seen := make(map[uint32]bool, len(tags))
			for _, tag := range tags {
				Expect(tag).To(BeNumerically("<", testParticles))
				Expect(seen[tag]).To(BeFalse(), "tag %d appears twice", tag)
				seen[tag] = true
			}
			Expect(seen).To(HaveLen(testParticles))

			offsets, err := pipe.ReadOffsets(ctx)
			Expect(err).NotTo(HaveOccurred())
			grid := pipe.Grid()
			for slot, tag := range tags {
				bin := grid.BinOf(ps[tag].X, ps[tag].Y)
				Expect(uint32(slot)).To(BeNumerically(">=", offsets[bin]))
				Expect(uint32(slot)).To(BeNumerically("<", offsets[bin+1]))
			}
		})

		It("keeps types and positions attached to their particle", func() {
			Expect(pipe.Step(ctx, 0)).To(Succeed())
			got, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())
			for i := range ps {
				Expect(got[i].Type).To(Equal(ps[i].Type))
				Expect(got[i].X).To(Equal(ps[i].X))
				Expect(got[i].Y).To(Equal(ps[i].Y))
			}
		})
	})

	DescribeTable("matches the CPU engine",
		func(mode dynamo.BoundaryMode) {
			cfg.Boundary = mode
			Expect(pipe.SetConfig(cfg)).To(Succeed())
			Expect(pipe.SetRules(rules, radii)).To(Succeed())
			Expect(pipe.SyncParticles(ps)).To(Succeed())

			const steps = 5
			for i := 0; i < steps; i++ {
				Expect(pipe.Step(ctx, testDt)).To(Succeed())
			}
			got, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())

			expectClose(cpuSteps(ps, rules, radii, cfg, steps), got, cfg, 1e-2)
		},
		Entry("repel", dynamo.Repel),
		Entry("wrap", dynamo.Wrap),
		Entry("mirror wrap", dynamo.MirrorWrap),
		Entry("infinite wrap", dynamo.InfiniteWrap),
	)

	DescribeTable("sees wrapped neighbours across a partial edge bin",
		func(world dynamo.Vec2, a, b dynamo.Particle, pull dynamo.Vec2) {
			edge := dynamo.DefaultConfig()
			edge.NumParticles = 2
			edge.NumTypes = 1
			edge.World = world
			pair := []dynamo.Particle{a, b}
			attract := dynamo.FilledInteractionMatrix(1, 1)
			wide := dynamo.NewRadiusMatrix(1, 10, 80)

			Expect(pipe.SetConfig(edge)).To(Succeed())
			Expect(pipe.SetRules(attract, wide)).To(Succeed())
			Expect(pipe.SyncParticles(pair)).To(Succeed())
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			got, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())

			want := cpuSteps(pair, attract, wide, edge, 1)
			Expect(want[0].Vel().Len()).To(BeNumerically(">", 0))
			expectClose(want, got, edge, 1e-4)

			Expect(got[0].VX*pull.X + got[0].VY*pull.Y).To(BeNumerically(">", 0))
			Expect(got[1].VX*pull.X + got[1].VY*pull.Y).To(BeNumerically("<", 0))
		},
		Entry("along y, 13.5 rows",
			dynamo.Vec2{X: 1920, Y: 1080},
			dynamo.Particle{X: 500, Y: 5}, dynamo.Particle{X: 500, Y: 1010},
			dynamo.Vec2{Y: -1}),
		Entry("along x, 23.75 columns",
			dynamo.Vec2{X: 1900, Y: 1080},
			dynamo.Particle{X: 5, Y: 500}, dynamo.Particle{X: 1830, Y: 500},
			dynamo.Vec2{X: -1}),
	)

	It("matches the CPU engine on the default world with wide radii", func() {
		edge := testConfig()
		edge.World = dynamo.Vec2{X: 1920, Y: 1080}
		wide := dynamo.NewRadiusMatrix(testTypes, 10, 80)
		spread := lattice(rng, testParticles, testTypes, edge.World)

		Expect(pipe.SetConfig(edge)).To(Succeed())
		Expect(pipe.SetRules(rules, wide)).To(Succeed())
		Expect(pipe.SyncParticles(spread)).To(Succeed())
		Expect(pipe.Grid().Height).To(Equal(14))

		const steps = 3
		for i := 0; i < steps; i++ {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
		}
		got, err := pipe.ReadParticles(ctx)
		Expect(err).NotTo(HaveOccurred())
		expectClose(cpuSteps(spread, rules, wide, edge, steps), got, edge, 1e-2)
	})

	It("stores half precision velocities close to the CPU result", func() {
		half, err := gpu.NewPipeline(dev, cfg, gpu.Options{HalfVelocity: true})
		Expect(err).NotTo(HaveOccurred())
		defer half.Release()
		Expect(half.SetRules(rules, radii)).To(Succeed())
		Expect(half.SyncParticles(ps)).To(Succeed())
		Expect(half.Step(ctx, testDt)).To(Succeed())

		got, err := half.ReadParticles(ctx)
		Expect(err).NotTo(HaveOccurred())
		expectClose(cpuSteps(ps, rules, radii, cfg, 1), got, cfg, 5e-2)
	})

	It("counts particles cut short by the neighbour budget", func() {
		cfg.NeighborBudget = 5
		Expect(pipe.SetConfig(cfg)).To(Succeed())
		Expect(pipe.SetRules(rules, radii)).To(Succeed())

		cluster := make([]dynamo.Particle, 64)
		for i := range cluster {
			cluster[i] = dynamo.Particle{X: 200 + rng.Float32()*4, Y: 150 + rng.Float32()*4, Type: uint32(i % testTypes)}
		}
		Expect(pipe.SyncParticles(cluster)).To(Succeed())
		Expect(pipe.ResetBudgetHits()).To(Succeed())
		Expect(pipe.Step(ctx, testDt)).To(Succeed())

		hits, err := pipe.ReadBudgetHits(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(BeEquivalentTo(len(cluster)))
	})

	Describe("bind group cache", func() {
		It("reuses bind groups across steps", func() {
			for i := 0; i < 3; i++ {
				Expect(pipe.Step(ctx, testDt)).To(Succeed())
			}
			Expect(pipe.Cache().Builds()).To(Equal(1))
		})

		It("rebuilds when the particle count changes", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.SyncParticles(ps[:300])).To(Succeed())
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.Cache().Builds()).To(Equal(2))

			got, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(300))
		})

		It("rebuilds when the grid changes", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			before := pipe.Grid()
			Expect(pipe.SetCellSize(150)).To(Succeed())
			Expect(pipe.Grid()).NotTo(Equal(before))
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.Cache().Builds()).To(Equal(2))
		})

		It("rebuilds after Invalidate", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			pipe.Cache().Invalidate()
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.Cache().Builds()).To(Equal(2))
		})

		It("fails with a stale binding when a bound buffer is destroyed behind its back", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			_, spat := pipe.Buffers()
			dev.DestroyBuffer(spat.Bins[gpu.ParityA])

			err := pipe.Step(ctx, testDt)
			Expect(err).To(MatchError(dynamo.ErrStaleBinding))
			Expect(pipe.CurrentIndex()).To(Equal(1))
		})
	})

	Describe("failures", func() {
		It("rejects a step before rules are set", func() {
			bare, err := gpu.NewPipeline(dev, cfg, gpu.Options{})
			Expect(err).NotTo(HaveOccurred())
			defer bare.Release()
			Expect(bare.SyncParticles(ps)).To(Succeed())
			Expect(bare.Step(ctx, testDt)).To(MatchError(dynamo.ErrNoRules))
		})

		It("rejects particles with out of range types", func() {
			bad := append([]dynamo.Particle(nil), ps...)
			bad[7].Type = testTypes
			Expect(pipe.SyncParticles(bad)).To(MatchError(dynamo.ErrInvalidConfig))
		})

		It("rejects mismatched matrices", func() {
			Expect(pipe.SetRules(dynamo.NewInteractionMatrix(2), radii)).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("releases partial allocations when memory runs out", func() {
			small := gpu.NewSoftDevice(gpu.SoftOptions{MemoryLimit: 1024})
			p, err := gpu.NewPipeline(small, cfg, gpu.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.SyncParticles(ps)).To(MatchError(dynamo.ErrOutOfMemory))
			Expect(small.Allocated()).To(BeZero())
		})

		It("surfaces out of memory from Step without flipping buffers", func() {
			before, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())

			dev.SetMemoryLimit(dev.Allocated() + 8)
			err = pipe.Step(ctx, testDt)
			Expect(err).To(MatchError(dynamo.ErrOutOfMemory))
			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Phase).To(Equal("allocate"))
			Expect(pipe.CurrentIndex()).To(Equal(0))

			after, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			dev.SetMemoryLimit(0)
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
		})

		It("keeps the previous state when the device is lost mid-step", func() {
			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			before, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())
			builds := pipe.Cache().Builds()

			dev.LoseAfter(3)
			err = pipe.Step(ctx, testDt)
			Expect(err).To(MatchError(dynamo.ErrDeviceLost))
			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Phase).To(Equal(gpu.PhasePrefix.String()))
			Expect(pipe.CurrentIndex()).To(Equal(1))
			Expect(pipe.Steps()).To(Equal(1))

			_, err = pipe.ReadParticles(ctx)
			Expect(err).To(MatchError(dynamo.ErrDeviceLost))

			dev.Recover()
			after, err := pipe.ReadParticles(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			Expect(pipe.Step(ctx, testDt)).To(Succeed())
			Expect(pipe.Cache().Builds()).To(Equal(builds))
		})
	})
})
