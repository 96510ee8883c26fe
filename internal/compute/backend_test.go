package compute

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/gpu"
)

func testSetup(n int) (dynamo.Config, []dynamo.Particle, *dynamo.InteractionMatrix, *dynamo.RadiusMatrix) {
	rng := rand.New(rand.NewSource(9))
	cfg := dynamo.DefaultConfig()
	cfg.NumParticles = uint32(n)
	cfg.NumTypes = 3
	cfg.World = dynamo.Vec2{X: 320, Y: 240}

	ps := make([]dynamo.Particle, n)
	cols := 25
	for i := range ps {
		ps[i] = dynamo.Particle{
			X:    (float32(i%cols) + 0.5) * cfg.World.X / float32(cols),
			Y:    (float32(i/cols) + 0.5) * cfg.World.Y / float32((n+cols-1)/cols),
			Type: uint32(rng.Intn(3)),
		}
	}
	rules := dynamo.NewInteractionMatrix(3)
	for i := range rules.Data {
		rules.Data[i] = rng.Float32()*2 - 1
	}
	return cfg, ps, rules, dynamo.NewRadiusMatrix(3, 8, 30)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"cpu", "cpu", false},
		{"gpu", "gpu", false},
		{"gpu-half", "gpu-half", false},
		{"nope", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q): %v", tt.name, err)
			}
			defer b.Cleanup()
			if b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}

func TestNew_OpenGLWithoutBuildTag(t *testing.T) {
	if gpu.OpenGLAvailable() {
		t.Skip("built with opengl")
	}
	if _, err := New("opengl"); !errors.Is(err, dynamo.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if b := AutoSelectBackend(); b.Name() != "cpu" {
		t.Errorf("auto selected %q, want cpu", b.Name())
	}
}

func TestBackends_StepBeforeLoad(t *testing.T) {
	for _, b := range []Backend{NewCPUBackend(), NewSoftGPUBackend(gpu.Options{})} {
		t.Run(b.Name(), func(t *testing.T) {
			defer b.Cleanup()
			if err := b.Step(context.Background(), 0.1); !errors.Is(err, dynamo.ErrEmptyStore) {
				t.Errorf("err = %v, want ErrEmptyStore", err)
			}
		})
	}
}

func TestBackends_LoadValidates(t *testing.T) {
	cfg, ps, rules, radii := testSetup(50)
	bad := rules.Clone()
	bad.Set(0, 1, 5)

	for _, b := range []Backend{NewCPUBackend(), NewSoftGPUBackend(gpu.Options{})} {
		t.Run(b.Name(), func(t *testing.T) {
			defer b.Cleanup()
			if err := b.Load(cfg, ps, bad, radii); !errors.Is(err, dynamo.ErrInvalidMatrix) {
				t.Errorf("bad rules: err = %v, want ErrInvalidMatrix", err)
			}
			if err := b.Load(cfg, ps, dynamo.NewInteractionMatrix(2), radii); !errors.Is(err, dynamo.ErrDimensionMismatch) {
				t.Errorf("small rules: err = %v, want ErrDimensionMismatch", err)
			}
			if err := b.Load(cfg, ps, rules, radii); err != nil {
				t.Errorf("valid load: %v", err)
			}
		})
	}
}

func TestBackends_Agree(t *testing.T) {
	cfg, ps, rules, radii := testSetup(500)
	ctx := context.Background()

	cpu := NewCPUBackend()
	soft := NewSoftGPUBackend(gpu.Options{})
	defer soft.Cleanup()

	for _, b := range []Backend{cpu, soft} {
		if err := b.Load(cfg, ps, rules, radii); err != nil {
			t.Fatalf("%s load: %v", b.Name(), err)
		}
		for i := 0; i < 4; i++ {
			if err := b.Step(ctx, 1.0/60); err != nil {
				t.Fatalf("%s step %d: %v", b.Name(), i, err)
			}
		}
	}

	a, err := cpu.Particles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g, err := soft.Particles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		d := dynamo.WrappedDelta(a[i].Pos(), g[i].Pos(), cfg.World, true)
		if d.Len() > 1e-2 {
			t.Fatalf("particle %d: cpu %v gpu %v", i, a[i].Pos(), g[i].Pos())
		}
	}

	if _, ok := Backend(soft).(PhaseTimer); !ok {
		t.Error("gpu backend does not report phase timings")
	}
}

func TestBackends_AgreeAcrossPartialEdgeBin(t *testing.T) {
	cfg := dynamo.DefaultConfig()
	cfg.NumParticles = 2
	cfg.NumTypes = 1
	// 1080/80 leaves a half-height last row of bins.
	ps := []dynamo.Particle{{X: 500, Y: 5}, {X: 500, Y: 1010}}
	rules := dynamo.FilledInteractionMatrix(1, 1)
	radii := dynamo.NewRadiusMatrix(1, 10, 80)
	ctx := context.Background()

	var results [2][]dynamo.Particle
	for k, b := range []Backend{NewCPUBackend(), NewSoftGPUBackend(gpu.Options{})} {
		if err := b.Load(cfg, ps, rules, radii); err != nil {
			t.Fatalf("%s load: %v", b.Name(), err)
		}
		if err := b.Step(ctx, 1.0/60); err != nil {
			t.Fatalf("%s step: %v", b.Name(), err)
		}
		got, err := b.Particles(ctx)
		if err != nil {
			t.Fatal(err)
		}
		b.Cleanup()
		results[k] = got
	}

	cpu, soft := results[0], results[1]
	if cpu[0].VY >= 0 || cpu[1].VY <= 0 {
		t.Fatalf("cpu velocities %v %v, want a pull across the wrapped edge", cpu[0].Vel(), cpu[1].Vel())
	}
	for i := range cpu {
		if !cpu[i].Vel().Eq(soft[i].Vel(), 1e-5) {
			t.Errorf("particle %d: cpu vel %v, gpu vel %v", i, cpu[i].Vel(), soft[i].Vel())
		}
	}
}

func TestBackends_BinCounts(t *testing.T) {
	cfg, ps, rules, radii := testSetup(300)
	ctx := context.Background()

	for _, b := range []Backend{NewCPUBackend(), NewSoftGPUBackend(gpu.Options{})} {
		t.Run(b.Name(), func(t *testing.T) {
			defer b.Cleanup()
			if err := b.Load(cfg, ps, rules, radii); err != nil {
				t.Fatal(err)
			}
			if err := b.Step(ctx, 0); err != nil {
				t.Fatal(err)
			}
			counts, err := b.BinCounts(ctx)
			if err != nil {
				t.Fatal(err)
			}
			total := 0
			for _, c := range counts {
				total += int(c)
			}
			if total != len(ps) {
				t.Errorf("bin counts sum to %d, want %d", total, len(ps))
			}
		})
	}
}

func TestBackends_SetParticlesResizes(t *testing.T) {
	cfg, ps, rules, radii := testSetup(400)
	ctx := context.Background()

	for _, b := range []Backend{NewCPUBackend(), NewSoftGPUBackend(gpu.Options{})} {
		t.Run(b.Name(), func(t *testing.T) {
			defer b.Cleanup()
			if err := b.Load(cfg, ps, rules, radii); err != nil {
				t.Fatal(err)
			}
			if err := b.SetParticles(ps[:120]); err != nil {
				t.Fatal(err)
			}
			if err := b.Step(ctx, 1.0/60); err != nil {
				t.Fatal(err)
			}
			got, err := b.Particles(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 120 {
				t.Errorf("len = %d, want 120", len(got))
			}
		})
	}
}

func TestCPUBackend_CancelledContext(t *testing.T) {
	cfg, ps, rules, radii := testSetup(10)
	b := NewCPUBackend()
	if err := b.Load(cfg, ps, rules, radii); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Step(ctx, 0.1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
