package generate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/partlife/internal/dynamo"
)

func TestSpawnPatterns(t *testing.T) {
	world := dynamo.Vec2{X: 800, Y: 600}
	for _, name := range SpawnPatterns() {
		t.Run(name, func(t *testing.T) {
			ps, err := Spawn(name, rand.New(rand.NewSource(1)), 1000, 5, world)
			if err != nil {
				t.Fatal(err)
			}
			if len(ps) != 1000 {
				t.Fatalf("len = %d, want 1000", len(ps))
			}
			seen := make(map[uint32]bool)
			for i, p := range ps {
				if p.Type >= 5 {
					t.Fatalf("particle %d type %d", i, p.Type)
				}
				if p.X < 0 || p.X > world.X || p.Y < 0 || p.Y > world.Y {
					t.Fatalf("particle %d at (%v, %v) outside world", i, p.X, p.Y)
				}
				if p.VX != 0 || p.VY != 0 {
					t.Fatalf("particle %d spawned moving", i)
				}
				seen[p.Type] = true
			}
			if len(seen) < 2 {
				t.Errorf("only %d types used", len(seen))
			}
		})
	}
}

func TestSpawn_Deterministic(t *testing.T) {
	world := dynamo.Vec2{X: 400, Y: 400}
	a, _ := Spawn("perlin", rand.New(rand.NewSource(5)), 200, 3, world)
	b, _ := Spawn("perlin", rand.New(rand.NewSource(5)), 200, 3, world)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("particle %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSpawn_Unknown(t *testing.T) {
	if _, err := Spawn("teapot", rand.New(rand.NewSource(1)), 10, 2, dynamo.Vec2{X: 10, Y: 10}); err == nil {
		t.Error("expected error for unknown pattern")
	}
}

func TestSpawnStripes_TypeBands(t *testing.T) {
	ps := SpawnStripes(rand.New(rand.NewSource(2)), 300, 3, dynamo.Vec2{X: 300, Y: 300})
	counts := make([]int, 3)
	for _, p := range ps {
		counts[p.Type]++
	}
	for ty, c := range counts {
		if c != 100 {
			t.Errorf("type %d has %d particles, want 100", ty, c)
		}
	}
}

func TestRuleTypes(t *testing.T) {
	for _, name := range RuleTypes() {
		t.Run(name, func(t *testing.T) {
			m, err := Rules(name, rand.New(rand.NewSource(3)), 6)
			if err != nil {
				t.Fatal(err)
			}
			if m.Size() != 6 {
				t.Fatalf("size = %d", m.Size())
			}
			if err := m.Validate(); err != nil {
				t.Errorf("generated matrix invalid: %v", err)
			}
		})
	}
}

func TestRules_Shapes(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	sym := SymmetricRules(rng, 5)
	anti := AntiSymmetricRules(rng, 5)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if sym.Get(i, j) != sym.Get(j, i) {
				t.Errorf("symmetric (%d,%d) = %v vs %v", i, j, sym.Get(i, j), sym.Get(j, i))
			}
			if anti.Get(i, j) != -anti.Get(j, i) {
				t.Errorf("anti-symmetric (%d,%d) = %v vs %v", i, j, anti.Get(i, j), anti.Get(j, i))
			}
		}
	}

	rps := RockPaperScissorsRules(nil, 3)
	if rps.Get(0, 1) != 0.9 || rps.Get(0, 2) != -0.7 || rps.Get(0, 0) != -0.1 {
		t.Errorf("rock paper scissors row 0 = %v", rps.Data[:3])
	}

	snake := SnakeRules(nil, 4)
	if snake.Get(3, 0) != 0.2 || snake.Get(3, 3) != 1 || snake.Get(3, 1) != 0 {
		t.Errorf("snake row 3 = %v", snake.Data[12:16])
	}

	chains := ChainRules(nil, 5)
	if chains.Get(0, 4) != 1 || chains.Get(0, 2) != -1 {
		t.Errorf("chains row 0 = %v", chains.Data[:5])
	}
	loose := LooseChainRules(nil, 5)
	if loose.Get(0, 1) != 0.2 || loose.Get(0, 2) != 0 {
		t.Errorf("loose chains row 0 = %v", loose.Data[:5])
	}

	swirl := SwirlRules(nil, 4)
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if swirl.Get(i, j) != -swirl.Get(j, i) {
				t.Errorf("swirl (%d,%d) not anti-symmetric", i, j)
			}
		}
	}
	if swirl.Get(0, 1) != 0.7 || swirl.Get(0, 3) != -0.7 {
		t.Errorf("swirl row 0 = %v", swirl.Data[:4])
	}

	if one := SnakeRules(nil, 1); one.Get(0, 0) != 1 {
		t.Errorf("single type snake = %v", one.Data)
	}
}

func TestRules_TypeLimit(t *testing.T) {
	if _, err := Rules("random", rand.New(rand.NewSource(1)), dynamo.MaxTypes+1); err == nil {
		t.Error("expected error above MaxTypes")
	}
}

func TestRandomRadii(t *testing.T) {
	r := RandomRadii(rand.New(rand.NewSource(8)), 4, 20, 60, 0.3)
	if err := r.Validate(); err != nil {
		t.Fatalf("invalid radii: %v", err)
	}
	if r.MaxInteractionRadius() > 60*1.3 {
		t.Errorf("max radius %v above spread", r.MaxInteractionRadius())
	}
}

func TestRebalanceRadii(t *testing.T) {
	world := dynamo.Vec2{X: 1000, Y: 1000}

	t.Run("dense shrinks", func(t *testing.T) {
		r := dynamo.NewRadiusMatrix(2, 30, 80)
		scale := RebalanceRadii(r, 200000, world)
		// density 0.2, pi*80^2*0.2 = 4021 neighbours
		want := float32(math.Sqrt(350 / (0.2 * math.Pi * 80 * 80)))
		if math.Abs(float64(scale-want)) > 1e-4 {
			t.Errorf("scale = %v, want %v", scale, want)
		}
		if r.GetMax(0, 1) >= 80 {
			t.Errorf("max radius not reduced: %v", r.GetMax(0, 1))
		}
	})

	t.Run("sparse clamps", func(t *testing.T) {
		r := dynamo.NewRadiusMatrix(2, 30, 80)
		if scale := RebalanceRadii(r, 10, world); scale != 1.5 {
			t.Errorf("scale = %v, want 1.5", scale)
		}
		if r.GetMin(0, 0) != 45 || r.GetMax(0, 0) != 120 {
			t.Errorf("radii = %v, %v", r.GetMin(0, 0), r.GetMax(0, 0))
		}
	})

	t.Run("floors", func(t *testing.T) {
		r := dynamo.NewRadiusMatrix(1, 4, 5)
		if scale := RebalanceRadii(r, 1000000, dynamo.Vec2{X: 100, Y: 100}); scale != 0.25 {
			t.Errorf("scale = %v, want 0.25", scale)
		}
		if r.GetMin(0, 0) != 2 || r.GetMax(0, 0) != 2.5 {
			t.Errorf("radii = %v, %v; want 2, 2.5", r.GetMin(0, 0), r.GetMax(0, 0))
		}
	})

	t.Run("empty", func(t *testing.T) {
		r := dynamo.NewRadiusMatrix(1, 30, 80)
		if scale := RebalanceRadii(r, 0, world); scale != 1 {
			t.Errorf("scale = %v", scale)
		}
	})
}
