package dynamo

import (
	"sync/atomic"
	"testing"
)

func TestStore_Swap(t *testing.T) {
	s := NewStore([]Particle{{X: 1}, {X: 2}})

	if s.Index() != 0 {
		t.Fatalf("expected index 0, got %d", s.Index())
	}

	next := s.Next()
	next[0].X = 10
	next[1].X = 20
	if s.Current()[0].X != 1 {
		t.Error("writing next must not touch current")
	}

	s.Swap()
	if s.Index() != 1 {
		t.Errorf("expected index 1, got %d", s.Index())
	}
	if s.Current()[0].X != 10 || s.Current()[1].X != 20 {
		t.Errorf("unexpected current after swap: %+v", s.Current())
	}
	if s.Next()[0].X != 1 {
		t.Errorf("expected old state in next slot, got %+v", s.Next())
	}
}

func TestStore_Replace(t *testing.T) {
	s := NewStore([]Particle{{X: 1}})
	gen := s.Generation()
	s.Swap()

	s.Replace([]Particle{{X: 5}, {X: 6}, {X: 7}})

	if s.Len() != 3 {
		t.Fatalf("expected 3 particles, got %d", s.Len())
	}
	if s.Index() != 0 {
		t.Error("replace should reset the index")
	}
	if s.Generation() == gen {
		t.Error("replace should bump the generation")
	}
	if s.Next()[2].X != 7 {
		t.Error("replace should fill both slots")
	}

	snap := s.Snapshot()
	snap[0].X = 99
	if s.Current()[0].X == 99 {
		t.Error("snapshot must be a copy")
	}
}

func TestParallelFor(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 1000, 4097} {
		seen := make([]int32, n)
		ParallelFor(n, 16, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, c)
			}
		}
	}
}

func TestFastSinCos(t *testing.T) {
	for _, a := range []float32{0, 0.5, 1.5707964, 3.1415927, -2, 10} {
		s, c := FastSinCos(a)
		if s*s+c*c < 0.999 || s*s+c*c > 1.001 {
			t.Errorf("angle %f: sin^2+cos^2 = %f", a, s*s+c*c)
		}
	}
	if s, _ := FastSinCos(0); s != 0 {
		t.Errorf("sin(0) = %f", s)
	}
}
