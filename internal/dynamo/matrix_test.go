package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestInteractionMatrix_Symmetrize(t *testing.T) {
	m := NewInteractionMatrix(3)
	m.Set(0, 1, 1.0)
	m.Set(1, 0, 0.0)
	m.Set(1, 2, -1.0)
	m.Set(2, 1, 0.5)

	m.Symmetrize()

	if m.Get(0, 1) != 0.5 || m.Get(1, 0) != 0.5 {
		t.Errorf("expected 0.5 both ways, got %f %f", m.Get(0, 1), m.Get(1, 0))
	}
	if m.Get(1, 2) != -0.25 || m.Get(2, 1) != -0.25 {
		t.Errorf("expected -0.25 both ways, got %f %f", m.Get(1, 2), m.Get(2, 1))
	}
}

func TestInteractionMatrix_AntiSymmetrize(t *testing.T) {
	m := FilledInteractionMatrix(3, 0.4)
	m.Set(0, 2, 1.0)

	m.AntiSymmetrize()

	for i := 0; i < 3; i++ {
		if m.Get(i, i) != 0 {
			t.Errorf("diagonal (%d,%d) = %f, want 0", i, i, m.Get(i, i))
		}
		for j := 0; j < 3; j++ {
			if m.Get(i, j) != -m.Get(j, i) {
				t.Errorf("(%d,%d)=%f is not -(%d,%d)=%f", i, j, m.Get(i, j), j, i, m.Get(j, i))
			}
		}
	}
	if m.Get(0, 2) != 0.3 {
		t.Errorf("expected 0.3, got %f", m.Get(0, 2))
	}
}

func TestInteractionMatrix_Validate(t *testing.T) {
	tests := []struct {
		name    string
		value   float32
		wantErr bool
	}{
		{"in range", 1.5, false},
		{"upper bound", 2.0, false},
		{"lower bound", -2.0, false},
		{"above range", 2.1, true},
		{"below range", -3, true},
		{"nan", float32(math.NaN()), true},
		{"inf", float32(math.Inf(1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := IdentityInteractionMatrix(2)
			m.Set(1, 0, tt.value)
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMatrix) {
				t.Errorf("expected ErrInvalidMatrix, got %v", err)
			}
		})
	}
}

func TestInteractionMatrix_Clamp(t *testing.T) {
	m := NewInteractionMatrix(2)
	m.Data = []float32{-5, 0.5, 3, 1}
	m.Clamp(-1, 1)
	want := []float32{-1, 0.5, 1, 1}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Errorf("index %d: got %f, want %f", i, m.Data[i], want[i])
		}
	}
}

func TestRadiusMatrix_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RadiusMatrix)
		wantErr bool
	}{
		{"default", func(r *RadiusMatrix) {}, false},
		{"max below min", func(r *RadiusMatrix) { r.Set(1, 2, 50, 40) }, true},
		{"negative min", func(r *RadiusMatrix) { r.Set(0, 0, -1, 40) }, true},
		{"nan max", func(r *RadiusMatrix) { r.Max[3] = float32(math.NaN()) }, true},
		{"size mismatch", func(r *RadiusMatrix) { r.Max = r.Max[:4] }, true},
		{"equal band", func(r *RadiusMatrix) { r.Set(2, 2, 40, 40) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRadiusMatrix(3)
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMatrix) {
				t.Errorf("expected ErrInvalidMatrix, got %v", err)
			}
		})
	}
}

func TestRadiusMatrix_MaxInteractionRadius(t *testing.T) {
	r := DefaultRadiusMatrix(4)
	if got := r.MaxInteractionRadius(); got != 80 {
		t.Errorf("expected 80, got %f", got)
	}

	r.Set(2, 3, 10, 137.5)
	r.Set(3, 1, 5, 12)
	if got := r.MaxInteractionRadius(); got != 137.5 {
		t.Errorf("expected 137.5, got %f", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero particles", func(c *Config) { c.NumParticles = 0 }, true},
		{"zero types", func(c *Config) { c.NumTypes = 0 }, true},
		{"too many types", func(c *Config) { c.NumTypes = 17 }, true},
		{"zero force factor", func(c *Config) { c.ForceFactor = 0 }, true},
		{"friction above one", func(c *Config) { c.Friction = 1.5 }, true},
		{"negative repel", func(c *Config) { c.RepelStrength = -1 }, true},
		{"zero world", func(c *Config) { c.World.X = 0 }, true},
		{"bad boundary", func(c *Config) { c.Boundary = BoundaryMode(9) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_ValidateWith(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumTypes = 3

	if err := cfg.ValidateWith(NewInteractionMatrix(3), DefaultRadiusMatrix(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := cfg.ValidateWith(NewInteractionMatrix(4), DefaultRadiusMatrix(3))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	bad := NewInteractionMatrix(3)
	bad.Set(0, 0, 9)
	if err := cfg.ValidateWith(bad, DefaultRadiusMatrix(3)); !errors.Is(err, ErrInvalidMatrix) {
		t.Errorf("expected ErrInvalidMatrix, got %v", err)
	}
}
