package dynamo

import (
	"fmt"
	"math"
)

// InteractionLimit bounds the magnitude of interaction entries.
const InteractionLimit = 2.0

// InteractionMatrix holds the signed attraction of type "from" toward
// type "to" in row-major order. Positive attracts, negative repels.
type InteractionMatrix struct {
	Data []float32 `yaml:"data" json:"data"`
	N    int       `yaml:"size" json:"size"`
}

func NewInteractionMatrix(n int) *InteractionMatrix {
	return &InteractionMatrix{Data: make([]float32, n*n), N: n}
}

func FilledInteractionMatrix(n int, value float32) *InteractionMatrix {
	m := NewInteractionMatrix(n)
	for i := range m.Data {
		m.Data[i] = value
	}
	return m
}

func IdentityInteractionMatrix(n int) *InteractionMatrix {
	m := NewInteractionMatrix(n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func (m *InteractionMatrix) Size() int { return m.N }

func (m *InteractionMatrix) Get(from, to int) float32 {
	return m.Data[from*m.N+to]
}

func (m *InteractionMatrix) Set(from, to int, value float32) {
	m.Data[from*m.N+to] = value
}

func (m *InteractionMatrix) Clone() *InteractionMatrix {
	c := &InteractionMatrix{Data: make([]float32, len(m.Data)), N: m.N}
	copy(c.Data, m.Data)
	return c
}

// Symmetrize replaces (i,j) and (j,i) with their average.
func (m *InteractionMatrix) Symmetrize() {
	for i := 0; i < m.N; i++ {
		for j := i + 1; j < m.N; j++ {
			avg := (m.Get(i, j) + m.Get(j, i)) / 2
			m.Set(i, j, avg)
			m.Set(j, i, avg)
		}
	}
}

// AntiSymmetrize makes (j,i) == -(i,j) with a zero diagonal.
func (m *InteractionMatrix) AntiSymmetrize() {
	for i := 0; i < m.N; i++ {
		for j := i + 1; j < m.N; j++ {
			v := (m.Get(i, j) - m.Get(j, i)) / 2
			m.Set(i, j, v)
			m.Set(j, i, -v)
		}
		m.Set(i, i, 0)
	}
}

func (m *InteractionMatrix) Clamp(lo, hi float32) {
	for i, v := range m.Data {
		m.Data[i] = clamp32(v, lo, hi)
	}
}

func (m *InteractionMatrix) Validate() error {
	if len(m.Data) != m.N*m.N {
		return fmt.Errorf("%w: interaction data has %d entries, want %d", ErrInvalidMatrix, len(m.Data), m.N*m.N)
	}
	for i, v := range m.Data {
		switch {
		case math.IsNaN(float64(v)):
			return fmt.Errorf("%w: NaN interaction at index %d", ErrInvalidMatrix, i)
		case math.IsInf(float64(v), 0):
			return fmt.Errorf("%w: infinite interaction at index %d", ErrInvalidMatrix, i)
		case v < -InteractionLimit || v > InteractionLimit:
			return fmt.Errorf("%w: interaction %g at index %d outside [-2, 2]", ErrInvalidMatrix, v, i)
		}
	}
	return nil
}

// RadiusMatrix holds the per type-pair distance band. Below Min particles
// repel; between Min and Max the interaction applies with linear falloff.
type RadiusMatrix struct {
	Min []float32 `yaml:"min" json:"min"`
	Max []float32 `yaml:"max" json:"max"`
	N   int       `yaml:"size" json:"size"`
}

func NewRadiusMatrix(n int, minR, maxR float32) *RadiusMatrix {
	r := &RadiusMatrix{Min: make([]float32, n*n), Max: make([]float32, n*n), N: n}
	r.SetUniform(minR, maxR)
	return r
}

// DefaultRadiusMatrix uses a 30..80 band for every pair.
func DefaultRadiusMatrix(n int) *RadiusMatrix {
	return NewRadiusMatrix(n, 30, 80)
}

func (r *RadiusMatrix) Size() int { return r.N }

func (r *RadiusMatrix) GetMin(from, to int) float32 { return r.Min[from*r.N+to] }
func (r *RadiusMatrix) GetMax(from, to int) float32 { return r.Max[from*r.N+to] }

func (r *RadiusMatrix) Set(from, to int, minR, maxR float32) {
	idx := from*r.N + to
	r.Min[idx] = minR
	r.Max[idx] = maxR
}

func (r *RadiusMatrix) SetUniform(minR, maxR float32) {
	for i := range r.Min {
		r.Min[i] = minR
	}
	for i := range r.Max {
		r.Max[i] = maxR
	}
}

func (r *RadiusMatrix) Clone() *RadiusMatrix {
	c := &RadiusMatrix{Min: make([]float32, len(r.Min)), Max: make([]float32, len(r.Max)), N: r.N}
	copy(c.Min, r.Min)
	copy(c.Max, r.Max)
	return c
}

// MaxInteractionRadius is the global maximum of Max. It bounds the
// spatial grid cell size.
func (r *RadiusMatrix) MaxInteractionRadius() float32 {
	var out float32
	for _, v := range r.Max {
		if v > out {
			out = v
		}
	}
	return out
}

func (r *RadiusMatrix) Validate() error {
	if len(r.Min) != r.N*r.N {
		return fmt.Errorf("%w: min radius size mismatch", ErrInvalidMatrix)
	}
	if len(r.Max) != r.N*r.N {
		return fmt.Errorf("%w: max radius size mismatch", ErrInvalidMatrix)
	}
	for i := range r.Min {
		lo, hi := r.Min[i], r.Max[i]
		switch {
		case !isFinite(lo) || !isFinite(hi):
			return fmt.Errorf("%w: non-finite radius at index %d", ErrInvalidMatrix, i)
		case lo < 0:
			return fmt.Errorf("%w: negative min radius at index %d", ErrInvalidMatrix, i)
		case hi < lo:
			return fmt.Errorf("%w: max radius %g < min radius %g at index %d", ErrInvalidMatrix, hi, lo, i)
		}
	}
	return nil
}
