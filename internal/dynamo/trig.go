package dynamo

import "math"

// TrigTable provides precomputed sin values for fast float32 lookup.
// Cos is read from the same table a quarter turn ahead.
type TrigTable struct {
	sin []float32
	n   int
}

// DefaultTrigTable has 4096 entries (~0.0015 rad resolution).
var DefaultTrigTable = NewTrigTable(4096)

func NewTrigTable(n int) *TrigTable {
	if n < 4 {
		n = 4
	}
	t := &TrigTable{sin: make([]float32, n), n: n}
	for i := 0; i < n; i++ {
		t.sin[i] = float32(math.Sin(float64(i) * 2 * math.Pi / float64(n)))
	}
	return t
}

func (t *TrigTable) lookup(idx float64) float32 {
	idx = math.Mod(idx, float64(t.n))
	if idx < 0 {
		idx += float64(t.n)
	}
	i := int(idx)
	frac := float32(idx - float64(i))
	i0 := i % t.n
	i1 := (i + 1) % t.n
	return t.sin[i0]*(1-frac) + t.sin[i1]*frac
}

// SinCos returns interpolated sin and cos of angle (radians).
func (t *TrigTable) SinCos(angle float32) (sin, cos float32) {
	idx := float64(angle) * float64(t.n) / (2 * math.Pi)
	sin = t.lookup(idx)
	cos = t.lookup(idx + float64(t.n)/4)
	return
}

// FastSinCos uses the default table.
func FastSinCos(angle float32) (float32, float32) {
	return DefaultTrigTable.SinCos(angle)
}
