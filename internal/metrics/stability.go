package metrics

import (
	"github.com/san-kum/partlife/internal/dynamo"
)

// Stability is the fraction of observed snapshots in which every particle
// is finite and no speed exceeds the threshold.
type Stability struct {
	name       string
	threshold  float32
	violations int
	samples    int
	nonFinite  int
}

func NewStability(threshold float32) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(ps []dynamo.Particle, step int) {
	s.samples++
	limit := s.threshold * s.threshold
	violated := false
	for _, p := range ps {
		if !p.IsFinite() {
			s.nonFinite++
			violated = true
			continue
		}
		if p.Vel().LenSq() > limit {
			violated = true
		}
	}
	if violated {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

// NonFinite is the total count of non-finite particles seen.
func (s *Stability) NonFinite() int { return s.nonFinite }

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
	s.nonFinite = 0
}
