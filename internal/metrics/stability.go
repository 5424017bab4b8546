package metrics

import (
	"github.com/san-kum/demsim/internal/dem"
)

// Stability is the fraction of observations in which no registered node
// moves faster than the threshold speed.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(f *dem.Field, t float64) {
	s.samples++
	lim := s.threshold * s.threshold
	for _, n := range f.Nodes() {
		v := n.Dem().Vel
		// NaN fails the comparison and counts as a violation
		if !(v.Dot(v) <= lim) {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
