package drb

import (
	"fmt"
	"math"
)

// IncStats incrementally computes min/avg/max/variance over a stream of
// values fed via Add, using Welford's online algorithm so that no history
// needs to be retained.
//
// See https://www.johndcook.com/blog/standard_deviation/
type IncStats struct {
	n   int64
	mu  float64
	s2  float64
	Min float64
	Max float64
}

// NewIncStats returns an empty IncStats.
func NewIncStats() *IncStats {
	return &IncStats{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Add folds x into the running statistics.
func (s *IncStats) Add(x float64) {
	s.n++
	muPrev := s.mu
	s.mu += (x - muPrev) / float64(s.n)
	s.s2 += (x - muPrev) * (x - s.mu)

	if x < s.Min {
		s.Min = x
	}
	if x > s.Max {
		s.Max = x
	}
}

// N returns the number of values seen.
func (s *IncStats) N() int64 { return s.n }

// Avg returns the running mean, or NaN if nothing was added.
func (s *IncStats) Avg() float64 {
	if s.n == 0 {
		return math.NaN()
	}
	return s.mu
}

// Var returns the running (biased, /n) variance, or NaN if nothing was
// added.
func (s *IncStats) Var() float64 {
	if s.n == 0 {
		return math.NaN()
	}
	return s.s2 / float64(s.n)
}

// Std returns the running standard deviation.
func (s *IncStats) Std() float64 {
	return math.Sqrt(s.Var())
}

func (s *IncStats) String() string {
	return s.Format("%v", 1)
}

// Format renders min/avg/max/σ using fmt-verb and scales every value by
// 1/scale before formatting - handy e.g. to report durations in
// milliseconds.
func (s *IncStats) Format(verb string, scale float64) string {
	if s.n == 0 {
		return "min/avg/max/σ  ?/?/? ±?"
	}
	f := verb + "/" + verb + "/" + verb + " ±" + verb
	return "min/avg/max/σ  " + fmt.Sprintf(f, s.Min/scale, s.Avg()/scale, s.Max/scale, s.Std()/scale)
}
