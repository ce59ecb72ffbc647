package flowtable

import "math"

// RunningStat tracks count, sum, min, max, mean and variance of a series
// without storing it, using Welford's online algorithm. The zero value is
// ready to use; all accessors return 0 on an empty series.
type RunningStat struct {
	n    uint64
	mean float64
	m2   float64
	min  float64
	max  float64
}

// Push adds a single observation.
func (s *RunningStat) Push(x float64) {
	s.n++
	if s.n == 1 {
		s.mean = x
		s.min = x
		s.max = x
		return
	}
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (x - s.mean)
	if x < s.min {
		s.min = x
	}
	if x > s.max {
		s.max = x
	}
}

// Count returns the number of observations.
func (s *RunningStat) Count() uint64 {
	return s.n
}

// Sum returns the total of all observations.
func (s *RunningStat) Sum() float64 {
	return s.mean * float64(s.n)
}

// Mean returns the arithmetic mean.
func (s *RunningStat) Mean() float64 {
	return s.mean
}

// Variance returns the population variance.
func (s *RunningStat) Variance() float64 {
	if s.n == 0 {
		return 0
	}
	return s.m2 / float64(s.n)
}

// Std returns the population standard deviation.
func (s *RunningStat) Std() float64 {
	return math.Sqrt(s.Variance())
}

// Min returns the smallest observation, 0 when empty.
func (s *RunningStat) Min() float64 {
	return s.min
}

// Max returns the largest observation, 0 when empty.
func (s *RunningStat) Max() float64 {
	return s.max
}
