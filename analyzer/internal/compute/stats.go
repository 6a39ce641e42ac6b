package compute

import (
	"errors"
	"math"
)

// ErrInsufficientSamples is returned when a statistic is requested before
// enough samples have been accumulated to define it.
var ErrInsufficientSamples = errors.New("compute: insufficient samples")

// Accumulator keeps running statistics over a stream of reals using
// Welford's online algorithm. It holds no history; every update is O(1).
//
// The zero value is ready to use.
type Accumulator struct {
	n    int
	mean float64
	m2   float64 // sum of squared deviations from the running mean
	min  float64
	max  float64
}

// Add folds v into the running statistics.
func (a *Accumulator) Add(v float64) {
	a.n++
	if a.n == 1 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)
}

// N returns the number of samples seen.
func (a *Accumulator) N() int { return a.n }

// Mean returns the running mean, or 0 before the first sample.
func (a *Accumulator) Mean() float64 { return a.mean }

// Min returns the smallest sample, or 0 before the first sample.
func (a *Accumulator) Min() float64 { return a.min }

// Max returns the largest sample, or 0 before the first sample.
func (a *Accumulator) Max() float64 { return a.max }

// Variance returns the sample variance M2/(n-1).
// It returns ErrInsufficientSamples when fewer than two samples were seen.
func (a *Accumulator) Variance() (float64, error) {
	if a.n < 2 {
		return 0, ErrInsufficientSamples
	}
	return a.m2 / float64(a.n-1), nil
}

// PopulationVariance returns M2/n.
// It returns ErrInsufficientSamples before the first sample.
func (a *Accumulator) PopulationVariance() (float64, error) {
	if a.n < 1 {
		return 0, ErrInsufficientSamples
	}
	return a.m2 / float64(a.n), nil
}

// StdDev returns the sample standard deviation.
func (a *Accumulator) StdDev() (float64, error) {
	v, err := a.Variance()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// Summary is a point-in-time copy of an Accumulator. Variance and StdDev are
// nil when they are undefined.
type Summary struct {
	N        int      `json:"n" yaml:"n"`
	Mean     float64  `json:"mean" yaml:"mean"`
	Variance *float64 `json:"variance,omitempty" yaml:"variance,omitempty"`
	StdDev   *float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`
	Min      float64  `json:"min" yaml:"min"`
	Max      float64  `json:"max" yaml:"max"`
}

// Summary snapshots the accumulator.
func (a *Accumulator) Summary() Summary {
	s := Summary{N: a.n, Mean: a.mean, Min: a.min, Max: a.max}
	if v, err := a.Variance(); err == nil {
		sd := math.Sqrt(v)
		s.Variance = &v
		s.StdDev = &sd
	}
	return s
}
