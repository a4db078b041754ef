// Package stats summarises grain distributions for comparison between
// volumes: moments, extremes and a Gaussian kernel density estimate.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrEmptyDistribution reports a summary requested over no values.
	ErrEmptyDistribution = errors.New("stats: empty distribution")
	// ErrDegenerateDistribution reports a KDE requested over values with
	// zero spread, for which no bandwidth exists.
	ErrDegenerateDistribution = errors.New("stats: degenerate distribution")
)

// Summary holds the moments of a distribution.
type Summary struct {
	Count  int     `yaml:"count"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stdDev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyDistribution
	}
	return stat.Mean(values, nil), nil
}

// Summarize computes the Summary of values. The standard deviation is the
// unbiased sample estimate and is zero for a single value.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptyDistribution
	}
	s := Summary{
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s, nil
}

// Ints converts integer counts to float64 values.
func Ints(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// KDE is a one-dimensional Gaussian kernel density estimate.
type KDE struct {
	data      []float64
	bandwidth float64
	min, max  float64
}

// NewKDE builds a KDE over values with Scott's rule bandwidth,
// n^(-1/5) times the sample standard deviation.
func NewKDE(values []float64) (*KDE, error) {
	if len(values) == 0 {
		return nil, ErrEmptyDistribution
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: a single value has no spread", ErrDegenerateDistribution)
	}
	sd := stat.StdDev(values, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, fmt.Errorf("%w: all %d values are equal", ErrDegenerateDistribution, len(values))
	}
	data := make([]float64, len(values))
	copy(data, values)
	return &KDE{
		data:      data,
		bandwidth: math.Pow(float64(len(data)), -0.2) * sd,
		min:       floats.Min(data),
		max:       floats.Max(data),
	}, nil
}

// Bandwidth returns the kernel standard deviation.
func (k *KDE) Bandwidth() float64 {
	return k.bandwidth
}

// Density evaluates the estimate at x.
func (k *KDE) Density(x float64) float64 {
	kernel := distuv.Normal{Mu: 0, Sigma: k.bandwidth}
	sum := 0.0
	for _, d := range k.data {
		sum += kernel.Prob(x - d)
	}
	return sum / float64(len(k.data))
}

// Point is one sample of a density curve.
type Point struct {
	X       float64 `yaml:"x"`
	Density float64 `yaml:"density"`
}

// Curve samples the estimate at n evenly spaced points spanning the
// observed minimum to maximum. n is raised to 2 if smaller.
func (k *KDE) Curve(n int) []Point {
	if n < 2 {
		n = 2
	}
	xs := floats.Span(make([]float64, n), k.min, k.max)
	out := make([]Point, n)
	for i, x := range xs {
		out[i] = Point{X: x, Density: k.Density(x)}
	}
	return out
}
