package permutation

import (
	"math"

	domain "permtest/domain/permutation"

	"github.com/montanaflynn/stats"
)

// dropNaN returns the non-NaN values of data in their original order
func dropNaN(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// NaNMean is the mean of the non-NaN values, NaN if there are none
func NaNMean(data []float64) float64 {
	m, err := stats.Mean(dropNaN(data))
	if err != nil {
		return math.NaN()
	}
	return m
}

// sumOfSquares returns (n-1)*var over the non-NaN values and their count
func sumOfSquares(data []float64) (float64, int) {
	clean := dropNaN(data)
	if len(clean) < 2 {
		return 0, len(clean)
	}
	v, err := stats.SampleVariance(clean)
	if err != nil {
		return math.NaN(), len(clean)
	}
	return v * float64(len(clean)-1), len(clean)
}

// PooledStdDev pools the sample variances of both samples by degrees of freedom
func PooledStdDev(sample1, sample2 []float64) float64 {
	ss1, n1 := sumOfSquares(sample1)
	ss2, n2 := sumOfSquares(sample2)
	df := n1 + n2 - 2
	if df <= 0 {
		return math.NaN()
	}
	return math.Sqrt((ss1 + ss2) / float64(df))
}

// HedgesG is the mean difference scaled by the pooled standard deviation.
// A zero pooled deviation yields NaN or ±Inf.
func HedgesG(sample1, sample2 []float64) (effect, observed, pooled float64) {
	observed = NaNMean(sample1) - NaNMean(sample2)
	pooled = PooledStdDev(sample1, sample2)
	return observed / pooled, observed, pooled
}

// summarize describes the finite part of the null distribution
func summarize(null []float64) domain.NullSummary {
	clean := make([]float64, 0, len(null))
	for _, v := range null {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		nan := math.NaN()
		return domain.NullSummary{Mean: nan, StdDev: nan, Min: nan, Max: nan, P025: nan, P975: nan}
	}

	var s domain.NullSummary
	s.Mean, _ = stats.Mean(clean)
	s.Min, _ = stats.Min(clean)
	s.Max, _ = stats.Max(clean)
	s.P025, _ = stats.Percentile(clean, 2.5)
	s.P975, _ = stats.Percentile(clean, 97.5)
	if len(clean) > 1 {
		s.StdDev, _ = stats.StandardDeviationSample(clean)
	}
	return s
}

// pool holds the concatenated observations for recomputing group means
type pool struct {
	values []float64
	n1     int
}

func newPool(sample1, sample2 []float64) *pool {
	values := make([]float64, 0, len(sample1)+len(sample2))
	values = append(values, sample1...)
	values = append(values, sample2...)
	return &pool{values: values, n1: len(sample1)}
}

func (p *pool) size() int { return len(p.values) }

// difference is the NaN-excluding mean of the members minus that of the rest.
// Sums run in index order so the identity assignment reproduces the observed difference.
func (p *pool) difference(member []bool) float64 {
	var sum1, sum2 float64
	var c1, c2 int
	for i, v := range p.values {
		if math.IsNaN(v) {
			continue
		}
		if member[i] {
			sum1 += v
			c1++
		} else {
			sum2 += v
			c2++
		}
	}
	return sum1/float64(c1) - sum2/float64(c2)
}
