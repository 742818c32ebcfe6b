package forecast

import "math"

// NeutralConfidence is reported when a window has too few points to measure spread.
const NeutralConfidence = 0.5

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// populationStdDev divides by n, not n-1.
func (w *welford) populationStdDev() float64 {
	if w.count == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// WeightedAverage returns the linear recency-weighted mean of values: element i
// (0-based) gets weight i+1, so later elements dominate. Returns 0 for an empty slice.
func WeightedAverage(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var weighted float64
	for i, v := range values {
		weighted += v * float64(i+1)
	}
	weightSum := float64(n*(n+1)) / 2
	return weighted / weightSum
}

// Confidence scores the stability of values as 1/(1+cv), where cv is the
// population standard deviation over mean. A non-positive mean counts as cv=1.
// Fewer than two values yield NeutralConfidence.
func Confidence(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return NeutralConfidence
	}

	var w welford
	for _, v := range values {
		w.add(v)
	}

	cv := 1.0
	if mean > 0 {
		cv = w.populationStdDev() / mean
	}
	if math.IsNaN(cv) || cv < 0 {
		return 0
	}
	return 1 / (1 + cv)
}
