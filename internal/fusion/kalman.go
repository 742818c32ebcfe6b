// Package fusion combines noisy rate quotes from several sources into a single
// estimate per instrument using a scalar Kalman filter.
package fusion

// Filter is a single-state Kalman filter over a random-walk model.
//
// Folding several measurements as sequential single updates approximates a
// joint multi-sensor update; the result depends on measurement order when
// sources disagree with small noise variance.
type Filter struct {
	x float64 // estimate
	p float64 // error covariance
	q float64 // process noise
	r float64 // last observation noise
}

// NewFilter returns a filter seeded with an estimate and its variance.
// Negative variances are clamped to zero.
func NewFilter(estimate, variance, processNoise float64) *Filter {
	return &Filter{
		x: estimate,
		p: max(variance, 0),
		q: max(processNoise, 0),
	}
}

// Predict grows the error covariance by the process noise.
func (f *Filter) Predict() {
	f.p += f.q
}

// Update folds one measurement into the estimate. When both the error
// covariance and the measurement noise are zero the gain is 1: the
// measurement is taken as exact.
func (f *Filter) Update(measurement, noise float64) {
	f.r = max(noise, 0)

	gain := 1.0
	if s := f.p + f.r; s > 0 {
		gain = f.p / s
	}
	f.x += gain * (measurement - f.x)
	f.p *= 1 - gain
}

// Estimate returns the current state estimate.
func (f *Filter) Estimate() float64 { return f.x }

// Variance returns the current error covariance, always >= 0.
func (f *Filter) Variance() float64 { return f.p }

// Confidence maps the error covariance into (0, 1].
func (f *Filter) Confidence() float64 {
	return 1 / (1 + f.p)
}
