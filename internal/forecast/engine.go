// Package forecast projects a budget's end-of-period spend from partial-period
// history, weighted by recency and calendar seasonality.
package forecast

import (
	"time"

	"github.com/rewired-gh/spendcast/internal/models"
)

type Config struct {
	WindowDays  int
	Seasonality Seasonality
}

func DefaultConfig() Config {
	return Config{
		WindowDays:  30,
		Seasonality: NewSeasonality(),
	}
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	config Config
}

func New(config Config) *Engine {
	if config.WindowDays < 1 {
		config.WindowDays = 1
	}
	return &Engine{config: config}
}

// wholeDays truncates toward zero and floors at 0.
func wholeDays(from, to time.Time) int {
	d := int(to.Sub(from) / day)
	if d < 0 {
		return 0
	}
	return d
}

// Predict forecasts the total spend of a budget period as of now. history must
// be in ascending chronological order. The inputs are not modified.
func (e *Engine) Predict(history []models.SpendingRecord, budgetAmount float64, periodStart, periodEnd, now time.Time) models.PredictionResult {
	daysElapsed := wholeDays(periodStart, now)
	window := min(e.config.WindowDays, daysElapsed)
	window = max(window, 1)

	windowStart := now.Add(-time.Duration(window) * day)
	var windowData []float64
	var spentSoFar float64
	for _, r := range history {
		if r.SpentAt.After(now) {
			continue
		}
		if !r.SpentAt.Before(windowStart) {
			windowData = append(windowData, r.Amount)
		}
		if !r.SpentAt.Before(periodStart) {
			spentSoFar += r.Amount
		}
	}

	if len(windowData) == 0 {
		return models.PredictionResult{}
	}

	dailyAvg := Mean(windowData)
	weightedAvg := WeightedAverage(windowData)

	daysLeft := wholeDays(now, periodEnd)
	factor := e.config.Seasonality.AverageMultiplier(now, periodEnd)

	predictedTotal := spentSoFar + weightedAvg*float64(daysLeft)*factor
	exceed := predictedTotal - budgetAmount
	if !(exceed > 0) {
		exceed = 0
	}

	return models.PredictionResult{
		PredictedTotal:  predictedTotal,
		PredictedExceed: exceed,
		Confidence:      Confidence(windowData, dailyAvg),
		DailyAverage:    dailyAvg,
		WeightedAverage: weightedAvg,
	}
}
