package models

import (
	"errors"
	"math"
	"time"
)

// PredictionResult is the outcome of one budget forecast.
type PredictionResult struct {
	PredictedTotal  float64 `json:"predicted_total"`
	PredictedExceed float64 `json:"predicted_exceed"`
	Confidence      float64 `json:"confidence"`
	DailyAverage    float64 `json:"daily_average"`
	WeightedAverage float64 `json:"weighted_average"`
}

// Prediction is a stored forecast for a budget at a given evaluation instant.
type Prediction struct {
	ID          string
	BudgetID    string
	Result      PredictionResult
	EvaluatedAt time.Time
}

// DayType classifies a calendar day for seasonal spend weighting.
type DayType int

const (
	Workday DayType = iota
	Weekend
	Holiday
	Promotion
)

func (d DayType) String() string {
	switch d {
	case Workday:
		return "workday"
	case Weekend:
		return "weekend"
	case Holiday:
		return "holiday"
	case Promotion:
		return "promotion"
	default:
		return "unknown"
	}
}

// DayTypeWeights maps each DayType to its spend multiplier.
type DayTypeWeights struct {
	Workday   float64
	Weekend   float64
	Holiday   float64
	Promotion float64
}

// DefaultDayTypeWeights returns the standard multiplier table.
func DefaultDayTypeWeights() DayTypeWeights {
	return DayTypeWeights{
		Workday:   1.0,
		Weekend:   1.3,
		Holiday:   1.8,
		Promotion: 2.5,
	}
}

// Of returns the multiplier for d. Unknown types weigh as a workday.
func (w DayTypeWeights) Of(d DayType) float64 {
	switch d {
	case Weekend:
		return w.Weekend
	case Holiday:
		return w.Holiday
	case Promotion:
		return w.Promotion
	default:
		return w.Workday
	}
}

// RateObservation is one source's quote for an instrument.
type RateObservation struct {
	Source        string  `json:"source"`
	Rate          float64 `json:"rate"`
	Weight        float64 `json:"weight"`
	NoiseVariance float64 `json:"noise_variance"`
}

// Validate checks that the observation can be folded into a filter.
func (o RateObservation) Validate() error {
	if math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0) {
		return errors.New("rate must be finite")
	}
	if math.IsNaN(o.Weight) || math.IsInf(o.Weight, 0) || o.Weight < 0 {
		return errors.New("weight must be finite and non-negative")
	}
	if math.IsNaN(o.NoiseVariance) || math.IsInf(o.NoiseVariance, 0) || o.NoiseVariance < 0 {
		return errors.New("noise variance must be finite and non-negative")
	}
	return nil
}

// Quote is a fused exchange rate for a currency pair.
type Quote struct {
	Pair       string    `json:"pair"`
	Rate       float64   `json:"rate"`
	Confidence float64   `json:"confidence"`
	Sources    int       `json:"sources"`
	Timestamp  time.Time `json:"timestamp"`
}

// BudgetAlert flags a budget forecast to overshoot its amount.
type BudgetAlert struct {
	BudgetID     string
	BudgetName   string
	Category     string
	Currency     string
	BudgetAmount float64
	Prediction   PredictionResult

	// ExceedRatio is PredictedExceed / BudgetAmount, or PredictedExceed when
	// the budget amount is zero.
	ExceedRatio float64

	DetectedAt time.Time
}
