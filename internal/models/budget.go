// Package models defines the core domain entities: budgets, spending records,
// forecasts, rate observations, and alerts.
package models

import (
	"errors"
	"math"
	"time"
)

// Budget is a spending limit over a fixed period for one category.
type Budget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks budget field constraints.
func (b *Budget) Validate() error {
	if b.ID == "" {
		return errors.New("budget ID must not be empty")
	}
	if b.Name == "" {
		return errors.New("budget name must not be empty")
	}
	if b.Category == "" {
		return errors.New("budget category must not be empty")
	}
	if math.IsNaN(b.Amount) || math.IsInf(b.Amount, 0) {
		return errors.New("budget amount must be finite")
	}
	if b.Amount < 0 {
		return errors.New("budget amount must not be negative")
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return errors.New("budget period bounds must be set")
	}
	if b.EndDate.Before(b.StartDate) {
		return errors.New("budget end date must be >= start date")
	}
	return nil
}

// ActiveAt reports whether t falls inside the budget period.
func (b *Budget) ActiveAt(t time.Time) bool {
	return !t.Before(b.StartDate) && !t.After(b.EndDate)
}

// SpendingRecord is a single expense. Callers of the forecast engine must pass
// records in ascending SpentAt order.
type SpendingRecord struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Amount   float64   `json:"amount"`
	SpentAt  time.Time `json:"spent_at"`
	Note     string    `json:"note,omitempty"`
}

// Validate checks spending record field constraints.
func (r *SpendingRecord) Validate() error {
	if r.ID == "" {
		return errors.New("spending record ID must not be empty")
	}
	if r.Category == "" {
		return errors.New("spending record category must not be empty")
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return errors.New("spending amount must be finite")
	}
	if r.Amount < 0 {
		return errors.New("spending amount must not be negative")
	}
	if r.SpentAt.IsZero() {
		return errors.New("spending timestamp must be set")
	}
	return nil
}
