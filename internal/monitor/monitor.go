package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/spendcast/internal/forecast"
	"github.com/rewired-gh/spendcast/internal/logger"
	"github.com/rewired-gh/spendcast/internal/models"
)

type Config struct {
	TopK           int
	Cooldown       time.Duration
	MinConfidence  float64
	EscalationStep float64
}

func DefaultConfig() Config {
	return Config{
		TopK:           10,
		Cooldown:       24 * time.Hour,
		MinConfidence:  0,
		EscalationStep: 0.1,
	}
}

// Store is the persistence the monitor reads budgets and history from and
// writes forecasts to.
type Store interface {
	ActiveBudgets(at time.Time) ([]*models.Budget, error)
	SpendingHistory(category string, from, to time.Time) ([]models.SpendingRecord, error)
	SavePrediction(p *models.Prediction) error
}

type notifiedRecord struct {
	ExceedRatio float64
	SentAt      time.Time
}

// Monitor evaluates active budgets each cycle and raises alerts for those
// forecast to overshoot.
type Monitor struct {
	store           Store
	engine          *forecast.Engine
	notifiedBudgets map[string]notifiedRecord
	config          Config
	now             func() time.Time
}

func New(s Store, engine *forecast.Engine, config Config) *Monitor {
	return &Monitor{
		store:           s,
		engine:          engine,
		notifiedBudgets: make(map[string]notifiedRecord),
		config:          config,
		now:             time.Now,
	}
}

// Evaluate forecasts a single budget as of now without persisting anything.
func (m *Monitor) Evaluate(b *models.Budget, now time.Time) (models.PredictionResult, error) {
	// The lookback window is never shorter than one day, even on the first day.
	from := b.StartDate
	if dayBefore := now.Add(-24 * time.Hour); dayBefore.Before(from) {
		from = dayBefore
	}
	history, err := m.store.SpendingHistory(b.Category, from, now)
	if err != nil {
		return models.PredictionResult{}, fmt.Errorf("failed to load history for budget %s: %w", b.ID, err)
	}
	return m.engine.Predict(history, b.Amount, b.StartDate, b.EndDate, now), nil
}

func exceedRatio(b *models.Budget, r models.PredictionResult) float64 {
	if b.Amount <= 0 {
		return r.PredictedExceed
	}
	return r.PredictedExceed / b.Amount
}

// RunCycle evaluates every active budget, stores each forecast, and returns
// the alerts for budgets predicted to exceed with enough confidence. A failure
// on one budget is logged and does not stop the cycle.
func (m *Monitor) RunCycle() ([]models.BudgetAlert, error) {
	now := m.now()
	budgets, err := m.store.ActiveBudgets(now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active budgets: %w", err)
	}

	var alerts []models.BudgetAlert
	var evaluated int
	var maxRatio float64

	for _, b := range budgets {
		result, err := m.Evaluate(b, now)
		if err != nil {
			logger.Warn("Skipping budget %s: %v", b.ID, err)
			continue
		}
		evaluated++

		if err := m.store.SavePrediction(&models.Prediction{
			BudgetID:    b.ID,
			Result:      result,
			EvaluatedAt: now,
		}); err != nil {
			logger.Warn("Failed to save prediction for budget %s: %v", b.ID, err)
		}

		ratio := exceedRatio(b, result)
		if ratio > maxRatio {
			maxRatio = ratio
		}
		logger.Debug("Budget %s (%s): total=%.2f/%.2f exceed=%.2f conf=%.3f daily=%.2f weighted=%.2f",
			b.ID, b.Name, result.PredictedTotal, b.Amount, result.PredictedExceed,
			result.Confidence, result.DailyAverage, result.WeightedAverage)

		if result.PredictedExceed <= 0 || result.Confidence < m.config.MinConfidence {
			continue
		}
		alerts = append(alerts, models.BudgetAlert{
			BudgetID:     b.ID,
			BudgetName:   b.Name,
			Category:     b.Category,
			Currency:     b.Currency,
			BudgetAmount: b.Amount,
			Prediction:   result,
			ExceedRatio:  ratio,
			DetectedAt:   now,
		})
	}

	logger.Debug("Evaluated %d active budgets: max_exceed_ratio=%.3f, %d forecast to exceed",
		evaluated, maxRatio, len(alerts))

	return alerts, nil
}

// FilterRecentlySent drops alerts already sent within the cooldown unless the
// exceed ratio has grown by at least the escalation step since.
func (m *Monitor) FilterRecentlySent(alerts []models.BudgetAlert) []models.BudgetAlert {
	now := m.now()
	var result []models.BudgetAlert

	for _, alert := range alerts {
		rec, exists := m.notifiedBudgets[alert.BudgetID]
		if exists && now.Sub(rec.SentAt) < m.config.Cooldown {
			if alert.ExceedRatio < rec.ExceedRatio+m.config.EscalationStep {
				continue
			}
		}
		result = append(result, alert)
	}

	return result
}

// RecordNotified remembers the alerts that were delivered.
func (m *Monitor) RecordNotified(alerts []models.BudgetAlert) {
	now := m.now()
	for _, alert := range alerts {
		m.notifiedBudgets[alert.BudgetID] = notifiedRecord{
			ExceedRatio: alert.ExceedRatio,
			SentAt:      now,
		}
	}
}

// PostProcessAlerts ranks alerts by exceed ratio, keeps the top K, and drops
// recently sent ones.
func (m *Monitor) PostProcessAlerts(alerts []models.BudgetAlert) []models.BudgetAlert {
	ranked := make([]models.BudgetAlert, len(alerts))
	copy(ranked, alerts)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ExceedRatio > ranked[j].ExceedRatio
	})

	if len(ranked) > m.config.TopK {
		ranked = ranked[:m.config.TopK]
	}

	return m.FilterRecentlySent(ranked)
}
