package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/spendcast/internal/forecast"
	"github.com/rewired-gh/spendcast/internal/models"
	"github.com/rewired-gh/spendcast/internal/storage"
)

// Thursday noon, two weeks into an October budget.
var evalTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, config Config) (*Monitor, *storage.Storage) {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	m := New(s, forecast.New(forecast.DefaultConfig()), config)
	m.now = func() time.Time { return evalTime }
	return m, s
}

func addBudget(t *testing.T, s *storage.Storage, name, category string, amount float64) *models.Budget {
	t.Helper()
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	b := &models.Budget{
		Name:      name,
		Category:  category,
		Amount:    amount,
		Currency:  "CNY",
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0).Add(-time.Second),
	}
	if err := s.AddBudget(b); err != nil {
		t.Fatalf("AddBudget: %v", err)
	}
	return b
}

// addDailySpend records amount once per day from Oct 1 up to evalTime.
func addDailySpend(t *testing.T, s *storage.Storage, category string, amount float64) {
	t.Helper()
	for d := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC); !d.After(evalTime); d = d.AddDate(0, 0, 1) {
		if err := s.AddSpending(&models.SpendingRecord{Category: category, Amount: amount, SpentAt: d}); err != nil {
			t.Fatalf("AddSpending: %v", err)
		}
	}
}

func TestRunCycle_AlertsOnForecastOverrun(t *testing.T) {
	m, s := newTestMonitor(t, DefaultConfig())

	over := addBudget(t, s, "Dining", "dining", 1000)
	under := addBudget(t, s, "Transport", "transport", 10000)
	addDailySpend(t, s, "dining", 100)
	addDailySpend(t, s, "transport", 20)

	alerts, err := m.RunCycle()
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.BudgetID != over.ID {
		t.Errorf("alert for %s, want %s", a.BudgetID, over.ID)
	}
	if a.Prediction.PredictedExceed <= 0 {
		t.Errorf("PredictedExceed = %v, want > 0", a.Prediction.PredictedExceed)
	}
	if a.ExceedRatio != a.Prediction.PredictedExceed/1000 {
		t.Errorf("ExceedRatio = %v, want %v", a.ExceedRatio, a.Prediction.PredictedExceed/1000)
	}
	if !a.DetectedAt.Equal(evalTime) {
		t.Errorf("DetectedAt = %v, want %v", a.DetectedAt, evalTime)
	}

	// Every evaluated budget gets a stored forecast.
	for _, b := range []*models.Budget{over, under} {
		p, err := s.LatestPrediction(b.ID)
		if err != nil {
			t.Fatalf("LatestPrediction(%s): %v", b.Name, err)
		}
		if !p.EvaluatedAt.Equal(evalTime) {
			t.Errorf("%s: EvaluatedAt = %v, want %v", b.Name, p.EvaluatedAt, evalTime)
		}
	}
}

func TestRunCycle_ConstantSpendForecast(t *testing.T) {
	m, s := newTestMonitor(t, DefaultConfig())
	b := addBudget(t, s, "Dining", "dining", 1000)
	addDailySpend(t, s, "dining", 100)

	result, err := m.Evaluate(b, evalTime)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// The 14-day window holds Oct 2..15, all at the same amount.
	if result.DailyAverage != 100 || result.WeightedAverage != 100 {
		t.Errorf("averages = %v/%v, want 100/100", result.DailyAverage, result.WeightedAverage)
	}
	if result.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1 for constant spend", result.Confidence)
	}
	if result.PredictedTotal <= 1500 {
		t.Errorf("PredictedTotal = %v, want above spend so far (1500)", result.PredictedTotal)
	}
}

func TestRunCycle_MinConfidence(t *testing.T) {
	config := DefaultConfig()
	config.MinConfidence = 0.99
	m, s := newTestMonitor(t, config)
	addBudget(t, s, "Dining", "dining", 100)

	// Erratic spend lowers confidence below the bar.
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, amt := range []float64{5, 300, 1, 250, 2, 400} {
		if err := s.AddSpending(&models.SpendingRecord{Category: "dining", Amount: amt, SpentAt: start.AddDate(0, 0, i)}); err != nil {
			t.Fatalf("AddSpending: %v", err)
		}
	}

	alerts, err := m.RunCycle()
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts, want 0 below min confidence", len(alerts))
	}
}

func TestRunCycle_NoBudgets(t *testing.T) {
	m, _ := newTestMonitor(t, DefaultConfig())
	alerts, err := m.RunCycle()
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts, want 0", len(alerts))
	}
}

type brokenStore struct{}

func (brokenStore) ActiveBudgets(time.Time) ([]*models.Budget, error) {
	return nil, errors.New("database is locked")
}

func (brokenStore) SpendingHistory(string, time.Time, time.Time) ([]models.SpendingRecord, error) {
	return nil, nil
}

func (brokenStore) SavePrediction(*models.Prediction) error { return nil }

func TestRunCycle_StoreError(t *testing.T) {
	m := New(brokenStore{}, forecast.New(forecast.DefaultConfig()), DefaultConfig())
	if _, err := m.RunCycle(); err == nil {
		t.Error("expected error when budgets cannot be loaded")
	}
}

func alert(id string, ratio float64) models.BudgetAlert {
	return models.BudgetAlert{BudgetID: id, BudgetName: id, ExceedRatio: ratio, DetectedAt: evalTime}
}

func TestPostProcessAlerts_RanksAndLimits(t *testing.T) {
	config := DefaultConfig()
	config.TopK = 2
	m, _ := newTestMonitor(t, config)

	in := []models.BudgetAlert{alert("a", 0.1), alert("b", 0.9), alert("c", 0.5)}
	got := m.PostProcessAlerts(in)

	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2", len(got))
	}
	if got[0].BudgetID != "b" || got[1].BudgetID != "c" {
		t.Errorf("order = %s,%s, want b,c", got[0].BudgetID, got[1].BudgetID)
	}
	if in[0].BudgetID != "a" {
		t.Error("PostProcessAlerts should not reorder its input")
	}
}

func TestFilterRecentlySent(t *testing.T) {
	config := DefaultConfig()
	config.Cooldown = 24 * time.Hour
	config.EscalationStep = 0.1
	m, _ := newTestMonitor(t, config)

	m.RecordNotified([]models.BudgetAlert{alert("a", 0.20), alert("b", 0.20)})

	tests := []struct {
		name     string
		advance  time.Duration
		alert    models.BudgetAlert
		wantKept bool
	}{
		{"same ratio within cooldown suppressed", time.Hour, alert("a", 0.20), false},
		{"small growth within cooldown suppressed", time.Hour, alert("a", 0.25), false},
		{"escalation within cooldown kept", time.Hour, alert("b", 0.31), true},
		{"after cooldown kept", 25 * time.Hour, alert("a", 0.20), true},
		{"never notified kept", time.Hour, alert("c", 0.01), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.now = func() time.Time { return evalTime.Add(tt.advance) }
			got := m.FilterRecentlySent([]models.BudgetAlert{tt.alert})
			if kept := len(got) == 1; kept != tt.wantKept {
				t.Errorf("kept = %v, want %v", kept, tt.wantKept)
			}
		})
	}
}
