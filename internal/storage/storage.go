// Package storage provides SQLite-backed persistence for budgets, spending
// records, and forecast history.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/spendcast/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db             *sql.DB
	maxPredictions int
}

// New opens or creates the SQLite database at dbPath, keeping at most
// maxPredictions forecasts per budget. An empty dbPath defaults to
// $TMPDIR/spendcast/data.db.
func New(maxPredictions int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "spendcast", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxPredictions: maxPredictions}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS budgets (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			category    TEXT NOT NULL,
			amount      REAL NOT NULL,
			currency    TEXT NOT NULL DEFAULT '',
			start_date  INTEGER NOT NULL,
			end_date    INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS spending (
			id        TEXT PRIMARY KEY,
			category  TEXT NOT NULL,
			amount    REAL NOT NULL,
			spent_at  INTEGER NOT NULL,
			note      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spending_category_time ON spending(category, spent_at)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id                TEXT PRIMARY KEY,
			budget_id         TEXT NOT NULL REFERENCES budgets(id) ON DELETE CASCADE,
			predicted_total   REAL NOT NULL,
			predicted_exceed  REAL NOT NULL,
			confidence        REAL NOT NULL,
			daily_average     REAL NOT NULL,
			weighted_average  REAL NOT NULL,
			evaluated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_budget_time ON predictions(budget_id, evaluated_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddBudget inserts a budget, assigning an ID and creation time when unset.
func (s *Storage) AddBudget(b *models.Budget) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid budget: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO budgets (id, name, category, amount, currency, start_date, end_date, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.Name, b.Category, b.Amount, b.Currency,
		b.StartDate.UnixNano(), b.EndDate.UnixNano(), b.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert budget: %w", err)
	}
	return nil
}

func (s *Storage) GetBudget(id string) (*models.Budget, error) {
	row := s.db.QueryRow(`SELECT `+budgetCols+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("budget %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// ActiveBudgets returns budgets whose period contains at, oldest first.
func (s *Storage) ActiveBudgets(at time.Time) ([]*models.Budget, error) {
	rows, err := s.db.Query(`SELECT `+budgetCols+` FROM budgets
		WHERE start_date <= ? AND end_date >= ?
		ORDER BY created_at ASC`, at.UnixNano(), at.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()
	budgets := []*models.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *Storage) DeleteBudget(id string) error {
	res, err := s.db.Exec(`DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("budget %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddSpending inserts a spending record, assigning an ID when unset.
func (s *Storage) AddSpending(r *models.SpendingRecord) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid spending record: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO spending (id, category, amount, spent_at, note) VALUES (?,?,?,?,?)`,
		r.ID, r.Category, r.Amount, r.SpentAt.UnixNano(), r.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert spending record: %w", err)
	}
	return nil
}

// SpendingHistory returns the category's records in [from, to], ascending by
// time, the order the forecast engine requires.
func (s *Storage) SpendingHistory(category string, from, to time.Time) ([]models.SpendingRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, category, amount, spent_at, note FROM spending
		WHERE category = ? AND spent_at >= ? AND spent_at <= ?
		ORDER BY spent_at ASC, id ASC`,
		category, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query spending: %w", err)
	}
	defer rows.Close()

	records := []models.SpendingRecord{}
	for rows.Next() {
		var r models.SpendingRecord
		var spentAtNano int64
		if err := rows.Scan(&r.ID, &r.Category, &r.Amount, &spentAtNano, &r.Note); err != nil {
			return nil, fmt.Errorf("failed to scan spending record: %w", err)
		}
		r.SpentAt = time.Unix(0, spentAtNano).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// SavePrediction stores a forecast and trims the budget's history to the
// newest maxPredictions entries.
func (s *Storage) SavePrediction(p *models.Prediction) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO predictions
			(id, budget_id, predicted_total, predicted_exceed, confidence,
			 daily_average, weighted_average, evaluated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.BudgetID, p.Result.PredictedTotal, p.Result.PredictedExceed, p.Result.Confidence,
		p.Result.DailyAverage, p.Result.WeightedAverage, p.EvaluatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM predictions WHERE budget_id = ? AND id NOT IN (
			SELECT id FROM predictions WHERE budget_id = ?
			ORDER BY evaluated_at DESC LIMIT ?
		)`, p.BudgetID, p.BudgetID, s.maxPredictions); err != nil {
		return fmt.Errorf("failed to enforce prediction cap: %w", err)
	}

	return tx.Commit()
}

// Predictions returns the stored forecasts for a budget, newest first.
func (s *Storage) Predictions(budgetID string) ([]models.Prediction, error) {
	rows, err := s.db.Query(`
		SELECT id, budget_id, predicted_total, predicted_exceed, confidence,
		       daily_average, weighted_average, evaluated_at
		FROM predictions WHERE budget_id = ?
		ORDER BY evaluated_at DESC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var evaluatedAtNano int64
		err := rows.Scan(
			&p.ID, &p.BudgetID, &p.Result.PredictedTotal, &p.Result.PredictedExceed, &p.Result.Confidence,
			&p.Result.DailyAverage, &p.Result.WeightedAverage, &evaluatedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.EvaluatedAt = time.Unix(0, evaluatedAtNano).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPrediction returns the newest forecast for a budget.
func (s *Storage) LatestPrediction(budgetID string) (*models.Prediction, error) {
	preds, err := s.Predictions(budgetID)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("prediction for budget %s: %w", budgetID, ErrNotFound)
	}
	return &preds[0], nil
}

const budgetCols = `id, name, category, amount, currency, start_date, end_date, created_at`

func scanBudget(scan func(...any) error) (*models.Budget, error) {
	var b models.Budget
	var startNano, endNano, createdNano int64
	err := scan(&b.ID, &b.Name, &b.Category, &b.Amount, &b.Currency, &startNano, &endNano, &createdNano)
	if err != nil {
		return nil, err
	}
	b.StartDate = time.Unix(0, startNano).UTC()
	b.EndDate = time.Unix(0, endNano).UTC()
	b.CreatedAt = time.Unix(0, createdNano).UTC()
	return &b, nil
}
