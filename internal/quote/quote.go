// Package quote serves fused exchange rates and currency conversions.
package quote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spendcast/internal/fusion"
	"github.com/rewired-gh/spendcast/internal/logger"
	"github.com/rewired-gh/spendcast/internal/models"
)

var (
	ErrInvalidPair  = errors.New("invalid currency pair")
	ErrNoQuotes     = errors.New("no quotes available")
	ErrInvalidInput = errors.New("invalid amount")
)

// Source supplies the observations for one fusion round of a pair.
type Source interface {
	Observations(pair string) ([]models.RateObservation, error)
}

// StaticSource serves a fixed set of observations per pair.
type StaticSource map[string][]models.RateObservation

func (s StaticSource) Observations(pair string) ([]models.RateObservation, error) {
	return s[pair], nil
}

// Conversion is the result of converting an amount between currencies.
type Conversion struct {
	From      string          `json:"from_currency"`
	To        string          `json:"to_currency"`
	Amount    decimal.Decimal `json:"original_amount"`
	Converted decimal.Decimal `json:"converted_amount"`
	Rate      float64         `json:"rate"`
}

// ConvertedPlaces is the number of decimal places kept in converted amounts.
const ConvertedPlaces = 4

// Service fuses source observations through a long-lived coordinator so the
// per-pair filters accumulate across calls.
type Service struct {
	source      Source
	coordinator *fusion.Coordinator
	now         func() time.Time
}

func NewService(source Source, coordinator *fusion.Coordinator) *Service {
	return &Service{
		source:      source,
		coordinator: coordinator,
		now:         time.Now,
	}
}

// NormalizePair upper-cases and validates a "BASE/QUOTE" pair.
func NormalizePair(pair string) (string, error) {
	parts := strings.Split(strings.TrimSpace(pair), "/")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	counter := strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || counter == "" || base == counter {
		return "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return base + "/" + counter, nil
}

// Quote runs one fusion round for pair and returns the fused rate with its
// confidence.
func (s *Service) Quote(pair string) (*models.Quote, error) {
	pair, err := NormalizePair(pair)
	if err != nil {
		return nil, err
	}

	obs, err := s.source.Observations(pair)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observations for %s: %w", pair, err)
	}

	if _, ok := s.coordinator.Fuse(pair, obs); !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoQuotes, pair)
	}
	rate, confidence, _ := s.coordinator.RateWithConfidence(pair)
	logger.Debug("Fused %s from %d observations: rate=%.6f confidence=%.4f", pair, len(obs), rate, confidence)

	return &models.Quote{
		Pair:       pair,
		Rate:       rate,
		Confidence: confidence,
		Sources:    len(obs),
		Timestamp:  s.now(),
	}, nil
}

// Convert converts amount from one currency to another using the fused
// from/to rate. Converting a currency to itself uses a rate of 1.
func (s *Service) Convert(from, to string, amount decimal.Decimal) (*Conversion, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, amount)
	}
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	rate := 1.0
	if from != to {
		q, err := s.Quote(from + "/" + to)
		if err != nil {
			return nil, err
		}
		rate = q.Rate
	}

	return &Conversion{
		From:      from,
		To:        to,
		Amount:    amount,
		Converted: amount.Mul(decimal.NewFromFloat(rate)).Round(ConvertedPlaces),
		Rate:      rate,
	}, nil
}
