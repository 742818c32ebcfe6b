package quote

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/spendcast/internal/fusion"
	"github.com/rewired-gh/spendcast/internal/models"
)

func newTestService(src Source) *Service {
	s := NewService(src, fusion.NewCoordinator(fusion.DefaultConfig()))
	s.now = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }
	return s
}

func cnyUSD() StaticSource {
	return StaticSource{
		"CNY/USD": {
			{Source: "central-bank", Rate: 6.50, Weight: 0.5, NoiseVariance: 0.0001},
			{Source: "yahoo", Rate: 6.52, Weight: 0.3, NoiseVariance: 0.01},
			{Source: "manual", Rate: 6.48, Weight: 0.2, NoiseVariance: 0.05},
		},
		"USD/EUR": {
			{Source: "exact", Rate: 0.5, Weight: 1, NoiseVariance: 0},
		},
	}
}

type failingSource struct{}

func (failingSource) Observations(string) ([]models.RateObservation, error) {
	return nil, errors.New("upstream down")
}

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"CNY/USD", "CNY/USD", false},
		{" cny / usd ", "CNY/USD", false},
		{"CNYUSD", "", true},
		{"CNY/USD/EUR", "", true},
		{"/USD", "", true},
		{"USD/usd", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePair(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePair(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPair) {
				t.Errorf("expected ErrInvalidPair, got %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizePair(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestService_Quote(t *testing.T) {
	s := newTestService(cnyUSD())

	q, err := s.Quote("cny/usd")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Pair != "CNY/USD" {
		t.Errorf("Pair = %q", q.Pair)
	}
	if q.Rate <= 6.45 || q.Rate >= 6.55 {
		t.Errorf("Rate = %v, want within (6.45, 6.55)", q.Rate)
	}
	if q.Confidence <= 0 || q.Confidence > 1 {
		t.Errorf("Confidence = %v, want within (0, 1]", q.Confidence)
	}
	if q.Sources != 3 {
		t.Errorf("Sources = %d, want 3", q.Sources)
	}

	// A second round keeps the same filter, so variance keeps shrinking.
	q2, err := s.Quote("CNY/USD")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q2.Confidence < q.Confidence {
		t.Errorf("confidence dropped across rounds: %v -> %v", q.Confidence, q2.Confidence)
	}
}

func TestService_QuoteErrors(t *testing.T) {
	s := newTestService(cnyUSD())
	if _, err := s.Quote("GBP/JPY"); !errors.Is(err, ErrNoQuotes) {
		t.Errorf("expected ErrNoQuotes, got %v", err)
	}
	if _, err := s.Quote("garbage"); !errors.Is(err, ErrInvalidPair) {
		t.Errorf("expected ErrInvalidPair, got %v", err)
	}

	f := newTestService(failingSource{})
	if _, err := f.Quote("CNY/USD"); err == nil {
		t.Error("expected source error to propagate")
	}
}

func TestService_Convert(t *testing.T) {
	s := newTestService(cnyUSD())

	c, err := s.Convert("usd", "eur", decimal.RequireFromString("123.45"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if c.From != "USD" || c.To != "EUR" {
		t.Errorf("currencies = %s/%s", c.From, c.To)
	}
	if !c.Converted.Equal(decimal.RequireFromString("61.725")) {
		t.Errorf("Converted = %s, want 61.725", c.Converted)
	}

	same, err := s.Convert("CNY", "cny", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Convert same currency: %v", err)
	}
	if same.Rate != 1 || !same.Converted.Equal(decimal.NewFromInt(10)) {
		t.Errorf("same-currency conversion = %+v", same)
	}

	if _, err := s.Convert("USD", "EUR", decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
