package forecast

import (
	"time"

	"github.com/rewired-gh/spendcast/internal/models"
)

const day = 24 * time.Hour

// Calendar classifies dates that cannot be derived from the weekday alone.
// ok is false when the calendar has no opinion about t.
type Calendar interface {
	DayType(t time.Time) (dt models.DayType, ok bool)
}

// DateCalendar is a fixed set of holiday and promotion dates keyed by
// calendar day (YYYY-MM-DD in the date's own location).
type DateCalendar struct {
	holidays   map[string]bool
	promotions map[string]bool
}

// NewDateCalendar builds a calendar from YYYY-MM-DD strings.
func NewDateCalendar(holidays, promotions []string) (*DateCalendar, error) {
	c := &DateCalendar{
		holidays:   make(map[string]bool, len(holidays)),
		promotions: make(map[string]bool, len(promotions)),
	}
	for _, d := range holidays {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return nil, err
		}
		c.holidays[t.Format(time.DateOnly)] = true
	}
	for _, d := range promotions {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return nil, err
		}
		c.promotions[t.Format(time.DateOnly)] = true
	}
	return c, nil
}

// DayType reports Promotion before Holiday when a date is listed as both.
func (c *DateCalendar) DayType(t time.Time) (models.DayType, bool) {
	key := t.Format(time.DateOnly)
	if c.promotions[key] {
		return models.Promotion, true
	}
	if c.holidays[key] {
		return models.Holiday, true
	}
	return models.Workday, false
}

// Seasonality maps calendar days to spend multipliers.
type Seasonality struct {
	Weights  models.DayTypeWeights
	Calendar Calendar // optional
}

// NewSeasonality returns a weekday-only model with the default weight table.
func NewSeasonality() Seasonality {
	return Seasonality{Weights: models.DefaultDayTypeWeights()}
}

// DayType classifies t. Saturday and Sunday are weekends; everything else is a
// workday unless the calendar says otherwise.
func (s Seasonality) DayType(t time.Time) models.DayType {
	if s.Calendar != nil {
		if dt, ok := s.Calendar.DayType(t); ok {
			return dt
		}
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return models.Weekend
	default:
		return models.Workday
	}
}

// Multiplier returns the spend multiplier for t.
func (s Seasonality) Multiplier(t time.Time) float64 {
	return s.Weights.Of(s.DayType(t))
}

// AverageMultiplier returns the mean multiplier over each day from start
// stepping by 24h while <= end. An empty range yields 1.0.
func (s Seasonality) AverageMultiplier(start, end time.Time) float64 {
	var counts [4]int
	var other int
	var total int
	for cur := start; !cur.After(end); cur = cur.Add(day) {
		dt := s.DayType(cur)
		if dt >= models.Workday && dt <= models.Promotion {
			counts[dt]++
		} else {
			other++
		}
		total++
	}
	if total == 0 {
		return 1.0
	}

	// Summing per-type shares keeps a homogeneous range exact.
	n := float64(total)
	avg := float64(other) / n * s.Weights.Workday
	for dt, c := range counts {
		if c == 0 {
			continue
		}
		avg += float64(c) / n * s.Weights.Of(models.DayType(dt))
	}
	return avg
}
