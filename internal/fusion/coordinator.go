package fusion

import (
	"sync"

	"github.com/rewired-gh/spendcast/internal/logger"
	"github.com/rewired-gh/spendcast/internal/models"
)

type Config struct {
	ProcessNoise    float64
	InitialVariance float64
}

func DefaultConfig() Config {
	return Config{
		ProcessNoise:    1e-4,
		InitialVariance: 0.01,
	}
}

type entry struct {
	mu     sync.Mutex
	filter *Filter
}

// Coordinator owns one filter per instrument key for the lifetime of the
// process. Calls on the same key are serialized; distinct keys share no lock.
type Coordinator struct {
	config  Config
	entries sync.Map // key -> *entry
}

func NewCoordinator(config Config) *Coordinator {
	return &Coordinator{config: config}
}

// Fuse runs one fusion round for key: a single predict step followed by one
// update per observation in the given order. The first round for a key seeds
// the filter with the weight-averaged rate of its observations.
//
// Invalid observations are dropped. When none remain nothing is mutated and
// the current estimate is returned; ok is false if key has never been fused.
func (c *Coordinator) Fuse(key string, observations []models.RateObservation) (rate float64, ok bool) {
	valid := make([]models.RateObservation, 0, len(observations))
	for _, o := range observations {
		if err := o.Validate(); err != nil {
			logger.Debug("Dropping observation from %q for %s: %v", o.Source, key, err)
			continue
		}
		valid = append(valid, o)
	}

	if len(valid) == 0 {
		e, exists := c.lookup(key)
		if !exists {
			return 0, false
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.filter == nil {
			return 0, false
		}
		return e.filter.Estimate(), true
	}

	v, _ := c.entries.LoadOrStore(key, &entry{})
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filter == nil {
		e.filter = NewFilter(seedRate(valid), c.config.InitialVariance, c.config.ProcessNoise)
		logger.Debug("Seeded filter for %s at %.6f from %d observations", key, e.filter.Estimate(), len(valid))
	}

	e.filter.Predict()
	for _, o := range valid {
		e.filter.Update(o.Rate, o.NoiseVariance)
	}
	return e.filter.Estimate(), true
}

// RateWithConfidence returns the current estimate for key and its confidence
// 1/(1+p). ok is false if key has never been fused.
func (c *Coordinator) RateWithConfidence(key string) (rate, confidence float64, ok bool) {
	e, exists := c.lookup(key)
	if !exists {
		return 0, 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter == nil {
		return 0, 0, false
	}
	return e.filter.Estimate(), e.filter.Confidence(), true
}

// Keys returns the instrument keys that currently hold state.
func (c *Coordinator) Keys() []string {
	var keys []string
	c.entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}

func (c *Coordinator) lookup(key string) (*entry, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// seedRate is the weight-averaged rate, or the first rate when the total
// weight is zero. observations must be non-empty.
func seedRate(observations []models.RateObservation) float64 {
	var total, weighted float64
	for _, o := range observations {
		total += o.Weight
		weighted += o.Rate * o.Weight
	}
	if total > 0 {
		return weighted / total
	}
	return observations[0].Rate
}
