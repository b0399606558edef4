package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler thins out high-volume operational events. Compliance and security
// events never pass through it.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	roll         func() float64
}

// NewSampler creates a sampler keeping the given fraction (0.0 to 1.0) of events.
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
		roll:         rand.Float64, //nolint:gosec // sampling doesn't need crypto rand
	}
}

// Keep reports whether an event with action should be delivered.
func (s *Sampler) Keep(action string) bool {
	s.mu.RLock()
	rate, ok := s.rateByAction[action]
	if !ok {
		rate = s.defaultRate
	}
	s.mu.RUnlock()

	switch rate {
	case 0:
		return false
	case 1:
		return true
	}
	return s.roll() < rate
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
