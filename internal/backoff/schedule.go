package backoff

import (
	"time"
)

// Schedule binds a Strategy to its tuning parameters so callers only ask
// for "the delay before retry n". This centralizes delay logic that would
// otherwise be duplicated across the transport and its tests.
type Schedule struct {
	strategy  Strategy
	base      time.Duration
	maxDelay  time.Duration
	jitterMax time.Duration
}

// NewSchedule creates a schedule using the given strategy and parameters.
func NewSchedule(strategy Strategy, base, maxDelay, jitterMax time.Duration) *Schedule {
	return &Schedule{
		strategy:  strategy,
		base:      base,
		maxDelay:  maxDelay,
		jitterMax: jitterMax,
	}
}

// Delay computes the pause before retry n by delegating to the strategy.
func (s *Schedule) Delay(retry int) time.Duration {
	return s.strategy.Delay(retry, s.base, s.maxDelay, s.jitterMax)
}

// Strategy returns the strategy backing this schedule.
func (s *Schedule) Strategy() Strategy {
	return s.strategy
}
