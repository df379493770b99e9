package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for retry delay calculation algorithms.
type Strategy interface {
	// Delay returns the pause scheduled before retry n (1-indexed).
	// The initial attempt is never delayed, so n < 1 is treated as 1.
	Delay(retry int, base, maxDelay, jitterMax time.Duration) time.Duration
}

// ExponentialJitter doubles the base delay for every retry and adds a
// uniform random component drawn from [0, jitterMax), spreading out
// concurrent callers that failed at the same instant.
//
// Delay(n) = base·2^(n−1) + uniform(0, jitterMax). The exponential part
// is capped at maxDelay; the jitter component rides on top of the cap.
type ExponentialJitter struct{}

// Delay implements the Strategy interface.
func (ExponentialJitter) Delay(retry int, base, maxDelay, jitterMax time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}

	// Prevent overflow by limiting the exponent
	if retry > 30 {
		retry = 30
	}

	d := time.Duration(float64(base) * Pow(2, retry-1))
	if d < 0 || d > maxDelay {
		d = maxDelay
	}

	if jitterMax > 0 {
		d += time.Duration(rand.Int63n(int64(jitterMax)))
	}
	return d
}

// Pow calculates base^exponent using integer exponentiation, avoiding
// math.Pow rounding for the small exponents used here.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
