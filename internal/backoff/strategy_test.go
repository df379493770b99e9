package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterNoJitter(t *testing.T) {
	strategy := ExponentialJitter{}

	tests := []struct {
		name     string
		retry    int
		base     time.Duration
		maxDelay time.Duration
		expected time.Duration
	}{
		{
			name:     "retry 1",
			retry:    1,
			base:     time.Second,
			maxDelay: time.Minute,
			expected: time.Second,
		},
		{
			name:     "retry 2",
			retry:    2,
			base:     time.Second,
			maxDelay: time.Minute,
			expected: 2 * time.Second,
		},
		{
			name:     "retry 3",
			retry:    3,
			base:     time.Second,
			maxDelay: time.Minute,
			expected: 4 * time.Second,
		},
		{
			name:     "retry 5",
			retry:    5,
			base:     time.Second,
			maxDelay: time.Minute,
			expected: 16 * time.Second,
		},
		{
			name:     "retry below 1 treated as 1",
			retry:    0,
			base:     time.Second,
			maxDelay: time.Minute,
			expected: time.Second,
		},
		{
			name:     "capped at maxDelay",
			retry:    10,
			base:     time.Second,
			maxDelay: 30 * time.Second,
			expected: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strategy.Delay(tt.retry, tt.base, tt.maxDelay, 0)
			if result != tt.expected {
				t.Errorf("Delay(%d, %v, %v, 0) = %v, want %v",
					tt.retry, tt.base, tt.maxDelay, result, tt.expected)
			}
		})
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	strategy := ExponentialJitter{}
	base := time.Second
	jitterMax := time.Second
	maxDelay := time.Minute

	// delay(n) must fall within [base·2^(n−1), base·2^(n−1)+jitterMax)
	for retry := 1; retry <= 5; retry++ {
		lower := time.Duration(float64(base) * Pow(2, retry-1))
		upper := lower + jitterMax

		for i := 0; i < 200; i++ {
			d := strategy.Delay(retry, base, maxDelay, jitterMax)
			if d < lower || d >= upper {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v)", retry, d, lower, upper)
			}
		}
	}
}

func TestExponentialJitterOverflowGuard(t *testing.T) {
	strategy := ExponentialJitter{}

	d := strategy.Delay(5000, time.Second, 30*time.Second, 0)
	if d != 30*time.Second {
		t.Errorf("Delay(5000) = %v, want capped at 30s", d)
	}
}

func TestPow(t *testing.T) {
	tests := []struct {
		base     float64
		exponent int
		expected float64
	}{
		{2.0, 0, 1.0},
		{2.0, 1, 2.0},
		{2.0, 4, 16.0},
		{3.0, 3, 27.0},
	}

	for _, tt := range tests {
		if got := Pow(tt.base, tt.exponent); got != tt.expected {
			t.Errorf("Pow(%v, %d) = %v, want %v", tt.base, tt.exponent, got, tt.expected)
		}
	}
}
