package weatherproof

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiterFirstRequestAllowed(t *testing.T) {
	rl := NewRateLimiter(time.Minute, newFakeClock())

	if !rl.Allow("oslo") {
		t.Error("Expected first request for a key to be allowed")
	}
}

func TestRateLimiterInFlightDenied(t *testing.T) {
	rl := NewRateLimiter(time.Minute, newFakeClock())

	if !rl.Allow("oslo") {
		t.Fatal("Expected first request to be allowed")
	}

	// The slot is taken until Done.
	if rl.Allow("oslo") {
		t.Error("Expected second request to be denied while first is in flight")
	}
	if !rl.Limited("oslo") {
		t.Error("Expected Limited to report true while in flight")
	}
}

func TestRateLimiterIntervalDenied(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(time.Minute, clock)

	if !rl.Allow("oslo") {
		t.Fatal("Expected first request to be allowed")
	}
	rl.Done("oslo")

	// Completed, but the minimum interval has not elapsed.
	if rl.Allow("oslo") {
		t.Error("Expected request to be denied inside the interval")
	}
	if !rl.Limited("oslo") {
		t.Error("Expected Limited to report true inside the interval")
	}

	clock.Advance(59 * time.Second)
	if rl.Allow("oslo") {
		t.Error("Expected request to be denied one second before the interval elapses")
	}

	clock.Advance(time.Second)
	if !rl.Allow("oslo") {
		t.Error("Expected request to be allowed once the interval elapsed")
	}
}

func TestRateLimiterIntervalMeasuredFromCompletion(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(time.Minute, clock)

	if !rl.Allow("oslo") {
		t.Fatal("Expected first request to be allowed")
	}
	// A slow request: 30s pass before it completes.
	clock.Advance(30 * time.Second)
	rl.Done("oslo")

	// 60s after the start is only 30s after completion.
	clock.Advance(30 * time.Second)
	if rl.Allow("oslo") {
		t.Error("Expected interval to be measured from completion, not start")
	}

	clock.Advance(30 * time.Second)
	if !rl.Allow("oslo") {
		t.Error("Expected request to be allowed a full interval after completion")
	}
}

func TestRateLimiterZeroIntervalKeepsInFlightGate(t *testing.T) {
	rl := NewRateLimiter(0, newFakeClock())

	if !rl.Allow("oslo") {
		t.Fatal("Expected first request to be allowed")
	}
	if rl.Allow("oslo") {
		t.Error("Expected in-flight gate to hold with zero interval")
	}
	rl.Done("oslo")

	// No interval: immediately allowed again.
	if !rl.Allow("oslo") {
		t.Error("Expected immediate allowance with zero interval")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute, newFakeClock())

	if !rl.Allow("oslo") {
		t.Fatal("Expected oslo to be allowed")
	}
	if !rl.Allow("paris") {
		t.Error("Expected paris to be unaffected by oslo's in-flight slot")
	}

	rl.Done("oslo")
	if rl.Allow("oslo") {
		t.Error("Expected oslo to be interval-limited after completion")
	}
	if !rl.Limited("paris") {
		t.Error("Expected paris to be limited while its own request is in flight")
	}
}

func TestRateLimiterReset(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(time.Minute, clock)

	if !rl.Allow("oslo") {
		t.Fatal("Expected first request to be allowed")
	}
	rl.Done("oslo")
	if rl.Allow("oslo") {
		t.Fatal("Expected interval denial before reset")
	}

	rl.Reset("oslo")
	if rl.Limited("oslo") {
		t.Error("Expected Limited false after reset")
	}
	if !rl.Allow("oslo") {
		t.Error("Expected request allowed immediately after reset")
	}
}

func TestRateLimiterConcurrentSingleWinner(t *testing.T) {
	rl := NewRateLimiter(time.Minute, newFakeClock())

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("oslo") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Errorf("Expected exactly one concurrent request to win the slot, got %d", allowed)
	}
}

func TestRateLimiterLimitedDoesNotReserve(t *testing.T) {
	rl := NewRateLimiter(time.Minute, newFakeClock())

	// Probing Limited must not consume the slot.
	for i := 0; i < 3; i++ {
		if rl.Limited("oslo") {
			t.Fatal("Expected fresh key to not be limited")
		}
	}
	if !rl.Allow("oslo") {
		t.Error("Expected Allow to succeed after Limited probes")
	}
}
