package flight

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tr := New()
	if tr == nil {
		t.Fatal("New() returned nil")
	}
	if tr.m == nil {
		t.Error("New() did not initialize map")
	}
}

func TestBeginEnd(t *testing.T) {
	tr := New()

	if !tr.Begin("key1") {
		t.Fatal("Begin() on idle key returned false")
	}
	if !tr.InFlight("key1") {
		t.Error("InFlight() = false after Begin()")
	}
	if tr.Begin("key1") {
		t.Error("Begin() on in-flight key returned true")
	}

	// Distinct keys are independent
	if !tr.Begin("key2") {
		t.Error("Begin() on a different key returned false")
	}

	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.End("key1", done)

	if tr.InFlight("key1") {
		t.Error("InFlight() = true after End()")
	}
	got, ok := tr.LastCompleted("key1")
	if !ok {
		t.Fatal("LastCompleted() reported no completion after End()")
	}
	if !got.Equal(done) {
		t.Errorf("LastCompleted() = %v, want %v", got, done)
	}

	// Key is reusable after completion
	if !tr.Begin("key1") {
		t.Error("Begin() after End() returned false")
	}
}

func TestLastCompletedUnknownKey(t *testing.T) {
	tr := New()

	if _, ok := tr.LastCompleted("missing"); ok {
		t.Error("LastCompleted() on unknown key reported a completion")
	}

	tr.Begin("started")
	if _, ok := tr.LastCompleted("started"); ok {
		t.Error("LastCompleted() on never-completed key reported a completion")
	}
}

func TestForget(t *testing.T) {
	tr := New()

	tr.Begin("key1")
	tr.End("key1", time.Now())
	tr.Begin("key1")

	tr.Forget("key1")

	if tr.InFlight("key1") {
		t.Error("InFlight() = true after Forget()")
	}
	if _, ok := tr.LastCompleted("key1"); ok {
		t.Error("LastCompleted() still set after Forget()")
	}
	if !tr.Begin("key1") {
		t.Error("Begin() after Forget() returned false")
	}
}

func TestBeginConcurrent(t *testing.T) {
	tr := New()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Begin("shared") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}
