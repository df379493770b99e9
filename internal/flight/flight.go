// Package flight tracks logical requests in flight, keyed by resource.
// It provides the ownership half of the rate-limiting rule: at most one
// logical request per key at a time, plus the completion timestamp the
// inter-request interval is measured from.
package flight

import (
	"sync"
	"time"
)

// Tracker records which keys have a logical request in flight and when
// the last request for each key completed.
type Tracker struct {
	mu sync.Mutex
	m  map[string]*record
}

type record struct {
	inFlight      bool
	lastCompleted time.Time
	hasCompleted  bool
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		m: make(map[string]*record),
	}
}

// Begin marks key as having a request in flight. It returns false with
// no side effects if a request for key is already in flight.
func (t *Tracker) Begin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.m[key]
	if !ok {
		r = &record{}
		t.m[key] = r
	}
	if r.inFlight {
		return false
	}
	r.inFlight = true
	return true
}

// End clears the in-flight mark for key and stamps the completion time.
// Calling End for a key with no request in flight only updates the stamp.
func (t *Tracker) End(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.m[key]
	if !ok {
		r = &record{}
		t.m[key] = r
	}
	r.inFlight = false
	r.lastCompleted = at
	r.hasCompleted = true
}

// InFlight reports whether a request for key is currently in flight.
func (t *Tracker) InFlight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.m[key]
	return ok && r.inFlight
}

// LastCompleted returns the completion time of the most recent finished
// request for key, and whether any request has completed yet.
func (t *Tracker) LastCompleted(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.m[key]
	if !ok || !r.hasCompleted {
		return time.Time{}, false
	}
	return r.lastCompleted, true
}

// Forget drops all state for key, releasing any in-flight mark and
// clearing the completion stamp.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}
