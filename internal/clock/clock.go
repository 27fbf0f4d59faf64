// Package clock abstracts the current time so token expiry can be tested
// without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Fixture is a manually driven clock for tests. It is safe for concurrent use.
type Fixture struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixture creates a Fixture set to start. A zero start means time.Now().
func NewFixture(start time.Time) *Fixture {
	if start.IsZero() {
		start = time.Now()
	}
	return &Fixture{now: start}
}

// Now returns the fixture time.
func (f *Fixture) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fixture) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixture) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
