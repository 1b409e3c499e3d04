package ledger

import (
	"sync"
	"time"
)

// Clock supplies the ledger's notion of "now". Implementations must never
// go backwards.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time, clamped so it never runs backwards
type SystemClock struct {
	mu   sync.Mutex
	last time.Time
}

// NewSystemClock creates a wall-clock time source
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current UTC time, or the previous reading if the wall
// clock stepped back.
func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// ManualClock is a settable clock for tests and simulations
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

// Now returns the current simulated time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set moves the clock to t if t is not earlier than the current reading
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t.UTC()
	}
}
