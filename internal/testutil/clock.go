package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a DeterministicClock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe wall clock for tests that advances
// one second on every reading.
//
// Pass clock.Now wherever a func() time.Time is expected (ingest.WithClock)
// to make run timestamps reproducible.
type DeterministicClock struct {
	mu    sync.Mutex
	base  time.Time
	ticks int64
}

// NewDeterministicClock creates a clock starting at base. A zero base
// means Epoch.
//
// The first call to Now returns base plus one second.
func NewDeterministicClock(base time.Time) *DeterministicClock {
	if base.IsZero() {
		base = Epoch
	}
	return &DeterministicClock{base: base.UTC()}
}

// Now advances the clock by one second and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return c.base.Add(time.Duration(c.ticks) * time.Second)
}

// Ticks returns how many times Now has been called since the last Reset.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its base.
//
// Used for test reuse. After Reset(), the next call to Now() returns base
// plus one second again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
