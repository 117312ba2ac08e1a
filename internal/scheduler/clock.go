package scheduler

import (
	"sync"
	"time"
)

// Clock supplies the tick counter. Ticks are milliseconds and wrap at 2^32,
// roughly every 49.7 days; all comparisons go through Due or Since.
type Clock interface {
	Now() uint32
}

// MonotonicClock counts milliseconds since it was created.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock starting at the current instant.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now returns the low 32 bits of the elapsed milliseconds.
func (c *MonotonicClock) Now() uint32 {
	return uint32(time.Since(c.start).Milliseconds()) //nolint:gosec // wraparound is the contract
}

// ManualClock is a Clock advanced explicitly, for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now uint32
}

// NewManualClock returns a clock reading start.
func NewManualClock(start uint32) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, wrapping as the real counter would.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += uint32(d.Milliseconds()) //nolint:gosec // wraparound is the contract
	c.mu.Unlock()
}

// Set jumps the clock to an absolute reading.
func (c *ManualClock) Set(now uint32) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
