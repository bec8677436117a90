package testing

import (
	"sync"
	"time"

	"github.com/go-drift/pulse/pkg/timer"
)

// FakeClock is a timer.Clock whose time only moves when told to, for
// exercising timer.ClockSource deterministically.
// All methods are safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ timer.Clock = (*FakeClock)(nil)

// NewFakeClock returns a FakeClock starting at a fixed epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Source returns a ClockSource reading this clock, starting at tick zero.
func (c *FakeClock) Source(period time.Duration) *timer.ClockSource {
	return timer.NewClockSource(c, period)
}
