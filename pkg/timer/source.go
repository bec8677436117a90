package timer

import (
	"sync/atomic"
	"time"
)

// Tick is a point on the main loop's heartbeat. Ticks only move forward.
type Tick uint64

// MaxTick is the last representable tick. A timer armed for it only fires
// if the source ever reaches it.
const MaxTick = ^Tick(0)

// Add returns t+d, saturating at MaxTick.
func (t Tick) Add(d Tick) Tick {
	if d > MaxTick-t {
		return MaxTick
	}
	return t + d
}

// Source reports the current tick.
type Source interface {
	Now() Tick
}

// ManualSource is a Source advanced explicitly by its owner, typically once
// per frame by the main loop, or by tests.
// All methods are safe for concurrent use.
type ManualSource struct {
	now atomic.Uint64
}

// NewManualSource returns a ManualSource positioned at start.
func NewManualSource(start Tick) *ManualSource {
	s := &ManualSource{}
	s.now.Store(uint64(start))
	return s
}

// Now returns the current tick.
func (s *ManualSource) Now() Tick { return Tick(s.now.Load()) }

// Advance moves the source forward by n ticks and returns the new tick.
func (s *ManualSource) Advance(n Tick) Tick {
	return Tick(s.now.Add(uint64(n)))
}

// Set positions the source at t. Moving backwards is ignored.
func (s *ManualSource) Set(t Tick) {
	for {
		cur := s.now.Load()
		if uint64(t) <= cur || s.now.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Clock provides wall time to a ClockSource. Tests can supply a fake clock
// to control tick progression deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the Clock backed by time.Now.
var SystemClock Clock = systemClock{}

// ClockSource derives ticks from a Clock: one tick per Period elapsed since
// the source was created.
type ClockSource struct {
	clock  Clock
	start  time.Time
	period time.Duration
}

// NewClockSource returns a ClockSource. A nil clock uses SystemClock; a
// non-positive period defaults to one millisecond.
func NewClockSource(clock Clock, period time.Duration) *ClockSource {
	if clock == nil {
		clock = SystemClock
	}
	if period <= 0 {
		period = time.Millisecond
	}
	return &ClockSource{clock: clock, start: clock.Now(), period: period}
}

// Now returns the number of whole periods elapsed.
func (s *ClockSource) Now() Tick {
	d := s.clock.Now().Sub(s.start)
	if d <= 0 {
		return 0
	}
	return Tick(d / s.period)
}

// Period returns the duration of one tick.
func (s *ClockSource) Period() time.Duration { return s.period }

// Ticks converts d to ticks of the given period, rounding up so a delay is
// never shortened.
func Ticks(d, period time.Duration) Tick {
	if d <= 0 || period <= 0 {
		return 0
	}
	return Tick((d + period - 1) / period)
}
