package timer

import "sync/atomic"

// Callback runs when a timer expires. It receives the timer's argument and
// current interval. A non-zero return re-arms the timer that many ticks
// after the tick it fired on; zero consumes it.
type Callback func(arg any, interval Tick) Tick

// Flags govern how a timer survives object lifecycle changes.
type Flags uint8

const (
	// KeepOnDetach keeps the timer armed when its object is detached from
	// its parent.
	KeepOnDetach Flags = 1 << iota
	// KeepOnReload keeps the timer armed when its object is reloaded.
	KeepOnReload
)

// Timer is a one-shot or periodic callback armed on one owner's Queue.
//
// Expiry, interval and queue membership are guarded by the owner's lock.
type Timer struct {
	cb    Callback
	arg   any
	flags Flags

	expiry   Tick
	interval Tick
	seq      uint64
	index    int
	queue    *Queue

	executing atomic.Bool
	// firingOn is the queue of the owner running the callback.
	firingOn atomic.Pointer[Queue]
	// canceled is set when Cancel hits the timer mid-fire; it suppresses
	// the rearm. Guarded by the lock of the owner firing it.
	canceled bool
}

// New returns an unarmed timer.
func New(cb Callback, arg any, flags Flags) *Timer {
	return &Timer{cb: cb, arg: arg, flags: flags, index: -1}
}

// Arg returns the callback argument.
func (t *Timer) Arg() any { return t.arg }

// Flags returns the lifecycle flags.
func (t *Timer) Flags() Flags { return t.flags }

// Has reports whether all bits of f are set.
func (t *Timer) Has(f Flags) bool { return t.flags&f == f }

// Expiry returns the absolute tick the timer was last armed for.
func (t *Timer) Expiry() Tick { return t.expiry }

// Interval returns the delay the timer was last armed with.
func (t *Timer) Interval() Tick { return t.interval }

// IsExecuting reports whether the callback is running right now.
func (t *Timer) IsExecuting() bool { return t.executing.Load() }
