package event

import (
	"strings"
	"sync/atomic"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/timer"
)

// MaxNameLen bounds event names in bytes.
const MaxNameLen = 64

// Flags control how a record is dispatched.
type Flags uint32

const (
	// FlagAsync runs the handler on the dispatcher's executor.
	FlagAsync Flags = 1 << iota
	// FlagPropagate forwards the event to descendants after the handler ran.
	FlagPropagate
	// FlagScheduled marks a record with a pending delayed delivery. It is
	// owned by the dispatcher and cannot be changed through SetFlags.
	FlagScheduled
)

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagAsync != 0 {
		parts = append(parts, "async")
	}
	if f&FlagPropagate != 0 {
		parts = append(parts, "propagate")
	}
	if f&FlagScheduled != 0 {
		parts = append(parts, "scheduled")
	}
	return strings.Join(parts, "|")
}

// Handler runs a dispatched event. A returned error is reported through
// the process-wide error handler by the dispatcher.
type Handler func(ev *Event) error

// Record binds an event name to a handler on one object.
//
// Name, handler and bound arguments are fixed at creation. Flags may be
// changed at any time. The scheduled-delivery fields are guarded by the
// owning object's lock.
type Record struct {
	name    string
	handler Handler
	bound   Args
	flags   atomic.Uint32

	timer   *timer.Timer
	pending *Event
}

// NewRecord validates name and marshals the bound arguments.
func NewRecord(name string, handler Handler, format string, values ...any) (*Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, &errors.NameError{Name: name, Reason: "nil handler"}
	}
	r := &Record{name: name, handler: handler}
	if err := r.bound.Marshal(format, values...); err != nil {
		return nil, err
	}
	return r, nil
}

// ValidateName reports whether name can be registered.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &errors.NameError{Name: name, Reason: "empty"}
	case len(name) > MaxNameLen:
		return &errors.NameError{Name: name, Reason: "too long"}
	case strings.ContainsRune(name, 0):
		return &errors.NameError{Name: name, Reason: "contains NUL"}
	}
	return nil
}

// Name returns the event name.
func (r *Record) Name() string { return r.name }

// Handler returns the bound handler.
func (r *Record) Handler() Handler { return r.handler }

// Bound returns a copy of the pre-bound arguments.
func (r *Record) Bound() Args { return r.bound }

// Flags returns the current flags.
func (r *Record) Flags() Flags { return Flags(r.flags.Load()) }

// Has reports whether all bits of f are set.
func (r *Record) Has(f Flags) bool { return r.Flags()&f == f }

// SetFlags replaces the caller-controlled flags, keeping FlagScheduled.
func (r *Record) SetFlags(f Flags) {
	for {
		old := r.flags.Load()
		next := uint32(f&^FlagScheduled) | old&uint32(FlagScheduled)
		if r.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// AddFlags sets f in addition to the current flags.
func (r *Record) AddFlags(f Flags) { r.SetFlags(r.Flags() | f) }

// ClearFlags removes f from the current flags.
func (r *Record) ClearFlags(f Flags) { r.SetFlags(r.Flags() &^ f) }

func (r *Record) setScheduled(on bool) {
	for {
		old := r.flags.Load()
		next := old &^ uint32(FlagScheduled)
		if on {
			next |= uint32(FlagScheduled)
		}
		if r.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// Timer returns the record's delivery timer, creating it with cb on first
// use. Call with the owner's lock held.
func (r *Record) Timer(cb timer.Callback) *timer.Timer {
	if r.timer == nil {
		r.timer = timer.New(cb, r, 0)
	}
	return r.timer
}

// ScheduledTimer returns the delivery timer, or nil if the record was never
// scheduled.
func (r *Record) ScheduledTimer() *timer.Timer { return r.timer }

// SetPending stores ev as the pending delayed delivery and sets
// FlagScheduled. A previous pending event is discarded. Call with the
// owner's lock held.
func (r *Record) SetPending(ev *Event) {
	r.pending = ev
	r.setScheduled(ev != nil)
}

// TakePending returns and clears the pending delivery. Call with the owner's
// lock held.
func (r *Record) TakePending() *Event {
	ev := r.pending
	r.pending = nil
	r.setScheduled(false)
	return ev
}
