// Package timer implements per-object timer queues and the process-wide
// registry that fires them once per main-loop tick.
//
// # Locking
//
// Every owner has one lock guarding its [Queue]; the [Registry] has a second
// lock guarding the set of owners with pending timers. The owner lock is
// always taken first. Exported methods without a Locked suffix take the
// owner lock themselves; the Locked variants require the caller to hold it.
// The registry lock is only ever acquired by unexported helpers running
// under an owner lock, or on its own by Pump and Close.
package timer

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/logging"
)

// Owner is an object that owns a timer queue and the lock guarding it.
type Owner interface {
	sync.Locker
	TimerQueue() *Queue
}

// Stats summarises pump activity.
type Stats struct {
	Pumps        uint64
	Fired        uint64
	Owners       int
	LastPump     time.Duration
	LastPumpTick Tick
}

// Registry tracks the owners that have at least one pending timer and fires
// their expired timers from Pump.
type Registry struct {
	src    Source
	logger *logging.Logger

	mu     sync.Mutex
	order  *list.List
	index  map[Owner]*list.Element
	closed bool

	seq atomic.Uint64

	pumps    atomic.Uint64
	fired    atomic.Uint64
	lastPump atomic.Int64
	lastTick atomic.Uint64
}

// NewRegistry returns an empty registry reading time from src.
func NewRegistry(src Source, logger *logging.Logger) *Registry {
	if src == nil {
		src = NewManualSource(0)
	}
	return &Registry{
		src:    src,
		logger: logger,
		order:  list.New(),
		index:  make(map[Owner]*list.Element),
	}
}

// Source returns the registry's tick source.
func (r *Registry) Source() Source { return r.src }

// Now returns the current tick.
func (r *Registry) Now() Tick { return r.src.Now() }

// Schedule arms t on o to expire delay ticks from now.
//
// If t is already pending on o, replace reschedules it; otherwise the call
// leaves it untouched. A timer pending on, or firing for, a different owner
// is rejected with errors.ErrTimerInUse. Delays saturate at MaxTick.
func (r *Registry) Schedule(o Owner, t *Timer, delay Tick, replace bool) error {
	o.Lock()
	defer o.Unlock()
	return r.ScheduleLocked(o, t, delay, replace)
}

// ScheduleLocked is Schedule for callers already holding o's lock.
func (r *Registry) ScheduleLocked(o Owner, t *Timer, delay Tick, replace bool) error {
	return r.arm(o, t, r.src.Now().Add(delay), delay, replace)
}

func (r *Registry) arm(o Owner, t *Timer, expiry, interval Tick, replace bool) error {
	if t == nil || t.cb == nil {
		return errors.ErrNilTimer
	}
	if r.isClosed() {
		return errors.ErrClosed
	}
	q := o.TimerQueue()
	if q.retired {
		return errors.ErrDestroyed
	}
	if fq := t.firingOn.Load(); fq != nil && fq != q {
		return errors.ErrTimerInUse
	}
	if t.queue != nil {
		if t.queue != q {
			return errors.ErrTimerInUse
		}
		if !replace {
			return nil
		}
		q.remove(t)
	}
	t.expiry = expiry
	t.interval = interval
	t.seq = r.seq.Add(1)
	t.canceled = false
	q.push(t)
	r.sync(o, q)
	return nil
}

// Cancel disarms t on o. Cancelling a timer that is not pending is a no-op.
// If t is firing at the time of the call, the running callback is not
// affected but its rearm is suppressed.
func (r *Registry) Cancel(o Owner, t *Timer) {
	o.Lock()
	defer o.Unlock()
	r.CancelLocked(o, t)
}

// CancelLocked is Cancel for callers already holding o's lock.
func (r *Registry) CancelLocked(o Owner, t *Timer) {
	if t == nil {
		return
	}
	q := o.TimerQueue()
	if q.Contains(t) {
		q.remove(t)
		r.sync(o, q)
		return
	}
	if q.firing == t {
		t.canceled = true
	}
}

// IsScheduled reports whether t is pending on o.
func (r *Registry) IsScheduled(o Owner, t *Timer) bool {
	o.Lock()
	defer o.Unlock()
	return o.TimerQueue().Contains(t)
}

// CancelAllLocked disarms every pending timer on o for which keep returns
// false (nil keep cancels all) and returns how many were removed from the
// queue. A rejected timer whose callback is running has its rearm
// suppressed. The caller holds o's lock.
func (r *Registry) CancelAllLocked(o Owner, keep func(*Timer) bool) int {
	q := o.TimerQueue()
	if t := q.firing; t != nil && (keep == nil || !keep(t)) {
		t.canceled = true
	}
	n := 0
	for _, t := range q.Snapshot() {
		if keep != nil && keep(t) {
			continue
		}
		q.remove(t)
		n++
	}
	r.sync(o, q)
	return n
}

// RetireLocked cancels every timer on o, including one mid-fire, and makes
// further scheduling on o fail with errors.ErrDestroyed. The caller holds
// o's lock.
func (r *Registry) RetireLocked(o Owner) int {
	n := r.CancelAllLocked(o, nil)
	o.TimerQueue().retired = true
	return n
}

// Contains reports whether o is registered, i.e. has pending timers.
func (r *Registry) Contains(o Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[o]
	return ok
}

// Len returns the number of registered owners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// Owners returns the registered owners in registration order.
func (r *Registry) Owners() []Owner {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Owner, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Owner))
	}
	return out
}

// Stats returns pump counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Pumps:        r.pumps.Load(),
		Fired:        r.fired.Load(),
		Owners:       r.Len(),
		LastPump:     time.Duration(r.lastPump.Load()),
		LastPumpTick: Tick(r.lastTick.Load()),
	}
}

// Close cancels every pending timer and rejects further scheduling.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	for _, o := range r.Owners() {
		o.Lock()
		r.CancelAllLocked(o, nil)
		o.Unlock()
	}
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// sync makes o's registration match its queue. Called with o's lock held.
func (r *Registry) sync(o Owner, q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, registered := r.index[o]
	switch {
	case q.Len() > 0 && !registered:
		r.index[o] = r.order.PushBack(o)
	case q.Len() == 0 && registered:
		r.order.Remove(e)
		delete(r.index, o)
	}
}
