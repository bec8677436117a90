package timer

import (
	"fmt"
	"time"

	"github.com/go-drift/pulse/pkg/errors"
)

// Pump fires every timer that expired at or before the current tick, across
// all registered owners, and returns how many fired.
//
// Pump is meant to be called once per main-loop tick. Owners are visited in
// registration order; within an owner, timers fire in expiry order. Each
// timer is removed from its queue before its callback runs, and the owner
// lock is released for the duration of the callback so it may schedule or
// cancel freely. Timers armed during the pass, including a timer re-arming
// itself with a zero delay, wait for the next Pump.
func (r *Registry) Pump() int {
	start := time.Now()
	now := r.src.Now()
	limit := r.seq.Load()

	fired := 0
	for _, o := range r.Owners() {
		fired += r.pumpOwner(o, now, limit)
	}

	r.pumps.Add(1)
	r.fired.Add(uint64(fired))
	r.lastPump.Store(int64(time.Since(start)))
	r.lastTick.Store(uint64(now))
	if fired > 0 {
		r.logger.Debug().
			Uint64("tick", uint64(now)).
			Int("fired", fired).
			Log("timers fired")
	}
	return fired
}

func (r *Registry) pumpOwner(o Owner, now Tick, limit uint64) int {
	fired := 0
	o.Lock()
	q := o.TimerQueue()
	for {
		t := q.Peek()
		if t == nil || t.expiry > now || t.seq > limit {
			break
		}
		q.pop()
		t.canceled = false
		t.executing.Store(true)
		t.firingOn.Store(q)
		q.firing = t

		o.Unlock()
		next := r.fire(t)
		o.Lock()

		q.firing = nil
		t.firingOn.Store(nil)
		t.executing.Store(false)
		fired++
		if next != 0 && !t.canceled {
			err := r.arm(o, t, now.Add(next), next, true)
			if err != nil && !errors.Is(err, errors.ErrClosed) && !errors.Is(err, errors.ErrDestroyed) {
				errors.Report(&errors.DispatchError{
					Op:   "timer.Pump",
					Kind: errors.KindTimer,
					Err:  fmt.Errorf("rearm: %w", err),
				})
			}
		}
		t.canceled = false
	}
	r.sync(o, q)
	o.Unlock()
	return fired
}

// fire runs the callback, reporting a panic as a consumed timer.
func (r *Registry) fire(t *Timer) (next Tick) {
	defer errors.RecoverWithCallback("timer.fire", func(any) { next = 0 })
	return t.cb(t.arg, t.interval)
}
