// Package dispatch delivers named events to objects.
//
// Post looks the name up in the receiver's event table and runs the
// handler: on the caller's goroutine, or on the [Executor] when the record
// is flagged asynchronous. Posting a name the receiver does not handle is a
// silent no-op. Records flagged propagate are also delivered, after the
// receiver, to every descendant handling the same name, depth-first and
// pre-order.
//
// No object lock is held while a handler runs, so handlers may post,
// register and schedule on any object, including their own.
package dispatch

import (
	"fmt"
	"sync/atomic"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/event"
	"github.com/go-drift/pulse/pkg/logging"
	"github.com/go-drift/pulse/pkg/object"
	"github.com/go-drift/pulse/pkg/timer"
)

// Dispatcher posts events to objects.
type Dispatcher struct {
	exec   *Executor
	logger *logging.Logger

	posted    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New returns a dispatcher running asynchronous handlers on exec.
func New(exec *Executor, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{exec: exec, logger: logger}
}

// Stats counts dispatcher activity.
type Stats struct {
	Posted    uint64
	Delivered uint64
	Dropped   uint64
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Posted:    d.posted.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// Post sends the event name from sender (may be nil) to receiver. Values
// are marshalled from format and appended after the record's bound
// arguments.
//
// A synchronous handler has completed when Post returns, and its error is
// returned after being reported. An asynchronous handler is queued; if the
// queue rejects it the event is dropped, reported, and errors.ErrNotDelivered
// is returned. A vector overflow is reported and the truncated event is
// still delivered; any other marshalling error aborts the post.
func (d *Dispatcher) Post(sender, receiver *object.Object, name, format string, values ...any) error {
	if receiver == nil {
		return nil
	}
	rec := receiver.Find(name)
	if rec == nil {
		return nil
	}
	d.posted.Add(1)
	ev := event.New(rec, receiver, target(sender))
	if err := ev.Append(format, values...); err != nil {
		report("dispatch.Post", errors.KindMarshal, name, err)
		var ce *errors.CapacityError
		if !errors.As(err, &ce) {
			return err
		}
	}
	return d.dispatch(ev, true)
}

// Forward re-dispatches ev to receiver's own record for the same name,
// reusing ev's arguments as-is. It is a no-op if receiver does not handle
// the name.
func (d *Dispatcher) Forward(sender, receiver *object.Object, ev *event.Event) error {
	if receiver == nil || ev == nil {
		return nil
	}
	rec := receiver.Find(ev.Name())
	if rec == nil {
		return nil
	}
	d.posted.Add(1)
	return d.dispatch(ev.Retarget(rec, receiver, target(sender)), true)
}

// PostAfter arranges for name to be posted to receiver delay ticks from now,
// using the record's own timer. Arguments are assembled immediately. Calling
// PostAfter again before delivery replaces the pending event and restarts
// the delay, so bursts collapse into one delivery. While pending, the record
// carries event.FlagScheduled.
func (d *Dispatcher) PostAfter(sender, receiver *object.Object, name string, delay timer.Tick, format string, values ...any) error {
	if receiver == nil {
		return nil
	}
	receiver.Lock()
	defer receiver.Unlock()

	rec := receiver.Events().Find(name)
	if rec == nil {
		return nil
	}
	ev := event.New(rec, receiver, target(sender))
	if err := ev.Append(format, values...); err != nil {
		report("dispatch.PostAfter", errors.KindMarshal, name, err)
		var ce *errors.CapacityError
		if !errors.As(err, &ce) {
			return err
		}
	}
	t := rec.Timer(func(arg any, _ timer.Tick) timer.Tick {
		d.deliverPending(receiver, arg.(*event.Record))
		return 0
	})
	rec.SetPending(ev)
	if err := receiver.Registry().ScheduleLocked(receiver, t, delay, true); err != nil {
		rec.TakePending()
		return err
	}
	return nil
}

// CancelPending drops a delivery armed by PostAfter. It is a no-op if none
// is pending.
func (d *Dispatcher) CancelPending(receiver *object.Object, name string) {
	if receiver == nil {
		return
	}
	receiver.Lock()
	defer receiver.Unlock()
	rec := receiver.Events().Find(name)
	if rec == nil {
		return
	}
	if t := rec.ScheduledTimer(); t != nil {
		receiver.Registry().CancelLocked(receiver, t)
	}
	rec.TakePending()
}

func (d *Dispatcher) deliverPending(receiver *object.Object, rec *event.Record) {
	receiver.Lock()
	ev := rec.TakePending()
	if receiver.Events().Find(rec.Name()) != rec {
		ev = nil
	}
	receiver.Unlock()
	if ev == nil {
		return
	}
	d.posted.Add(1)
	// Errors are already reported by dispatch.
	_ = d.dispatch(ev, true)
}

func (d *Dispatcher) dispatch(ev *event.Event, propagate bool) error {
	if ev.Flags()&event.FlagAsync == 0 {
		return d.run(ev, propagate)
	}
	if d.exec == nil {
		return d.drop(ev, errors.ErrClosed)
	}
	if err := d.exec.Submit(func() { _ = d.run(ev, propagate) }); err != nil {
		return d.drop(ev, err)
	}
	return nil
}

func (d *Dispatcher) drop(ev *event.Event, cause error) error {
	d.dropped.Add(1)
	err := fmt.Errorf("%w: %w", errors.ErrNotDelivered, cause)
	report("dispatch.async", errors.KindAsync, ev.Name(), err)
	d.logger.Warning().
		Str("event", ev.Name()).
		Err(cause).
		Log("async event dropped")
	return err
}

func (d *Dispatcher) run(ev *event.Event, propagate bool) error {
	err := ev.Invoke()
	d.delivered.Add(1)
	if err != nil {
		report("dispatch.handler", errors.KindHandler, ev.Name(), err)
	}
	if propagate && ev.Flags()&event.FlagPropagate != 0 {
		d.propagate(ev)
	}
	return err
}

// propagate delivers ev to every descendant of its receiver that handles
// the same name, depth-first and pre-order. Descendant errors are reported
// by run.
func (d *Dispatcher) propagate(ev *event.Event) {
	self, ok := ev.Self().(*object.Object)
	if !ok {
		return
	}
	name := ev.Name()
	self.Walk(func(child *object.Object) bool {
		if rec := child.Find(name); rec != nil {
			_ = d.dispatch(ev.Retarget(rec, child, ev.Sender()), false)
		}
		return true
	})
}

func report(op string, kind errors.ErrorKind, name string, err error) {
	errors.Report(&errors.DispatchError{
		Op:    op,
		Kind:  kind,
		Event: name,
		Err:   err,
	})
}

// target converts a possibly nil object to an event.Target without leaving
// a typed nil inside the interface.
func target(o *object.Object) event.Target {
	if o == nil {
		return nil
	}
	return o
}
