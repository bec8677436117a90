// Package object provides the addressable entity events and timers are
// bound to.
//
// An [Object] owns one lock, one event table and one timer queue, and sits
// in a tree of objects that event propagation walks depth-first. Objects do
// not draw or lay anything out; widgets embed or reference them.
package object

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/event"
	"github.com/go-drift/pulse/pkg/timer"
)

// Object is the unit of event and timer addressing.
type Object struct {
	id       uuid.UUID
	name     string
	registry *timer.Registry

	mu        sync.Mutex
	events    event.Table
	timers    timer.Queue
	parent    *Object
	children  []*Object
	destroyed bool
}

// New returns a detached object scheduling its timers on registry.
func New(name string, registry *timer.Registry) *Object {
	return &Object{
		id:       uuid.New(),
		name:     name,
		registry: registry,
	}
}

// ID returns the object's unique identifier.
func (o *Object) ID() uuid.UUID { return o.id }

// Name returns the object's name.
func (o *Object) Name() string { return o.name }

func (o *Object) String() string {
	return o.name + "#" + o.id.String()[:8]
}

// Lock acquires the object's lock.
func (o *Object) Lock() { o.mu.Lock() }

// Unlock releases the object's lock.
func (o *Object) Unlock() { o.mu.Unlock() }

// TimerQueue returns the object's timer queue. Access it with the lock held.
func (o *Object) TimerQueue() *timer.Queue { return &o.timers }

// Events returns the object's event table. Access it with the lock held.
func (o *Object) Events() *event.Table { return &o.events }

// Registry returns the timer registry the object schedules on.
func (o *Object) Registry() *timer.Registry { return o.registry }

// IsDestroyed reports whether Destroy has been called.
func (o *Object) IsDestroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

// On registers handler for name with pre-bound arguments marshalled from
// format and values, replacing any previous registration. A pending delayed
// delivery of the replaced record is cancelled.
func (o *Object) On(name string, handler event.Handler, format string, values ...any) (*event.Record, error) {
	rec, err := event.NewRecord(name, handler, format, values...)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return nil, errors.ErrDestroyed
	}
	if old := o.events.Register(rec); old != nil {
		o.retireLocked(old)
	}
	return rec, nil
}

// Off removes the registration for name. It is a no-op if absent.
func (o *Object) Off(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if old := o.events.Unregister(name); old != nil {
		o.retireLocked(old)
	}
}

// Find returns the record registered for name, or nil.
func (o *Object) Find(name string) *event.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events.Find(name)
}

// SetFlags replaces the flags of the record registered for name and reports
// whether one was found. event.FlagScheduled cannot be set this way.
func (o *Object) SetFlags(name string, flags event.Flags) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec := o.events.Find(name)
	if rec == nil {
		return false
	}
	rec.SetFlags(flags)
	return true
}

// Handles reports whether a record is registered for name.
func (o *Object) Handles(name string) bool {
	return o.Find(name) != nil
}

// Handlers returns the registered event names in sorted order.
func (o *Object) Handlers() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events.Names()
}

// dropStaleLocked clears pending deliveries whose timer was cancelled by a
// lifecycle change. A timer mid-fire delivers on its own.
func (o *Object) dropStaleLocked() {
	for _, name := range o.events.Names() {
		rec := o.events.Find(name)
		t := rec.ScheduledTimer()
		if t == nil || !rec.Has(event.FlagScheduled) {
			continue
		}
		if !o.timers.Contains(t) && o.timers.Firing() != t {
			rec.TakePending()
		}
	}
}

// retireLocked cancels the delayed delivery of a record leaving the table.
func (o *Object) retireLocked(rec *event.Record) {
	if t := rec.ScheduledTimer(); t != nil {
		o.registry.CancelLocked(o, t)
	}
	rec.TakePending()
}

// Schedule arms t to fire delay ticks from now, see timer.Registry.Schedule.
func (o *Object) Schedule(t *timer.Timer, delay timer.Tick, replace bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return errors.ErrDestroyed
	}
	return o.registry.ScheduleLocked(o, t, delay, replace)
}

// Cancel disarms t. It is a no-op if t is not pending on o.
func (o *Object) Cancel(t *timer.Timer) {
	o.registry.Cancel(o, t)
}

// IsScheduled reports whether t is pending on o.
func (o *Object) IsScheduled(t *timer.Timer) bool {
	return o.registry.IsScheduled(o, t)
}

// Timers returns the pending timers in firing order.
func (o *Object) Timers() []*timer.Timer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timers.Snapshot()
}

// Parent returns the parent object, or nil.
func (o *Object) Parent() *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parent
}

// AddChild appends child to o's children, detaching it from any previous
// parent first.
func (o *Object) AddChild(child *Object) error {
	if child == nil {
		return nil
	}
	for p := o; p != nil; p = p.Parent() {
		if p == child {
			return fmt.Errorf("object: %s is an ancestor of %s", child, o)
		}
	}
	if prev := child.Parent(); prev != nil {
		prev.RemoveChild(child)
	}
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return errors.ErrDestroyed
	}
	o.children = append(o.children, child)
	o.mu.Unlock()

	child.mu.Lock()
	child.parent = o
	child.mu.Unlock()
	return nil
}

// RemoveChild detaches child from o. Timers on child not flagged
// timer.KeepOnDetach are cancelled, along with the PostAfter deliveries they
// carried.
func (o *Object) RemoveChild(child *Object) {
	o.mu.Lock()
	i := slices.Index(o.children, child)
	if i < 0 {
		o.mu.Unlock()
		return
	}
	o.children = slices.Delete(o.children, i, i+1)
	o.mu.Unlock()

	child.mu.Lock()
	child.parent = nil
	child.registry.CancelAllLocked(child, keepFlag(timer.KeepOnDetach))
	child.dropStaleLocked()
	child.mu.Unlock()
}

// Detach removes o from its parent, if any.
func (o *Object) Detach() {
	if p := o.Parent(); p != nil {
		p.RemoveChild(o)
	}
}

// Reload cancels every timer not flagged timer.KeepOnReload, for objects
// whose content is being rebuilt in place. Pending PostAfter deliveries are
// dropped with their timers.
func (o *Object) Reload() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.registry.CancelAllLocked(o, keepFlag(timer.KeepOnReload))
	o.dropStaleLocked()
	return n
}

// Children returns a snapshot of o's children.
func (o *Object) Children() []*Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.children)
}

// VisitChildren calls visitor for each child until it returns false.
func (o *Object) VisitChildren(visitor func(*Object) bool) {
	for _, child := range o.Children() {
		if !visitor(child) {
			return
		}
	}
}

// Walk visits every descendant of o depth-first, pre-order. o itself is not
// visited. Returning false from visit skips that descendant's subtree.
func (o *Object) Walk(visit func(*Object) bool) {
	o.VisitChildren(func(child *Object) bool {
		if visit(child) {
			child.Walk(visit)
		}
		return true
	})
}

// Destroy tears down o and its subtree: children are destroyed, timers
// cancelled, handlers dropped, and o is detached from its parent.
func (o *Object) Destroy() {
	for _, child := range o.Children() {
		child.Destroy()
	}
	o.Detach()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return
	}
	o.destroyed = true
	for _, rec := range o.events.Clear() {
		rec.TakePending()
	}
	o.registry.RetireLocked(o)
	o.children = nil
}

func keepFlag(f timer.Flags) func(*timer.Timer) bool {
	return func(t *timer.Timer) bool { return t.Has(f) }
}
