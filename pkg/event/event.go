// Package event implements named event records, per-object event tables and
// the typed argument vectors they carry.
//
// A [Record] is created with its pre-bound arguments, registered in the
// owning object's [Table], and later turned into an [Event] each time it is
// dispatched: the event's arguments are the bound arguments followed by the
// arguments supplied when the event was posted.
package event

// Target is an addressable event receiver or sender.
type Target interface {
	Name() string
}

// Event is one assembled dispatch of a record.
type Event struct {
	record *Record
	self   Target
	sender Target
	args   Args
}

// New assembles an event for rec with the bound arguments already in place.
func New(rec *Record, self, sender Target) *Event {
	return &Event{
		record: rec,
		self:   self,
		sender: sender,
		args:   rec.bound,
	}
}

// Append marshals post-time values after the existing arguments.
func (e *Event) Append(format string, values ...any) error {
	return e.args.Marshal(format, values...)
}

// Retarget returns a copy of e addressed to rec on self, sent by sender.
// The argument vector is copied as-is, without re-marshalling.
func (e *Event) Retarget(rec *Record, self, sender Target) *Event {
	return &Event{
		record: rec,
		self:   self,
		sender: sender,
		args:   e.args,
	}
}

// Name returns the event name.
func (e *Event) Name() string { return e.record.name }

// Record returns the record being dispatched.
func (e *Event) Record() *Record { return e.record }

// Flags returns the record's flags at the time of the call.
func (e *Event) Flags() Flags { return e.record.Flags() }

// Self returns the receiving object.
func (e *Event) Self() Target { return e.self }

// Sender returns the posting object, or nil.
func (e *Event) Sender() Target { return e.sender }

// Args returns the argument vector.
func (e *Event) Args() *Args { return &e.args }

// Arg returns argument i.
func (e *Event) Arg(i int) Arg { return e.args.At(i) }

// NArgs returns the number of arguments.
func (e *Event) NArgs() int { return e.args.n }

// Invoke runs the record's handler on the calling goroutine.
func (e *Event) Invoke() error {
	return e.record.handler(e)
}
