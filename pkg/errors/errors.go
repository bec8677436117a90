// Package errors provides structured error handling for the pulse dispatcher.
//
// Handlers and timer callbacks report failures through the process-wide
// [ErrorHandler]; the most recent report is also kept as the process-wide
// error string, see [LastError].
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindMarshal indicates an argument marshalling failure.
	KindMarshal
	// KindArgType indicates an argument read with the wrong accessor.
	KindArgType
	// KindHandler indicates a failure returned by an event handler.
	KindHandler
	// KindAsync indicates an asynchronous event could not be delivered.
	KindAsync
	// KindPanic indicates a recovered panic.
	KindPanic
	// KindConfig indicates a configuration error.
	KindConfig
	// KindTimer indicates a failure inside a timer callback or re-arm.
	KindTimer
)

func (k ErrorKind) String() string {
	switch k {
	case KindMarshal:
		return "marshal"
	case KindArgType:
		return "argtype"
	case KindHandler:
		return "handler"
	case KindAsync:
		return "async"
	case KindPanic:
		return "panic"
	case KindConfig:
		return "config"
	case KindTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrNotDelivered indicates an asynchronous event was dropped before
	// reaching its handler.
	ErrNotDelivered = errors.New("event not delivered")

	// ErrDestroyed indicates the object has been destroyed.
	ErrDestroyed = errors.New("object destroyed")

	// ErrMissingValue indicates the format string names more values than
	// were supplied.
	ErrMissingValue = errors.New("missing value for format character")

	// ErrExtraValue indicates more values were supplied than the format
	// string consumes.
	ErrExtraValue = errors.New("value without format character")

	// ErrQueueFull indicates the async executor queue has no free slot.
	ErrQueueFull = errors.New("executor queue full")

	// ErrClosed indicates the executor or registry was closed.
	ErrClosed = errors.New("closed")

	// ErrNilTimer indicates a nil timer or a timer without callback.
	ErrNilTimer = errors.New("nil timer")

	// ErrTimerInUse indicates the timer is pending on another object.
	ErrTimerInUse = errors.New("timer armed on another object")
)

// DispatchError represents a structured error raised while dispatching an
// event or firing a timer.
type DispatchError struct {
	// Op is the operation that failed (e.g., "dispatch.Post").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Event is the event name, if applicable.
	Event string
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *DispatchError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s [%s] event=%s: %v", e.Op, e.Kind, e.Event, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "dispatch.worker").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// CapacityError reports an argument vector overflow. Values past Capacity
// were not stored.
type CapacityError struct {
	Capacity int
	Wanted   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("argument vector overflow: %d values exceed capacity %d", e.Wanted, e.Capacity)
}

// ArgTypeError reports a value or accessor that does not match the stored
// argument type.
type ArgTypeError struct {
	// Want is the expected type tag name.
	Want string
	// Got is the actual type tag name, or the Go type for marshalling.
	Got string
	// Index is the argument position, -1 when unknown.
	Index int
}

func (e *ArgTypeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("argument %d: want %s, got %s", e.Index, e.Want, e.Got)
	}
	return fmt.Sprintf("argument: want %s, got %s", e.Want, e.Got)
}

// FormatError reports an unknown character in a format string.
type FormatError struct {
	Format string
	Pos    int
	Char   rune
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %q: unknown character %q at %d", e.Format, e.Char, e.Pos)
}

// NameError reports an invalid event name.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid event name %q: %s", e.Name, e.Reason)
}

// ErrorHandler receives errors reported by the dispatcher and timer pump.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *DispatchError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
