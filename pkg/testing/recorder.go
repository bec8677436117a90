package testing

import (
	"sync"

	"github.com/go-drift/pulse/pkg/errors"
)

// ErrorRecorder is an errors.ErrorHandler that keeps everything reported to
// it.
type ErrorRecorder struct {
	mu     sync.Mutex
	errs   []*errors.DispatchError
	panics []*errors.PanicError
}

var _ errors.ErrorHandler = (*ErrorRecorder)(nil)

// HandleError records err.
func (r *ErrorRecorder) HandleError(err *errors.DispatchError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// HandlePanic records err.
func (r *ErrorRecorder) HandlePanic(err *errors.PanicError) {
	r.mu.Lock()
	r.panics = append(r.panics, err)
	r.mu.Unlock()
}

// Errors returns the recorded dispatch errors in report order.
func (r *ErrorRecorder) Errors() []*errors.DispatchError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*errors.DispatchError(nil), r.errs...)
}

// Panics returns the recorded panics in report order.
func (r *ErrorRecorder) Panics() []*errors.PanicError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*errors.PanicError(nil), r.panics...)
}

// Kinds returns the kind of every recorded dispatch error.
func (r *ErrorRecorder) Kinds() []errors.ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]errors.ErrorKind, len(r.errs))
	for i, err := range r.errs {
		out[i] = err.Kind
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *ErrorRecorder) Reset() {
	r.mu.Lock()
	r.errs = nil
	r.panics = nil
	r.mu.Unlock()
}
