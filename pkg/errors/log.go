package errors

import (
	"github.com/go-drift/pulse/pkg/logging"
)

// LogHandler is an ErrorHandler that writes structured log entries.
type LogHandler struct {
	// Logger receives the entries. Nil means logging.Default().
	Logger *logging.Logger
	// Verbose enables detailed output including stack traces.
	Verbose bool
}

func (h *LogHandler) logger() *logging.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logging.Default()
}

// HandleError logs a DispatchError at error level.
func (h *LogHandler) HandleError(err *DispatchError) {
	if err == nil {
		return
	}
	b := h.logger().Err().
		Str("op", err.Op).
		Str("kind", err.Kind.String()).
		Err(err.Err)
	if err.Event != "" {
		b = b.Str("event", err.Event)
	}
	if h.Verbose && err.StackTrace != "" {
		b = b.Str("stack", err.StackTrace)
	}
	b.Log("dispatch error")
}

// HandlePanic logs a PanicError at critical level.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	b := h.logger().Crit().Any("value", err.Value)
	if err.Op != "" {
		b = b.Str("op", err.Op)
	}
	if h.Verbose && err.StackTrace != "" {
		b = b.Str("stack", err.StackTrace)
	}
	b.Log("recovered panic")
}
