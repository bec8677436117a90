// Package logging configures the structured logger shared by the dispatcher,
// the timer pump and the engine.
//
// Loggers are logiface loggers backed by the stumpy JSON writer. A nil
// *Logger is valid and discards everything.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type used throughout pulse.
type Logger = logiface.Logger[*stumpy.Event]

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(os.Stderr, logiface.LevelWarning)
)

// New returns a JSON logger writing to w, enabled up to level.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger and returns the previous one
// so callers can restore it. Passing nil silences default logging.
func SetDefault(l *Logger) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLogger
	defaultLogger = l
	return prev
}

// ParseLevel maps a level keyword (as written in pulse.yaml) to a level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn", "warning":
		return logiface.LevelWarning, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
}
