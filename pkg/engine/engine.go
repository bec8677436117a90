// Package engine ties the timer registry, the event dispatcher and a tick
// source into the surface a main loop drives.
//
// The platform layer calls [Engine.Tick] once per heartbeat, independently
// of how it drains its own input queues. Applications that have no loop of
// their own can call [Engine.Run] instead.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/go-drift/pulse/pkg/dispatch"
	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/logging"
	"github.com/go-drift/pulse/pkg/object"
	"github.com/go-drift/pulse/pkg/timer"
)

// Config controls engine construction.
type Config struct {
	// Workers is the number of goroutines running asynchronous handlers.
	Workers int
	// QueueDepth bounds the asynchronous handler queue.
	QueueDepth int
	// TickPeriod is the heartbeat used by Run.
	TickPeriod time.Duration
	// TraceSamples is the number of recent ticks kept by the tick trace.
	// Zero disables tracing.
	TraceSamples int
	// Debug replaces the default logger with a stderr logger at debug
	// level. Ignored when WithLogger is given.
	Debug bool
}

// DefaultConfig returns a Config with a 60Hz heartbeat.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueDepth:   256,
		TickPeriod:   16667 * time.Microsecond,
		TraceSamples: tickTraceSamplesDefault,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("engine: workers must be at least 1, got %d", c.Workers)
	case c.QueueDepth < 1:
		return fmt.Errorf("engine: queue depth must be at least 1, got %d", c.QueueDepth)
	case c.TickPeriod <= 0:
		return fmt.Errorf("engine: tick period must be positive, got %s", c.TickPeriod)
	case c.TraceSamples < 0:
		return fmt.Errorf("engine: trace samples must not be negative, got %d", c.TraceSamples)
	}
	return nil
}

// Option customises an Engine.
type Option func(*Engine)

// WithSource sets the tick source. The default is a ManualSource that Run
// advances by one tick per heartbeat.
func WithSource(src timer.Source) Option {
	return func(e *Engine) { e.src = src }
}

// WithLogger sets the logger shared by the engine's components.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine owns one registry, one dispatcher and one tick source.
type Engine struct {
	cfg    Config
	src    timer.Source
	logger *logging.Logger

	registry   *timer.Registry
	exec       *dispatch.Executor
	dispatcher *dispatch.Dispatcher
	trace      *TickTrace

	// tickMu serialises Tick.
	tickMu sync.Mutex

	dispatchMu    sync.Mutex
	dispatchQueue []func()

	ticks  atomic.Uint64
	closed atomic.Bool
}

// New builds an engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
		if cfg.Debug {
			e.logger = logging.New(nil, logiface.LevelDebug)
		}
	}
	if e.src == nil {
		e.src = timer.NewManualSource(0)
	}
	e.registry = timer.NewRegistry(e.src, e.logger)
	e.exec = dispatch.NewExecutor(cfg.Workers, cfg.QueueDepth, e.logger)
	e.dispatcher = dispatch.New(e.exec, e.logger)
	if cfg.TraceSamples > 0 {
		e.trace = NewTickTrace(cfg.TraceSamples)
	}
	e.logger.Debug().
		Int("workers", cfg.Workers).
		Int("queue_depth", cfg.QueueDepth).
		Dur("tick_period", cfg.TickPeriod).
		Log("engine started")
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Logger returns the engine's logger.
func (e *Engine) Logger() *logging.Logger { return e.logger }

// Source returns the tick source.
func (e *Engine) Source() timer.Source { return e.src }

// Registry returns the timer registry.
func (e *Engine) Registry() *timer.Registry { return e.registry }

// Dispatcher returns the event dispatcher.
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// Trace returns the tick trace, or nil when tracing is disabled.
func (e *Engine) Trace() *TickTrace { return e.trace }

// NewObject returns a detached object scheduling on the engine's registry.
func (e *Engine) NewObject(name string) *object.Object {
	return object.New(name, e.registry)
}

// Post is Dispatcher().Post.
func (e *Engine) Post(sender, receiver *object.Object, name, format string, values ...any) error {
	return e.dispatcher.Post(sender, receiver, name, format, values...)
}

// Dispatch queues callback to run at the start of the next Tick, on the
// goroutine driving the loop. It is safe to call from any goroutine,
// including asynchronous handlers handing results back.
func (e *Engine) Dispatch(callback func()) {
	if callback == nil {
		return
	}
	e.dispatchMu.Lock()
	e.dispatchQueue = append(e.dispatchQueue, callback)
	e.dispatchMu.Unlock()
}

// PendingDispatch returns the number of callbacks waiting for the next Tick.
func (e *Engine) PendingDispatch() int {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	return len(e.dispatchQueue)
}

func (e *Engine) drainDispatchQueue() []func() {
	e.dispatchMu.Lock()
	callbacks := e.dispatchQueue
	e.dispatchQueue = nil
	e.dispatchMu.Unlock()
	return callbacks
}

// Tick runs queued Dispatch callbacks, then pumps every expired timer, and
// returns the number of timers fired. Tick does not move the source.
func (e *Engine) Tick() int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.closed.Load() {
		return 0
	}

	start := time.Now()
	callbacks := e.drainDispatchQueue()
	for _, cb := range callbacks {
		runCallback(cb)
	}
	fired := e.registry.Pump()
	e.ticks.Add(1)

	if e.trace != nil {
		e.trace.Add(TickSample{
			Timestamp:  start.UnixMilli(),
			Tick:       e.src.Now(),
			Fired:      fired,
			Dispatched: len(callbacks),
			Duration:   time.Since(start),
		})
	}
	return fired
}

func runCallback(cb func()) {
	defer errors.Recover("engine.dispatch")
	cb()
}

// Run drives Tick from a ticker at the configured period until ctx is done.
// A ManualSource is advanced by one tick before each Tick; other sources
// keep their own time. Run returns nil when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.closed.Load() {
		return errors.ErrClosed
	}
	manual, _ := e.src.(*timer.ManualSource)
	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.closed.Load() {
				return errors.ErrClosed
			}
			if manual != nil {
				manual.Advance(1)
			}
			e.Tick()
		}
	}
}

// Stats aggregates engine, registry and dispatcher counters.
type Stats struct {
	Ticks    uint64
	Timers   timer.Stats
	Dispatch dispatch.Stats
	Executor dispatch.ExecutorStats
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:    e.ticks.Load(),
		Timers:   e.registry.Stats(),
		Dispatch: e.dispatcher.Stats(),
		Executor: e.exec.Stats(),
	}
}

// Close stops the engine: asynchronous handlers already queued are drained
// (bounded by ctx), then every pending timer is cancelled. Further Ticks are
// no-ops and further scheduling fails with errors.ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.exec.Close(ctx)
	e.registry.Close()
	e.logger.Debug().
		Uint64("ticks", e.ticks.Load()).
		Log("engine stopped")
	return err
}
