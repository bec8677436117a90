package testing

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/go-drift/pulse/pkg/engine"
	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/logging"
	"github.com/go-drift/pulse/pkg/object"
	"github.com/go-drift/pulse/pkg/timer"
)

// ErrSettleTimeout is returned when the engine does not go idle in time.
var ErrSettleTimeout = stderrors.New("pulse testing: timed out waiting for work to settle")

// EngineTester drives an engine on a manual tick source and captures the
// errors and log output it produces.
type EngineTester struct {
	tb       testing.TB
	engine   *engine.Engine
	source   *timer.ManualSource
	recorder *ErrorRecorder
	logs     *syncBuffer
}

// NewEngineTester returns a tester with two workers and a small async
// queue. The engine is closed and the global error handler restored when
// the test finishes.
func NewEngineTester(tb testing.TB, opts ...engine.Option) *EngineTester {
	tb.Helper()
	cfg := engine.DefaultConfig()
	cfg.Workers = 2
	cfg.QueueDepth = 64
	return NewEngineTesterWithConfig(tb, cfg, opts...)
}

// NewEngineTesterWithConfig is NewEngineTester with an explicit config.
// Options are applied after the tester's own source and logger, so they
// may replace either.
func NewEngineTesterWithConfig(tb testing.TB, cfg engine.Config, opts ...engine.Option) *EngineTester {
	tb.Helper()
	t := &EngineTester{
		tb:       tb,
		source:   timer.NewManualSource(0),
		recorder: &ErrorRecorder{},
		logs:     &syncBuffer{},
	}
	base := []engine.Option{
		engine.WithSource(t.source),
		engine.WithLogger(logging.New(t.logs, logiface.LevelDebug)),
	}
	e, err := engine.New(cfg, append(base, opts...)...)
	if err != nil {
		tb.Fatalf("engine.New: %v", err)
	}
	t.engine = e

	errors.ClearLastError()
	errors.SetHandler(t.recorder)
	tb.Cleanup(t.cleanup)
	return t
}

func (t *EngineTester) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.engine.Close(ctx); err != nil {
		t.tb.Errorf("engine.Close: %v", err)
	}
	errors.SetHandler(nil)
	errors.ClearLastError()
}

// Engine returns the engine under test.
func (t *EngineTester) Engine() *engine.Engine { return t.engine }

// Source returns the manual tick source.
func (t *EngineTester) Source() *timer.ManualSource { return t.source }

// Recorder returns the error recorder.
func (t *EngineTester) Recorder() *ErrorRecorder { return t.recorder }

// Logs returns everything logged so far, one JSON object per line.
func (t *EngineTester) Logs() string { return t.logs.String() }

// Now returns the current tick.
func (t *EngineTester) Now() timer.Tick { return t.source.Now() }

// Object returns a new detached object on the engine.
func (t *EngineTester) Object(name string) *object.Object {
	return t.engine.NewObject(name)
}

// Tree returns a new object named root with one child per name, in order.
func (t *EngineTester) Tree(root string, children ...string) (*object.Object, []*object.Object) {
	t.tb.Helper()
	parent := t.Object(root)
	kids := make([]*object.Object, len(children))
	for i, name := range children {
		kids[i] = t.Object(name)
		if err := parent.AddChild(kids[i]); err != nil {
			t.tb.Fatalf("AddChild(%s): %v", name, err)
		}
	}
	return parent, kids
}

// Post is Engine().Post.
func (t *EngineTester) Post(sender, receiver *object.Object, name, format string, values ...any) error {
	return t.engine.Post(sender, receiver, name, format, values...)
}

// Pump runs one Tick at the current tick and returns the timers fired.
func (t *EngineTester) Pump() int {
	return t.engine.Tick()
}

// Advance moves the source forward one tick at a time, running a Tick after
// each step, and returns the total number of timers fired.
func (t *EngineTester) Advance(n timer.Tick) int {
	fired := 0
	for range n {
		t.source.Advance(1)
		fired += t.engine.Tick()
	}
	return fired
}

// PumpUntilIdle advances until no timer is pending, giving up after
// maxTicks. It returns the number of ticks advanced.
func (t *EngineTester) PumpUntilIdle(maxTicks timer.Tick) (timer.Tick, error) {
	for n := timer.Tick(0); n < maxTicks; n++ {
		if t.engine.Registry().Len() == 0 {
			return n, nil
		}
		t.Advance(1)
	}
	if t.engine.Registry().Len() == 0 {
		return maxTicks, nil
	}
	return maxTicks, ErrSettleTimeout
}

// WaitIdle blocks until every asynchronous handler submitted so far has
// completed, or timeout elapses.
func (t *EngineTester) WaitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s := t.engine.Stats().Executor
		if s.Completed >= s.Submitted {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrSettleTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
