package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/event"
	"github.com/go-drift/pulse/pkg/object"
	"github.com/go-drift/pulse/pkg/timer"
)

type testHandler struct {
	mu     sync.Mutex
	errs   []*errors.DispatchError
	panics []*errors.PanicError
}

func (h *testHandler) HandleError(err *errors.DispatchError) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *testHandler) HandlePanic(err *errors.PanicError) {
	h.mu.Lock()
	h.panics = append(h.panics, err)
	h.mu.Unlock()
}

func (h *testHandler) kinds() []errors.ErrorKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []errors.ErrorKind
	for _, err := range h.errs {
		out = append(out, err.Kind)
	}
	return out
}

type fixture struct {
	src      *timer.ManualSource
	registry *timer.Registry
	exec     *Executor
	d        *Dispatcher
	errs     *testHandler
}

func newFixture(t *testing.T, workers, depth int) *fixture {
	t.Helper()
	f := &fixture{src: timer.NewManualSource(0), errs: &testHandler{}}
	f.registry = timer.NewRegistry(f.src, nil)
	f.exec = NewExecutor(workers, depth, nil)
	f.d = New(f.exec, nil)
	errors.ClearLastError()
	errors.SetHandler(f.errs)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, f.exec.Close(ctx))
		errors.SetHandler(nil)
		errors.ClearLastError()
	})
	return f
}

func (f *fixture) object(name string) *object.Object {
	return object.New(name, f.registry)
}

func (f *fixture) pump(n timer.Tick) int {
	fired := 0
	for range n {
		f.src.Advance(1)
		fired += f.registry.Pump()
	}
	return fired
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestPostBoundArgumentComesFirst(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")

	var got event.Arg
	_, err := w.On("tick", func(ev *event.Event) error {
		got = ev.Arg(0)
		assert.Equal(t, 1, ev.NArgs())
		return nil
	}, "i", 7)
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, w, "tick", ""))
	assert.Equal(t, event.IntArg(7), got)
}

func TestPostAppendsAfterBound(t *testing.T) {
	f := newFixture(t, 1, 4)
	sender, w := f.object("app"), f.object("W")

	var ev *event.Event
	_, err := w.On("resize", func(e *event.Event) error {
		ev = e
		return nil
	}, "s", "bound")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(sender, w, "resize", "i i", 10, 20))
	require.NotNil(t, ev)
	assert.Same(t, w, ev.Self())
	assert.Same(t, sender, ev.Sender())
	assert.Equal(t, []event.Arg{event.StringArg("bound"), event.IntArg(10), event.IntArg(20)}, ev.Args().Slice())
}

func TestPostNilSenderHasNilInterface(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	_, err := w.On("e", func(ev *event.Event) error {
		assert.Nil(t, ev.Sender())
		return nil
	}, "")
	require.NoError(t, err)
	require.NoError(t, f.d.Post(nil, w, "e", ""))
}

func TestPostUnknownNameIsNoop(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	assert.NoError(t, f.d.Post(nil, w, "missing", "i", 1))
	assert.NoError(t, f.d.Post(nil, nil, "missing", ""))
	assert.Equal(t, uint64(0), f.d.Stats().Posted)
	assert.Empty(t, f.errs.kinds())
}

func TestPostHandlerErrorIsReported(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	_, err := w.On("save", func(*event.Event) error { return errors.ErrDestroyed }, "")
	require.NoError(t, err)

	err = f.d.Post(nil, w, "save", "")
	assert.ErrorIs(t, err, errors.ErrDestroyed)
	assert.Equal(t, []errors.ErrorKind{errors.KindHandler}, f.errs.kinds())
	assert.Contains(t, errors.LastError(), "event=save")
}

func TestPostMarshalErrorAborts(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	called := false
	_, err := w.On("e", func(*event.Event) error {
		called = true
		return nil
	}, "")
	require.NoError(t, err)

	err = f.d.Post(nil, w, "e", "i", "not an int")
	var te *errors.ArgTypeError
	assert.ErrorAs(t, err, &te)
	assert.False(t, called)
	assert.Equal(t, []errors.ErrorKind{errors.KindMarshal}, f.errs.kinds())
}

func TestPostOverflowIsReportedAndDelivered(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")

	values := make([]any, event.MaxArgs)
	format := ""
	for i := range values {
		values[i] = i
		format += "i"
	}
	n := 0
	_, err := w.On("wide", func(ev *event.Event) error {
		n = ev.NArgs()
		return nil
	}, "s", "bound")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, w, "wide", format, values...))
	assert.Equal(t, event.MaxArgs, n)
	assert.Equal(t, []errors.ErrorKind{errors.KindMarshal}, f.errs.kinds())
}

func TestPropagateDepthFirstPreOrder(t *testing.T) {
	f := newFixture(t, 1, 4)
	p, c := f.object("P"), f.object("C")
	require.NoError(t, p.AddChild(c))

	var order []string
	handler := func(ev *event.Event) error {
		order = append(order, ev.Self().Name())
		return nil
	}
	rec, err := p.On("resize", handler, "")
	require.NoError(t, err)
	rec.AddFlags(event.FlagPropagate)
	_, err = c.On("resize", handler, "")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, p, "resize", ""))
	assert.Equal(t, []string{"P", "C"}, order)
}

func TestPropagateDeepTree(t *testing.T) {
	f := newFixture(t, 1, 4)
	root, a, a1, b := f.object("root"), f.object("a"), f.object("a1"), f.object("b")
	skip := f.object("skip")
	require.NoError(t, root.AddChild(a))
	require.NoError(t, a.AddChild(a1))
	require.NoError(t, a.AddChild(skip))
	require.NoError(t, root.AddChild(b))

	var order []string
	var argsSeen [][]event.Arg
	handler := func(ev *event.Event) error {
		order = append(order, ev.Self().Name())
		argsSeen = append(argsSeen, ev.Args().Slice())
		return nil
	}
	for _, o := range []*object.Object{root, a, a1, b} {
		rec, err := o.On("theme", handler, "")
		require.NoError(t, err)
		// Descendants flagged propagate still receive the event once.
		rec.AddFlags(event.FlagPropagate)
	}

	require.NoError(t, f.d.Post(nil, root, "theme", "s", "dark"))
	assert.Equal(t, []string{"root", "a", "a1", "b"}, order)
	for _, args := range argsSeen {
		assert.Equal(t, []event.Arg{event.StringArg("dark")}, args)
	}
}

func TestNoPropagateWithoutFlag(t *testing.T) {
	f := newFixture(t, 1, 4)
	p, c := f.object("P"), f.object("C")
	require.NoError(t, p.AddChild(c))
	childCalled := false
	_, err := p.On("e", func(*event.Event) error { return nil }, "")
	require.NoError(t, err)
	_, err = c.On("e", func(*event.Event) error {
		childCalled = true
		return nil
	}, "")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, p, "e", ""))
	assert.False(t, childCalled)
}

func TestForward(t *testing.T) {
	f := newFixture(t, 1, 4)
	a, b := f.object("a"), f.object("b")

	var forwarded *event.Event
	_, err := b.On("key", func(ev *event.Event) error {
		forwarded = ev
		return nil
	}, "s", "ignored")
	require.NoError(t, err)
	_, err = a.On("key", func(ev *event.Event) error {
		return f.d.Forward(a, b, ev)
	}, "s", "a-bound")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, a, "key", "i", 13))
	require.NotNil(t, forwarded)
	assert.Same(t, b, forwarded.Self())
	assert.Same(t, a, forwarded.Sender())
	assert.Equal(t, []event.Arg{event.StringArg("a-bound"), event.IntArg(13)}, forwarded.Args().Slice())

	assert.NoError(t, f.d.Forward(a, f.object("none"), forwarded))
	assert.NoError(t, f.d.Forward(a, b, nil))
}

func TestAsyncPostDoesNotBlock(t *testing.T) {
	f := newFixture(t, 2, 8)
	w := f.object("W")

	release := make(chan struct{})
	done := make(chan string, 1)
	rec, err := w.On("load", func(ev *event.Event) error {
		<-release
		done <- ev.Arg(0).Str()
		return nil
	}, "")
	require.NoError(t, err)
	rec.AddFlags(event.FlagAsync)

	require.NoError(t, f.d.Post(nil, w, "load", "s", "file"))
	close(release)
	select {
	case got := <-done:
		assert.Equal(t, "file", got)
	case <-time.After(2 * time.Second):
		t.Fatal("async handler did not run")
	}
}

func TestAsyncQueueFullDropsEvent(t *testing.T) {
	f := newFixture(t, 1, 1)
	w := f.object("W")

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	rec, err := w.On("work", func(*event.Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, "")
	require.NoError(t, err)
	rec.AddFlags(event.FlagAsync)

	require.NoError(t, f.d.Post(nil, w, "work", ""))
	<-started
	require.NoError(t, f.d.Post(nil, w, "work", ""), "fills the queue")

	err = f.d.Post(nil, w, "work", "")
	assert.ErrorIs(t, err, errors.ErrNotDelivered)
	assert.ErrorIs(t, err, errors.ErrQueueFull)
	assert.Equal(t, []errors.ErrorKind{errors.KindAsync}, f.errs.kinds())
	assert.Contains(t, errors.LastError(), "event=work")
	assert.Equal(t, uint64(1), f.d.Stats().Dropped)
	assert.Equal(t, uint64(1), f.exec.Stats().Rejected)

	close(release)
	waitFor(t, func() bool { return f.exec.Stats().Completed == 2 })
}

func TestAsyncAfterCloseDropsEvent(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	rec, err := w.On("late", func(*event.Event) error { return nil }, "")
	require.NoError(t, err)
	rec.AddFlags(event.FlagAsync)

	require.NoError(t, f.exec.Close(context.Background()))
	err = f.d.Post(nil, w, "late", "")
	assert.ErrorIs(t, err, errors.ErrNotDelivered)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestAsyncHandlerErrorAndPanic(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")

	failing, err := w.On("fail", func(*event.Event) error { return errors.ErrDestroyed }, "")
	require.NoError(t, err)
	failing.AddFlags(event.FlagAsync)
	panicking, err := w.On("panic", func(*event.Event) error { panic("worker boom") }, "")
	require.NoError(t, err)
	panicking.AddFlags(event.FlagAsync)

	require.NoError(t, f.d.Post(nil, w, "fail", ""), "async errors are not returned to the poster")
	require.NoError(t, f.d.Post(nil, w, "panic", ""))
	waitFor(t, func() bool { return f.exec.Stats().Completed == 2 })

	assert.Equal(t, []errors.ErrorKind{errors.KindHandler}, f.errs.kinds())
	f.errs.mu.Lock()
	defer f.errs.mu.Unlock()
	require.Len(t, f.errs.panics, 1)
	assert.Equal(t, "dispatch.worker", f.errs.panics[0].Op)
}

func TestSyncHandlerPanicPropagates(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	_, err := w.On("bad", func(*event.Event) error { panic("sync boom") }, "")
	require.NoError(t, err)
	assert.PanicsWithValue(t, "sync boom", func() {
		_ = f.d.Post(nil, w, "bad", "")
	})
}

func TestPostAfterCoalesces(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")

	var got []int32
	rec, err := w.On("redraw", func(ev *event.Event) error {
		got = append(got, ev.Arg(0).Int())
		return nil
	}, "")
	require.NoError(t, err)

	require.NoError(t, f.d.PostAfter(nil, w, "redraw", 3, "i", 1))
	assert.True(t, rec.Has(event.FlagScheduled))
	f.pump(2)
	require.NoError(t, f.d.PostAfter(nil, w, "redraw", 3, "i", 2))
	f.pump(2)
	assert.Empty(t, got, "the second request restarted the delay")

	f.pump(1)
	assert.Equal(t, []int32{2}, got)
	assert.False(t, rec.Has(event.FlagScheduled))

	f.pump(10)
	assert.Equal(t, []int32{2}, got)
}

func TestPostAfterZeroDelayWaitsForPump(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	n := 0
	_, err := w.On("later", func(*event.Event) error {
		n++
		return nil
	}, "")
	require.NoError(t, err)

	require.NoError(t, f.d.PostAfter(nil, w, "later", 0, ""))
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.registry.Pump())
	assert.Equal(t, 1, n)
}

func TestCancelPending(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	n := 0
	rec, err := w.On("redraw", func(*event.Event) error {
		n++
		return nil
	}, "")
	require.NoError(t, err)

	f.d.CancelPending(w, "redraw")
	require.NoError(t, f.d.PostAfter(nil, w, "redraw", 2, ""))
	f.d.CancelPending(w, "redraw")
	assert.False(t, rec.Has(event.FlagScheduled))
	assert.False(t, f.registry.Contains(w))

	f.pump(5)
	assert.Equal(t, 0, n)
	f.d.CancelPending(nil, "redraw")
	f.d.CancelPending(w, "missing")
}

func TestPostAfterDroppedByLifecycle(t *testing.T) {
	for _, tt := range []struct {
		name   string
		cancel func(parent, child *object.Object)
	}{
		{"detach", func(_, child *object.Object) { child.Detach() }},
		{"reload", func(_, child *object.Object) { child.Reload() }},
		{"destroy", func(_, child *object.Object) { child.Destroy() }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1, 4)
			parent, child := f.object("parent"), f.object("child")
			require.NoError(t, parent.AddChild(child))
			n := 0
			rec, err := child.On("redraw", func(*event.Event) error {
				n++
				return nil
			}, "")
			require.NoError(t, err)

			require.NoError(t, f.d.PostAfter(parent, child, "redraw", 3, ""))
			require.True(t, rec.Has(event.FlagScheduled))

			tt.cancel(parent, child)
			assert.False(t, rec.Has(event.FlagScheduled))
			f.pump(10)
			assert.Equal(t, 0, n)
			assert.False(t, f.registry.Contains(child))
		})
	}
}

func TestPostAfterUnregisteredBeforeDelivery(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	n := 0
	_, err := w.On("redraw", func(*event.Event) error {
		n++
		return nil
	}, "")
	require.NoError(t, err)

	require.NoError(t, f.d.PostAfter(nil, w, "redraw", 2, ""))
	w.Off("redraw")
	f.pump(5)
	assert.Equal(t, 0, n)
	assert.NoError(t, f.d.PostAfter(nil, w, "redraw", 2, ""), "unknown names are a no-op")
}

func TestPostAfterAsyncRecord(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	done := make(chan struct{})
	rec, err := w.On("sync-later", func(*event.Event) error {
		close(done)
		return nil
	}, "")
	require.NoError(t, err)
	rec.AddFlags(event.FlagAsync)

	require.NoError(t, f.d.PostAfter(nil, w, "sync-later", 1, ""))
	f.pump(1)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed async handler did not run")
	}
}

func TestDispatcherStats(t *testing.T) {
	f := newFixture(t, 1, 4)
	w := f.object("W")
	_, err := w.On("e", func(*event.Event) error { return nil }, "")
	require.NoError(t, err)

	require.NoError(t, f.d.Post(nil, w, "e", ""))
	require.NoError(t, f.d.Post(nil, w, "e", ""))
	st := f.d.Stats()
	assert.Equal(t, uint64(2), st.Posted)
	assert.Equal(t, uint64(2), st.Delivered)
	assert.Equal(t, uint64(0), st.Dropped)
}
