package timer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/pulse/pkg/errors"
)

func TestPumpLaterDelayFiresLater(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	rec := &recorder{}
	t1 := oneShot(rec, "T1")
	t2 := oneShot(rec, "T2")

	require.NoError(t, r.Schedule(o, t1, 100, true))
	require.NoError(t, r.Schedule(o, t2, 50, true))

	src.Advance(60)
	assert.Equal(t, 1, r.Pump())
	assert.Equal(t, []string{"T2"}, rec.take())
	assert.True(t, r.IsScheduled(o, t1))

	src.Advance(100)
	assert.Equal(t, 1, r.Pump())
	assert.Equal(t, []string{"T1"}, rec.take())
	assert.False(t, r.Contains(o))
}

func TestPumpRearmFromReturn(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	var got []Tick
	tm := New(func(_ any, interval Tick) Tick {
		got = append(got, interval)
		return 20
	}, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 100, true))
	src.Set(100)
	assert.Equal(t, 1, r.Pump())

	assert.True(t, r.IsScheduled(o, tm))
	assert.Equal(t, Tick(120), tm.Expiry())
	assert.Equal(t, Tick(20), tm.Interval())
	assert.Equal(t, 1, o.q.Len())

	require.NoError(t, r.Schedule(o, tm, 20, true))
	assert.Equal(t, 1, o.q.Len(), "replace leaves exactly one entry")

	src.Set(119)
	assert.Equal(t, 0, r.Pump())
	src.Set(120)
	assert.Equal(t, 1, r.Pump())
	assert.Equal(t, []Tick{100, 20}, got)
}

func TestPumpRearmIsRelativeToFireTick(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	tm := New(func(any, Tick) Tick { return 10 }, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 5, true))
	src.Set(30)
	assert.Equal(t, 1, r.Pump(), "a late pump fires a periodic timer once")
	assert.Equal(t, Tick(40), tm.Expiry())
}

func TestPumpOrderAcrossOwners(t *testing.T) {
	r, src := newRegistry(t)
	o1, o2 := &owner{name: "1"}, &owner{name: "2"}
	rec := &recorder{}

	require.NoError(t, r.Schedule(o1, oneShot(rec, "o1-late"), 2, true))
	require.NoError(t, r.Schedule(o2, oneShot(rec, "o2"), 1, true))
	require.NoError(t, r.Schedule(o1, oneShot(rec, "o1-early"), 1, true))

	src.Advance(2)
	assert.Equal(t, 3, r.Pump())
	assert.Equal(t, []string{"o1-early", "o1-late", "o2"}, rec.take())
}

func TestPumpReleasesOwnerLock(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	other := oneShot(&recorder{}, "other")
	tm := New(func(any, Tick) Tick {
		// Schedule takes o's lock; this deadlocks if Pump held it.
		if err := r.Schedule(o, other, 5, true); err != nil {
			t.Errorf("Schedule: %v", err)
		}
		return 0
	}, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 1, true))
	src.Advance(1)
	assert.Equal(t, 1, r.Pump())
	assert.True(t, r.IsScheduled(o, other))
}

func TestCancelDuringFireSuppressesRearm(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	var tm *Timer
	ran := false
	tm = New(func(any, Tick) Tick {
		assert.True(t, tm.IsExecuting())
		r.Cancel(o, tm)
		ran = true
		return 10
	}, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 1, true))
	src.Advance(1)
	assert.Equal(t, 1, r.Pump())
	assert.True(t, ran, "the running callback completes")
	assert.False(t, tm.IsExecuting())
	assert.False(t, r.IsScheduled(o, tm), "its rearm is suppressed")
}

func TestCancelFromAnotherGoroutineDuringFire(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	entered := make(chan struct{})
	release := make(chan struct{})
	tm := New(func(any, Tick) Tick {
		close(entered)
		<-release
		return 5
	}, nil, 0)
	require.NoError(t, r.Schedule(o, tm, 1, true))
	src.Advance(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Pump()
	}()
	<-entered
	r.Cancel(o, tm)
	close(release)
	wg.Wait()

	assert.False(t, r.IsScheduled(o, tm))
}

func TestRescheduleAfterCancelDuringFire(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	var tm *Timer
	tm = New(func(any, Tick) Tick {
		r.Cancel(o, tm)
		if err := r.Schedule(o, tm, 3, true); err != nil {
			t.Errorf("Schedule: %v", err)
		}
		return 0
	}, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 1, true))
	src.Advance(1)
	r.Pump()
	assert.True(t, r.IsScheduled(o, tm), "an explicit schedule after cancel stands")
	assert.Equal(t, Tick(4), tm.Expiry())
}

func TestPumpRecoversPanics(t *testing.T) {
	h := captureErrors(t)
	r, src := newRegistry(t)
	o := &owner{}
	rec := &recorder{}
	bad := New(func(any, Tick) Tick { panic("boom") }, nil, 0)

	require.NoError(t, r.Schedule(o, bad, 1, true))
	require.NoError(t, r.Schedule(o, oneShot(rec, "after"), 1, true))
	src.Advance(1)

	assert.Equal(t, 2, r.Pump())
	assert.Equal(t, []string{"after"}, rec.take(), "later timers still fire")
	assert.False(t, r.IsScheduled(o, bad), "a panicking timer is consumed")
	require.Len(t, h.panics, 1)
	assert.Equal(t, "timer.fire", h.panics[0].Op)
	assert.Contains(t, errors.LastError(), "boom")
}

func TestRegistryClose(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	rec := &recorder{}
	require.NoError(t, r.Schedule(o, oneShot(rec, "a"), 1, true))

	r.Close()
	r.Close()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, o.q.Len())
	assert.ErrorIs(t, r.Schedule(o, oneShot(rec, "b"), 1, true), errors.ErrClosed)

	src.Advance(1)
	assert.Equal(t, 0, r.Pump())
	assert.Empty(t, rec.take())
}

func TestCancelAllLocked(t *testing.T) {
	r, _ := newRegistry(t)
	o := &owner{}
	keep := New(func(any, Tick) Tick { return 0 }, nil, KeepOnReload)
	drop := New(func(any, Tick) Tick { return 0 }, nil, 0)
	require.NoError(t, r.Schedule(o, keep, 1, true))
	require.NoError(t, r.Schedule(o, drop, 1, true))

	o.Lock()
	n := r.CancelAllLocked(o, func(t *Timer) bool { return t.Has(KeepOnReload) })
	o.Unlock()
	assert.Equal(t, 1, n)
	assert.True(t, r.IsScheduled(o, keep))
	assert.False(t, r.IsScheduled(o, drop))

	o.Lock()
	assert.Equal(t, 1, r.CancelAllLocked(o, nil))
	o.Unlock()
	assert.False(t, r.Contains(o))
}

func TestRegistryStats(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	require.NoError(t, r.Schedule(o, oneShot(&recorder{}, "a"), 1, true))
	require.NoError(t, r.Schedule(o, oneShot(&recorder{}, "b"), 2, true))

	src.Advance(1)
	r.Pump()
	src.Advance(1)
	r.Pump()

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Pumps)
	assert.Equal(t, uint64(2), st.Fired)
	assert.Equal(t, 0, st.Owners)
	assert.Equal(t, Tick(2), st.LastPumpTick)
	assert.Equal(t, Tick(2), r.Now())
	assert.Same(t, src, r.Source())
}

func TestConcurrentScheduleAndPump(t *testing.T) {
	r, src := newRegistry(t)
	owners := make([]*owner, 8)
	for i := range owners {
		owners[i] = &owner{}
	}

	var fired sync.WaitGroup
	const perOwner = 50
	fired.Add(len(owners) * perOwner)

	var wg sync.WaitGroup
	for _, o := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perOwner; i++ {
				tm := New(func(any, Tick) Tick {
					fired.Done()
					return 0
				}, nil, 0)
				if err := r.Schedule(o, tm, Tick(i%3), true); err != nil {
					t.Errorf("Schedule: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for r.Len() > 0 {
		src.Advance(1)
		r.Pump()
	}
	fired.Wait()
}

func TestCancelAllDuringFire(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	var keep, drop *Timer
	lifecycle := func(any, Tick) Tick {
		o.Lock()
		r.CancelAllLocked(o, func(t *Timer) bool { return t.Has(KeepOnReload) })
		o.Unlock()
		return 10
	}
	keep = New(lifecycle, nil, KeepOnReload)
	drop = New(lifecycle, nil, 0)

	require.NoError(t, r.Schedule(o, keep, 1, true))
	src.Advance(1)
	r.Pump()
	assert.True(t, r.IsScheduled(o, keep), "a kept timer rearms")

	r.Cancel(o, keep)
	require.NoError(t, r.Schedule(o, drop, 1, true))
	src.Advance(1)
	r.Pump()
	assert.False(t, r.IsScheduled(o, drop), "a rejected timer mid-fire does not rearm")
	assert.False(t, r.Contains(o))
}

func TestRetireDuringFire(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	fired := 0
	tm := New(func(any, Tick) Tick {
		fired++
		o.Lock()
		r.RetireLocked(o)
		o.Unlock()
		return 10
	}, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 1, true))
	src.Advance(1)
	assert.Equal(t, 1, r.Pump())
	assert.False(t, r.IsScheduled(o, tm))
	assert.False(t, r.Contains(o))
	assert.True(t, o.q.Retired())

	src.Advance(20)
	assert.Equal(t, 0, r.Pump())
	assert.Equal(t, 1, fired)
	assert.ErrorIs(t, r.Schedule(o, tm, 1, true), errors.ErrDestroyed)
}

func TestFiringTimerBelongsToItsOwner(t *testing.T) {
	r, src := newRegistry(t)
	a, b := &owner{name: "a"}, &owner{name: "b"}
	var tm *Timer
	tm = New(func(any, Tick) Tick {
		assert.Same(t, tm, a.q.Firing())
		r.Cancel(b, tm)
		assert.ErrorIs(t, r.Schedule(b, tm, 1, true), errors.ErrTimerInUse)
		return 2
	}, nil, 0)

	require.NoError(t, r.Schedule(a, tm, 1, true))
	src.Advance(1)
	r.Pump()
	assert.Nil(t, a.q.Firing())
	assert.True(t, r.IsScheduled(a, tm), "a cancel through another owner does not suppress the rearm")
	assert.False(t, r.Contains(b))
}

func TestScheduleSaturatesAtMaxTick(t *testing.T) {
	r, src := newRegistry(t)
	src.Set(5)
	o := &owner{}
	rec := &recorder{}
	never := oneShot(rec, "never")

	require.NoError(t, r.Schedule(o, never, MaxTick, true))
	assert.Equal(t, MaxTick, never.Expiry())
	assert.Equal(t, 0, r.Pump())
	src.Advance(1000)
	assert.Equal(t, 0, r.Pump())
	assert.Empty(t, rec.take())
}

func TestRearmSaturatesAtMaxTick(t *testing.T) {
	r, src := newRegistry(t)
	o := &owner{}
	tm := New(func(any, Tick) Tick { return MaxTick - 1 }, nil, 0)

	require.NoError(t, r.Schedule(o, tm, 3, true))
	src.Advance(3)
	assert.Equal(t, 1, r.Pump())
	assert.Equal(t, MaxTick, tm.Expiry())
	src.Advance(3)
	assert.Equal(t, 0, r.Pump())
}
