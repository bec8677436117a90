package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/logging"
)

// Executor runs asynchronous handlers on a fixed pool of worker goroutines
// fed by a bounded queue. Submit never blocks.
type Executor struct {
	tasks  chan func()
	group  errgroup.Group
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
}

// NewExecutor starts workers goroutines draining a queue of depth slots.
// Non-positive values default to one worker and a depth of 64.
func NewExecutor(workers, depth int, logger *logging.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 64
	}
	e := &Executor{
		tasks:  make(chan func(), depth),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		e.group.Go(func() error {
			for task := range e.tasks {
				e.run(task)
			}
			return nil
		})
	}
	return e
}

func (e *Executor) run(task func()) {
	defer e.completed.Add(1)
	defer errors.Recover("dispatch.worker")
	task()
}

// Submit queues task. It fails with errors.ErrQueueFull when every slot is
// taken and errors.ErrClosed after Close.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.rejected.Add(1)
		return errors.ErrClosed
	}
	select {
	case e.tasks <- task:
		e.submitted.Add(1)
		return nil
	default:
		e.rejected.Add(1)
		return errors.ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (e *Executor) Pending() int { return len(e.tasks) }

// ExecutorStats counts executor activity.
type ExecutorStats struct {
	Submitted uint64
	Completed uint64
	Rejected  uint64
}

// Stats returns the executor counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Rejected:  e.rejected.Load(),
	}
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them, or for ctx to be done.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()
	select {
	case err := <-done:
		e.logger.Debug().
			Uint64("completed", e.completed.Load()).
			Log("executor drained")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
