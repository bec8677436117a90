package timer

import (
	"container/heap"
	"slices"
)

// Queue holds the pending timers of one owner, ordered by expiry with ties
// served first-in first-out. The zero value is empty and ready to use.
//
// A Queue is guarded by its owner's lock.
type Queue struct {
	h timerHeap
	// firing is the timer whose callback is running, popped from h.
	firing  *Timer
	retired bool
}

// Len returns the number of pending timers.
func (q *Queue) Len() int { return len(q.h) }

// Peek returns the next timer to expire, or nil.
func (q *Queue) Peek() *Timer {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Firing returns the timer whose callback is running, or nil.
func (q *Queue) Firing() *Timer { return q.firing }

// Retired reports whether the owner was retired with Registry.RetireLocked.
func (q *Queue) Retired() bool { return q.retired }

// Contains reports whether t is pending on q.
func (q *Queue) Contains(t *Timer) bool {
	return t != nil && t.queue == q && t.index >= 0
}

// Snapshot returns the pending timers in firing order.
func (q *Queue) Snapshot() []*Timer {
	out := slices.Clone([]*Timer(q.h))
	slices.SortFunc(out, func(a, b *Timer) int {
		if less(a, b) {
			return -1
		}
		if less(b, a) {
			return 1
		}
		return 0
	})
	return out
}

func (q *Queue) push(t *Timer) {
	t.queue = q
	heap.Push(&q.h, t)
}

func (q *Queue) pop() *Timer {
	t := heap.Pop(&q.h).(*Timer)
	t.queue = nil
	return t
}

func (q *Queue) remove(t *Timer) {
	heap.Remove(&q.h, t.index)
	t.queue = nil
}

func less(a, b *Timer) bool {
	if a.expiry != b.expiry {
		return a.expiry < b.expiry
	}
	return a.seq < b.seq
}

// timerHeap is a min-heap of timers keyed by (expiry, seq).
type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
