package engine

import (
	"sync"
	"time"

	"github.com/go-drift/pulse/pkg/timer"
)

const tickTraceSamplesDefault = 240

// TickSample describes one Tick.
type TickSample struct {
	Timestamp  int64         `json:"ts"`
	Tick       timer.Tick    `json:"tick"`
	Fired      int           `json:"fired"`
	Dispatched int           `json:"dispatched"`
	Duration   time.Duration `json:"duration"`
}

// TickTrace stores recent tick samples in a ring buffer.
type TickTrace struct {
	mu      sync.RWMutex
	samples []TickSample
	index   int
	count   int
	total   uint64
}

// NewTickTrace creates a trace holding up to capacity samples.
func NewTickTrace(capacity int) *TickTrace {
	if capacity <= 0 {
		capacity = tickTraceSamplesDefault
	}
	return &TickTrace{samples: make([]TickSample, capacity)}
}

// Capacity returns the number of samples the trace can hold.
func (b *TickTrace) Capacity() int { return len(b.samples) }

// Add stores a sample, overwriting the oldest once full.
func (b *TickTrace) Add(sample TickSample) {
	b.mu.Lock()
	b.samples[b.index] = sample
	b.index = (b.index + 1) % len(b.samples)
	if b.count < len(b.samples) {
		b.count++
	}
	b.total++
	b.mu.Unlock()
}

// Snapshot returns samples in chronological order.
func (b *TickTrace) Snapshot() []TickSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	result := make([]TickSample, b.count)
	if b.count < len(b.samples) {
		copy(result, b.samples[:b.count])
	} else {
		copy(result, b.samples[b.index:])
		copy(result[len(b.samples)-b.index:], b.samples[:b.index])
	}
	return result
}

// TickSummary aggregates the samples currently held by a trace.
type TickSummary struct {
	Samples     int           `json:"samples"`
	Total       uint64        `json:"total"`
	Fired       int           `json:"fired"`
	MaxDuration time.Duration `json:"maxDuration"`
	AvgDuration time.Duration `json:"avgDuration"`
}

// Summary returns aggregate figures over the held samples. Total counts
// every sample ever added.
func (b *TickTrace) Summary() TickSummary {
	samples := b.Snapshot()
	b.mu.RLock()
	s := TickSummary{Samples: len(samples), Total: b.total}
	b.mu.RUnlock()
	if len(samples) == 0 {
		return s
	}
	var sum time.Duration
	for _, sample := range samples {
		s.Fired += sample.Fired
		sum += sample.Duration
		s.MaxDuration = max(s.MaxDuration, sample.Duration)
	}
	s.AvgDuration = sum / time.Duration(len(samples))
	return s
}
