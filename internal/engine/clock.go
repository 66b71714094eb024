package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// Clock supplies the current wall-clock time used for due-time arithmetic.
// Implementations must return times normalized by ir.NormalizeTime.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns the current UTC time without a monotonic reading.
func (WallClock) Now() time.Time {
	return ir.NormalizeTime(time.Now())
}

// ManualClock is a Clock that only moves when told to. It backs test
// fixtures and scenario replays.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: ir.NormalizeTime(start)}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed; due-time checks
// simply compare against the new value.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ir.NormalizeTime(t)
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ir.NormalizeTime(c.now.Add(d))
	return c.now
}

// Sequencer is a monotonic logical clock for event ordering.
//
// Every committed event is stamped with a strictly increasing seq. Seq
// values are never reused, though a rejected commit may leave a gap.
//
// Thread-safety: Sequencer is safe for concurrent use (atomic operations).
type Sequencer struct {
	seq atomic.Int64
}

// NewSequencer creates a sequencer starting at 0.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// NewSequencerAt creates a sequencer starting at a specific value.
// Used when restoring from a store to continue after the last event.
func NewSequencerAt(start int64) *Sequencer {
	s := &Sequencer{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() int64 {
	return s.seq.Load()
}

// advanceTo raises the sequencer to at least v.
func (s *Sequencer) advanceTo(v int64) {
	for {
		cur := s.seq.Load()
		if cur >= v || s.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}
