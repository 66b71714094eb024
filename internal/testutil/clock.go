package testutil

import (
	"sync"
	"time"

	"github.com/roach88/agreement/internal/ir"
)

// Epoch is the default scenario start time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a resettable engine.Clock for scenarios and tests.
// Time is expressed as whole seconds after an epoch, so a scenario step
// "at: 27" reads as epoch + 27s.
//
// Unlike engine.ManualClock, DeterministicClock can be reset for test
// reuse. This enables the same scenario to run multiple times with
// identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu     sync.Mutex
	epoch  time.Time
	offset int64
}

// NewDeterministicClock creates a clock at epoch. A zero epoch uses Epoch.
func NewDeterministicClock(epoch time.Time) *DeterministicClock {
	if epoch.IsZero() {
		epoch = Epoch
	}
	return &DeterministicClock{epoch: ir.NormalizeTime(epoch)}
}

// Now returns epoch + the current offset.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch.Add(time.Duration(c.offset) * time.Second)
}

// Set moves the clock to epoch + sec seconds.
func (c *DeterministicClock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = sec
}

// Offset returns the current offset in seconds.
func (c *DeterministicClock) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// At returns epoch + sec seconds without moving the clock.
func (c *DeterministicClock) At(sec int64) time.Time {
	return c.epoch.Add(time.Duration(sec) * time.Second)
}

// Since converts t back to seconds after the epoch, truncating.
func (c *DeterministicClock) Since(t time.Time) int64 {
	return int64(t.Sub(c.epoch) / time.Second)
}

// Reset moves the clock back to the epoch.
func (c *DeterministicClock) Reset() {
	c.Set(0)
}
