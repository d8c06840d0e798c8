package stage

import "sync/atomic"

// Clock issues logical sequence numbers for inserted records.
// Implemented by LogicalClock (production) and testutil.DeterministicClock
// (tests).
type Clock interface {
	Next() int64
	Current() int64
}

// LogicalClock is a monotonic logical clock.
//
// Every record is stamped with a seq from this clock when inserted. The seq
// is persisted, so default ordering (seq ASC, id ASC) survives reopening.
// All contexts of one coordinator share a clock.
//
// Thread-safety: LogicalClock is safe for concurrent use (atomic operations).
type LogicalClock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *LogicalClock {
	return &LogicalClock{}
}

// NewClockAt creates a clock that resumes after start.
// Used on open to continue from the highest seq in the store.
func NewClockAt(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *LogicalClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}
