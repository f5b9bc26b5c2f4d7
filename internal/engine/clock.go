package engine

import "sync/atomic"

// Clock is the monotonic step source execution stamps log events with.
//
// Every query run takes a strictly increasing step number from the
// execution context's clock. This ensures:
// - Deterministic ordering (no wall-clock race conditions)
// - The same scenario produces identical step numbering
type Clock interface {
	// Next returns the next step number and advances the clock.
	Next() int64

	// Current returns the current step number without advancing.
	Current() int64
}

// StepClock is the default Clock.
//
// Thread-safety: StepClock is safe for concurrent use (atomic
// operations). The runner's single-pass design means only one goroutine
// typically calls Next().
type StepClock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *StepClock {
	return &StepClock{}
}

// NewClockAt creates a new clock starting at a specific step number.
func NewClockAt(start int64) *StepClock {
	c := &StepClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next step number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *StepClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current step number without incrementing.
func (c *StepClock) Current() int64 {
	return c.seq.Load()
}
