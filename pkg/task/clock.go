package task

import (
	"sync"
	"time"
)

// Clock is the time source of the runtime. Millis is a local monotonic counter used to
// correct drift against authoritative time samples.
type Clock interface {
	Now() time.Time
	Millis() int64
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock backed by the process wall clock.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() time.Time {
	return time.Now()
}

func (c *systemClock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock only moves when told to; simulations and tests drive it explicitly.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	millis int64
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Millis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.millis
}

// Advance moves both the wall time and the local millisecond counter.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.millis += d.Milliseconds()
}

// Set jumps the wall time without touching the millisecond counter, the way a time
// synchronization would.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// AdjustableClock layers a settable offset over a base clock. Nodes use it to follow
// the time pushed by their peers or by an operator.
type AdjustableClock struct {
	mu     sync.RWMutex
	base   Clock
	offset time.Duration
}

func NewAdjustableClock(base Clock) *AdjustableClock {
	return &AdjustableClock{base: base}
}

func (c *AdjustableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.Now().Add(c.offset)
}

func (c *AdjustableClock) Millis() int64 {
	return c.base.Millis()
}

// Set makes Now return t at this instant.
func (c *AdjustableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(c.base.Now())
}

// Shift moves the clock by the given offset, as reported by a mesh time adjustment.
func (c *AdjustableClock) Shift(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}
