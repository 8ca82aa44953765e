// Package virtualtime implements the shared logical clock every simulation
// actor observes. One Clock instance is created per experiment run and
// injected explicitly; there is no package-level default.
package virtualtime

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/swedishdeveloper/digital-twin/internal/eventbus"
)

// tickInterval is the wall-clock cadence at which the logical clock
// advances. Each tick adds tickInterval * multiplier logical milliseconds.
const tickInterval = 100 * time.Millisecond

// defaultStartHour places simulation start in the early morning commute.
const defaultStartHour = 6.8

type waiter struct {
	target int64
	ch     chan struct{}
}

// Clock is a pausable, scalable logical clock. The observed value never
// decreases. With an infinite multiplier the clock jumps straight to every
// awaited timestamp, giving a deterministic accelerated mode.
type Clock struct {
	mu         sync.Mutex
	nowMs      float64
	multiplier float64
	playing    bool
	waiters    []waiter
	ticks      *eventbus.Bus[int64]
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a running clock starting at today's defaultStartHour,
// advancing at the given multiplier.
func New(multiplier float64) *Clock {
	return NewAt(multiplier, startOfDay().Add(time.Duration(defaultStartHour * float64(time.Hour))))
}

// NewAt creates a running clock with an explicit start instant.
func NewAt(multiplier float64, start time.Time) *Clock {
	c := &Clock{
		nowMs:      float64(start.UnixMilli()),
		multiplier: multiplier,
		playing:    true,
		ticks:      eventbus.New[int64](),
		done:       make(chan struct{}),
	}
	go c.run()
	return c
}

func startOfDay() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (c *Clock) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-c.done:
			return
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	m := c.multiplier
	if !c.playing || m == 0 || math.IsInf(m, 1) {
		c.mu.Unlock()
		return
	}
	c.nowMs += float64(tickInterval.Milliseconds()) * m
	now := int64(c.nowMs)
	c.releaseWaiters(now)
	c.mu.Unlock()
	c.ticks.Publish(now)
}

// releaseWaiters resolves all waiters whose target has passed. Caller holds mu.
func (c *Clock) releaseWaiters(now int64) {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.target <= now {
			close(w.ch)
		} else {
			kept = append(kept, w)
		}
	}
	c.waiters = kept
}

// Now returns the current logical timestamp in Unix milliseconds. The value
// is frozen while the clock is paused or scaled to 0.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.nowMs)
}

// Play resumes a paused clock. Idempotent.
func (c *Clock) Play() {
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
}

// Pause freezes the observed value. Idempotent; resuming continues from the
// frozen value rather than catching up with wall time.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

// SetMultiplier changes the rate at which logical time advances. 0 behaves
// as pause. +Inf switches to accelerated mode: all pending waiters resolve
// and the clock jumps to the furthest awaited timestamp. Pending waiters
// observe the new rate on the next tick.
func (c *Clock) SetMultiplier(m float64) {
	c.mu.Lock()
	c.multiplier = m
	if math.IsInf(m, 1) {
		for _, w := range c.waiters {
			if float64(w.target) > c.nowMs {
				c.nowMs = float64(w.target)
			}
			close(w.ch)
		}
		c.waiters = nil
		now := int64(c.nowMs)
		c.mu.Unlock()
		c.ticks.Publish(now)
		return
	}
	c.mu.Unlock()
}

// Multiplier returns the current scale factor.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// Accelerated reports whether the clock runs with an infinite multiplier.
func (c *Clock) Accelerated() bool {
	return math.IsInf(c.Multiplier(), 1)
}

// WaitUntil suspends the caller until Now() >= targetMs. It returns
// immediately when the target has already passed, when the scale is 0
// (time is stopped, nothing to wait for) or, after advancing the clock to
// the target, when the scale is infinite.
func (c *Clock) WaitUntil(ctx context.Context, targetMs int64) error {
	c.mu.Lock()
	m := c.multiplier
	if m == 0 {
		c.mu.Unlock()
		return nil
	}
	if math.IsInf(m, 1) {
		if float64(targetMs) > c.nowMs {
			c.nowMs = float64(targetMs)
			c.releaseWaiters(targetMs)
		}
		now := int64(c.nowMs)
		c.mu.Unlock()
		c.ticks.Publish(now)
		return nil
	}
	if float64(targetMs) <= c.nowMs {
		c.mu.Unlock()
		return nil
	}
	w := waiter{target: targetMs, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

// Wait suspends the caller for the given number of logical milliseconds.
func (c *Clock) Wait(ctx context.Context, durationMs int64) error {
	return c.WaitUntil(ctx, c.Now()+durationMs)
}

// Subscribe returns a channel receiving the logical timestamp after each
// advance. Used by movement simulations to play back routes.
func (c *Clock) Subscribe() <-chan int64 { return c.ticks.Subscribe() }

// Unsubscribe detaches a tick subscriber.
func (c *Clock) Unsubscribe(ch <-chan int64) { c.ticks.Unsubscribe(ch) }

// Stop halts the clock and releases all waiters and subscribers.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for _, w := range c.waiters {
			close(w.ch)
		}
		c.waiters = nil
		c.mu.Unlock()
		c.ticks.Close()
	})
}
