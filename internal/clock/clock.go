// Package clock implements the section countdown.
//
// Remaining time is always derived from a wall-clock anchor rather than from
// a counter decremented on every tick, so a suspended process or a slow
// ticker never causes drift. The displayed seconds are advisory; the anchor
// decides expiry and the time taken at submission.
package clock

import (
	"math"
	"time"
)

// Clock is a pausable countdown. It is not safe for concurrent use; the
// owning session serialises access.
type Clock struct {
	now      func() time.Time
	duration time.Duration

	// anchor is the moment the countdown would have started had it never
	// been paused. Valid while running.
	anchor time.Time
	// remaining is frozen while stopped and refreshed on every Tick.
	remaining time.Duration
	running   bool
	started   bool
	expired   bool
}

// New creates a stopped clock with the full duration remaining. A nil now
// defaults to time.Now.
func New(duration time.Duration, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	if duration < 0 {
		duration = 0
	}
	return &Clock{
		now:       now,
		duration:  duration,
		remaining: duration,
	}
}

// Start begins the countdown from the current remaining time.
func (c *Clock) Start() {
	if c.running || c.expired {
		return
	}
	c.anchor = c.now().Add(-(c.duration - c.remaining))
	c.running = true
	c.started = true
}

// Pause freezes the remaining time at full precision.
func (c *Clock) Pause() {
	if !c.running {
		return
	}
	c.remaining = c.compute()
	c.running = false
}

// Resume re-anchors the countdown so the frozen remaining time is preserved.
func (c *Clock) Resume() {
	c.Start()
}

// Tick recomputes the remaining time. expired is true exactly once, on the
// tick where the countdown first reaches zero while running.
func (c *Clock) Tick() (remaining time.Duration, expired bool) {
	if !c.running {
		return c.remaining, false
	}

	c.remaining = c.compute()
	if c.remaining > 0 || c.expired {
		return c.remaining, false
	}

	c.running = false
	c.expired = true
	return 0, true
}

// Stop halts the countdown without signalling expiry.
func (c *Clock) Stop() {
	c.Pause()
}

// Restore loads a persisted checkpoint. The clock is left stopped with the
// snapshot's remaining time verbatim; time that passed while nothing was
// running is not deducted.
func (c *Clock) Restore(remaining time.Duration, anchor time.Time) {
	if remaining < 0 {
		remaining = 0
	}
	if remaining > c.duration {
		remaining = c.duration
	}
	c.remaining = remaining
	c.anchor = anchor
	c.running = false
	c.started = !anchor.IsZero()
	c.expired = false
}

// Reset returns the clock to its full duration, stopped.
func (c *Clock) Reset() {
	c.remaining = c.duration
	c.anchor = time.Time{}
	c.running = false
	c.started = false
	c.expired = false
}

// Remaining returns the live remaining time without firing expiry.
func (c *Clock) Remaining() time.Duration {
	if c.running {
		return c.compute()
	}
	return c.remaining
}

// RemainingSeconds is the display value, rounded up so a countdown shows
// zero only once it has actually expired.
func (c *Clock) RemainingSeconds() int {
	return int(math.Ceil(c.Remaining().Seconds()))
}

// Elapsed returns how much of the duration has been consumed.
func (c *Clock) Elapsed() time.Duration {
	return c.duration - c.Remaining()
}

// ElapsedSeconds is Elapsed rounded to whole seconds, never negative.
func (c *Clock) ElapsedSeconds() int {
	s := int(math.Round(c.Elapsed().Seconds()))
	if s < 0 {
		return 0
	}
	return s
}

func (c *Clock) Duration() time.Duration { return c.duration }

// Anchor is the wall-clock start anchor; zero if never started.
func (c *Clock) Anchor() time.Time { return c.anchor }

func (c *Clock) Running() bool { return c.running }

// Started reports whether the countdown was ever started.
func (c *Clock) Started() bool { return c.started }

func (c *Clock) Expired() bool { return c.expired }

func (c *Clock) compute() time.Duration {
	r := c.duration - c.now().Sub(c.anchor)
	if r < 0 {
		return 0
	}
	return r
}
