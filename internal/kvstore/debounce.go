// AlertFeed - Real-time Operational Alert Delivery Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/alertfeed

package kvstore

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of save requests into one call of fn.
// Each Trigger restarts the wait; the delay may differ per call so callers
// can shorten it under pressure. With a non-zero maxWait, fn runs no later
// than maxWait after the first Trigger of a burst, however steady the
// triggers are. Flush runs fn synchronously if a save is pending.
type Debouncer struct {
	fn      func()
	maxWait time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
	first   time.Time

	// run serializes fn so a timer firing during Flush never overlaps it.
	run sync.Mutex
}

// NewDebouncer returns a Debouncer that calls fn. A zero maxWait lets
// triggers postpone fn indefinitely.
func NewDebouncer(fn func(), maxWait time.Duration) *Debouncer {
	return &Debouncer{fn: fn, maxWait: maxWait}
}

// Trigger schedules fn after delay, replacing any earlier schedule, but
// never past the burst's maxWait deadline.
func (d *Debouncer) Trigger(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	now := time.Now()
	if !d.pending {
		d.first = now
	}
	d.pending = true
	if d.maxWait > 0 {
		if left := d.first.Add(d.maxWait).Sub(now); left < delay {
			delay = max(left, 0)
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fire)
}

// Pending reports whether a save is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	d.fn()
}

// Flush cancels the schedule and runs fn now, whether or not a save was
// pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	d.fn()
}

// Cancel drops a pending schedule without running fn. Later triggers
// still work.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels any schedule and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
