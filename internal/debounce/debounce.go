// Package debounce provides a timer-based debouncer for bursty inputs like
// keystroke-driven searches: a new trigger invalidates any pending scheduled
// call, so within one quiet window at most one call actually fires.
package debounce

import (
	"sync"
	"time"
)

// Debouncer schedules a function to run after a quiet period. Safe for
// concurrent use; Trigger replaces any pending invocation.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Debouncer with the given quiet window.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn to run after the quiet window. A pending fn from an
// earlier Trigger that hasn't fired yet is cancelled — last trigger wins.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels any pending invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
