// Package debounce coalesces bursts of requests into one scheduled run.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending run. Every Trigger replaces the
// pending token, so a burst of triggers runs fn once, delay after the last.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	token   uint64
	pending bool
	stopped bool
}

// New returns a debouncer that runs fn delay after the last Trigger.
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules a run, replacing any pending one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.token++
	token := d.token
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(token) })
}

func (d *Debouncer) fire(token uint64) {
	d.mu.Lock()
	if !d.pending || d.token != token {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Cancel drops the pending run, if any. Later triggers still schedule.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.token++
	d.pending = false
}

// Stop drops any pending run and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.token++
	d.pending = false
	d.stopped = true
}
