package coordinator

import (
	"sync"
	"time"
)

const (
	// DefaultRefreshDebounce is the quiet period for data-changed bursts.
	DefaultRefreshDebounce = 150 * time.Millisecond
	// DefaultRootsDebounce is the quiet period for project-root-set changes.
	DefaultRootsDebounce = 500 * time.Millisecond
)

// Debouncer holds at most one pending action. Each Trigger replaces the
// pending one and restarts the quiet period.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer returns a debouncer firing delay after the last Trigger.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, dropping whatever was pending.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a timer that fired while being replaced must not run
		if d.stopped || d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Pending reports whether an action is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending action, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop cancels the pending action and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
