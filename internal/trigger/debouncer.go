// Package trigger turns source-database activity into synchronization
// passes. A filesystem watcher feeds a debouncer so a burst of writes
// from one source transaction costs one pass, and a periodic ticker
// covers changes the filesystem never reports.
package trigger

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of change notifications: the callback fires
// once, after the burst has been quiet for a full window. A notification
// arriving mid-window restarts the window.
type Debouncer struct {
	window time.Duration
	fire   func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that invokes fire after each quiet
// window. fire runs on the timer goroutine.
func NewDebouncer(window time.Duration, fire func()) *Debouncer {
	return &Debouncer{
		window: window,
		fire:   fire,
	}
}

// Poke records a change notification, starting or restarting the quiet
// window. Calls after Stop are ignored.
func (d *Debouncer) Poke() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// Stop cancels any pending firing and ignores further pokes. A firing
// already started may still complete.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
