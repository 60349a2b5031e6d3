package library

import (
	"sync"
	"time"
)

// SaveDebouncer collapses bursts of save requests into a single deferred
// write. Each Trigger cancels any pending timer and starts a new one, so a
// rapid mutation burst (batch import, drag reorder) results in exactly one
// write reflecting the final state once the window elapses.
type SaveDebouncer struct {
	delay time.Duration
	save  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewSaveDebouncer creates a debouncer that invokes save after delay has
// elapsed without further triggers.
func NewSaveDebouncer(delay time.Duration, save func()) *SaveDebouncer {
	return &SaveDebouncer{
		delay: delay,
		save:  save,
	}
}

// Trigger schedules a save, superseding any pending one.
func (d *SaveDebouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.save)
}

// Cancel drops any pending save without running it.
func (d *SaveDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels any pending save and rejects further triggers.
func (d *SaveDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
