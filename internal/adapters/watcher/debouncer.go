// Package watcher turns operating system file notifications into coalesced
// batches of change events.
package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/knot/internal/core/domain"
)

// Debouncer coalesces rapid file system events into batched change events.
type Debouncer struct {
	// deliver serializes batch extraction and delivery so batches arrive in order.
	deliver sync.Mutex

	mu       sync.Mutex
	pending  *coalescer
	timer    *time.Timer
	window   time.Duration
	callback func(events []domain.ChangeEvent)
}

// NewDebouncer creates a new debouncer with the given time window and callback.
func NewDebouncer(window time.Duration, callback func(events []domain.ChangeEvent)) *Debouncer {
	return &Debouncer{
		pending:  newCoalescer(),
		window:   window,
		callback: callback,
	}
}

// Add records a raw notification and restarts the debounce window.
func (d *Debouncer) Add(event fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending.add(event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire is called when the debounce window expires.
func (d *Debouncer) fire() {
	d.deliver.Lock()
	defer d.deliver.Unlock()

	d.mu.Lock()
	d.timer = nil
	events := d.pending.drain()
	d.mu.Unlock()

	if len(events) > 0 && d.callback != nil {
		d.callback(events)
	}
}

// Flush delivers all pending events synchronously.
func (d *Debouncer) Flush() {
	d.deliver.Lock()
	defer d.deliver.Unlock()

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	events := d.pending.drain()
	d.mu.Unlock()

	if len(events) > 0 && d.callback != nil {
		d.callback(events)
	}
}

// Discard drops pending events and stops the timer.
func (d *Debouncer) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending.drain()
}
