package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path. Every path owns its own timer;
// each new event for the path restarts it, and when it fires the coalesced
// event is handed to the callback. Events for the same path within the window
// are merged according to these rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = DELETE (the path may have been indexed before)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
type Debouncer struct {
	window  time.Duration
	fire    func(FileEvent)
	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
}

type pendingEvent struct {
	event FileEvent
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer that calls fire once per path after the
// path has been quiet for window. fire runs on a timer goroutine.
func NewDebouncer(window time.Duration, fire func(FileEvent)) *Debouncer {
	return &Debouncer{
		window:  window,
		fire:    fire,
		pending: make(map[string]*pendingEvent),
	}
}

// Add records an event and restarts the path's timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	key := event.Path
	pe, ok := d.pending[key]
	if !ok {
		pe = &pendingEvent{event: event}
		d.pending[key] = pe
	} else {
		pe.timer.Stop()
		pe.event = coalesce(pe.event, event)
	}

	pe.gen++
	gen := pe.gen
	pe.timer = time.AfterFunc(d.window, func() { d.flush(key, gen) })
}

// coalesce merges next into prev. Nothing is ever dropped: a create can
// land on a path that is already indexed, so a following removal must still
// reach the consumer.
func coalesce(prev, next FileEvent) FileEvent {
	switch {
	case prev.Operation == OpCreate && next.Operation == OpModify:
		prev.Timestamp = next.Timestamp
		return prev
	case prev.Operation.Removes() && next.Operation == OpCreate:
		next.Operation = OpModify
		return next
	default:
		return next
	}
}

// flush delivers the pending event for key if no later Add superseded it.
func (d *Debouncer) flush(key string, gen uint64) {
	d.mu.Lock()
	pe, ok := d.pending[key]
	if d.stopped || !ok || pe.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	ev := pe.event
	d.mu.Unlock()

	d.fire(ev)
}

// Pending returns how many paths are waiting for their window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush delivers every pending event immediately, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	events := make([]FileEvent, 0, len(d.pending))
	for key, pe := range d.pending {
		pe.timer.Stop()
		events = append(events, pe.event)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, ev := range events {
		d.fire(ev)
	}
}

// Stop cancels all timers and drops pending events.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	for key, pe := range d.pending {
		pe.timer.Stop()
		delete(d.pending, key)
	}
}
