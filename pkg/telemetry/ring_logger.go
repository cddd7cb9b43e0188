package telemetry

import "sync"

// RingLogger retains the most recent N events in memory, for the operator
// console's "recent events" command. It never blocks on a slow downstream
// sink because it has none; it is always safe to compose into a MultiLogger.
type RingLogger struct {
	mu sync.Mutex
	events []Event
	cap int
	next int
	full bool
}

// NewRingLogger creates a RingLogger retaining up to capacity events.
// capacity <= 0 is treated as 1.
func NewRingLogger(capacity int) *RingLogger {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingLogger{events: make([]Event, capacity), cap: capacity}
}

// Log appends the event, evicting the oldest if at capacity.
func (r *RingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = event
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to the last n events, oldest first.
func (r *RingLogger) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []Event
	if r.full {
		ordered = append(ordered, r.events[r.next:]...)
		ordered = append(ordered, r.events[:r.next]...)
	} else {
		ordered = append(ordered, r.events[:r.next]...)
	}
	if n <= 0 || n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

var _ Logger = (*RingLogger)(nil)
