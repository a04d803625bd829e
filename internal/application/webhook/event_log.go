// Package webhook turns inbound ERP push notifications into reconciliation
// work and keeps the operator-facing event stream and call counters.
package webhook

import (
	stdsync "sync"
	"time"
)

// Event is one inbound webhook, recorded whether or not it was valid
type Event struct {
	Subsystem  string    `json:"subsystem"`
	Action     string    `json:"action"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// DefaultEventLogCapacity bounds the in-memory event window
const DefaultEventLogCapacity = 200

// EventLog is a bounded, append-only ring buffer of webhook events. It is
// observability state only: not persisted, never authoritative, oldest
// entries evicted past capacity.
type EventLog struct {
	mu       stdsync.Mutex
	events   []Event
	capacity int
	next     int
	full     bool
}

// NewEventLog creates an event log with the given capacity
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// Append records an event, evicting the oldest when full
func (l *EventLog) Append(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = event
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit events, newest first
func (l *EventLog) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = l.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + l.capacity) % l.capacity
		out = append(out, l.events[idx])
	}
	return out
}

// Len returns how many events the log currently holds
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return l.capacity
	}
	return l.next
}
