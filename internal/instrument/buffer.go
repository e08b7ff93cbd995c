package instrument

import (
	"sync"
	"time"
)

// EventBuffer keeps the most recent finished spans in memory, oldest first.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	maxSize int
}

// NewEventBuffer creates a buffer holding at most maxSize events.
func NewEventBuffer(maxSize int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &EventBuffer{maxSize: maxSize}
}

// Enqueue adds an event, dropping the oldest one when the buffer is full.
func (eb *EventBuffer) Enqueue(event Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if len(eb.events) >= eb.maxSize {
		copy(eb.events, eb.events[1:])
		eb.events = eb.events[:len(eb.events)-1]
	}
	eb.events = append(eb.events, event)
}

// Query selects buffered events. Empty fields match everything.
type Query struct {
	Source    string
	Component string
	Action    string
	Status    string
	TraceID   string
	UserID    string
}

func (q Query) matches(e Event) bool {
	return (q.Source == "" || q.Source == e.Source) &&
		(q.Component == "" || q.Component == e.Component) &&
		(q.Action == "" || q.Action == e.Action) &&
		(q.Status == "" || q.Status == e.Status) &&
		(q.TraceID == "" || q.TraceID == e.TraceID) &&
		(q.UserID == "" || q.UserID == e.UserID)
}

// List returns matching events, newest first.
func (eb *EventBuffer) List(q Query) []Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	out := make([]Event, 0)
	for i := len(eb.events) - 1; i >= 0; i-- {
		if q.matches(eb.events[i]) {
			out = append(out, eb.events[i])
		}
	}
	return out
}

// Prune drops events created before cutoff and returns how many were removed.
func (eb *EventBuffer) Prune(cutoff time.Time) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	kept := eb.events[:0]
	for _, e := range eb.events {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(eb.events) - len(kept)
	eb.events = kept
	return removed
}

// Len returns the number of buffered events.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}
