// Package memory provides an in-memory audit sink for development and tests.
package memory

import (
	"context"
	"sync"

	"bxhive/internal/audit"
)

// Sink buffers emitted events in memory.
type Sink struct {
	mu     sync.Mutex
	events []audit.Event
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit appends the event to the buffer.
func (s *Sink) Emit(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (s *Sink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByAction filters emitted events by action.
func (s *Sink) ByAction(action audit.Action) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
