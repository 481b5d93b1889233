package events

import (
	"context"
	"sync"
)

// Memory records events in process. Used by tests and by runs without
// a configured broker topic.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

var _ Publisher = (*Memory)(nil)

// NewMemory builds an empty in-memory publisher.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a snapshot of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
