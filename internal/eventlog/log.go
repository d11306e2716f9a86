// Package eventlog provides the append-only journal collaborators. The core
// calls nothing but Append; a concrete log may buffer (Memory), duplicate
// (Tee) or broadcast (Fanout).
package eventlog

import "vidar/internal/domain"

// Log is the single contract the core depends on.
type Log interface {
	Append(event domain.Event)
}

// Memory buffers events in order. It is the source of truth for replay; the
// venue is single-threaded, so no locking.
type Memory struct {
	events []domain.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(event domain.Event) {
	m.events = append(m.events, event)
}

// All returns a copy of the journal in append order.
func (m *Memory) All() []domain.Event {
	out := make([]domain.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Len() int { return len(m.events) }

type tee []Log

func (t tee) Append(event domain.Event) {
	for _, l := range t {
		l.Append(event)
	}
}

// Tee appends every event to each of the given logs, in order.
func Tee(logs ...Log) Log {
	return tee(logs)
}
