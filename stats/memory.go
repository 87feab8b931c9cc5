package stats

import (
	"context"
	"sync"
	"time"
)

// Memory keeps every event in memory, in the order Record was called.
// It is meant for tests and short runs; nothing is ever evicted.
type Memory struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
	counts map[Kind]int64
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{counts: make(map[Kind]int64)}
}

// Record stores ev, stamping At if unset and assigning the next Seq.
func (m *Memory) Record(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	ev.Seq = m.seq
	m.events = append(m.events, ev)
	m.counts[ev.Kind]++
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns the number of events of the given kind.
func (m *Memory) Count(kind Kind) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[kind]
}

// Totals returns the number of events per kind.
func (m *Memory) Totals() map[Kind]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Kind]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Lines returns the lines received on the given connection, in order.
func (m *Memory) Lines(conn uint64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		if ev.Kind == LineReceived && ev.Conn == conn {
			out = append(out, ev.Line)
		}
	}
	return out
}

// First returns the earliest event of the given kind.
func (m *Memory) First(kind Kind) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}
