package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/starford/othala/internal/wire"
)

// Memory is an in-memory relay. Addressable events replace older ones
// at the same (author, kind, slug) address; everything else is kept by
// id. It backs the dev relay binary and doubles as a test relay.
type Memory struct {
	name string

	mu        sync.RWMutex
	byAddress map[string]*wire.Event
	plain     []*wire.Event
	seen      map[string]struct{}
}

// NewMemory returns an empty relay identified by name in logs.
func NewMemory(name string) *Memory {
	return &Memory{
		name:      name,
		byAddress: make(map[string]*wire.Event),
		seen:      make(map[string]struct{}),
	}
}

func (m *Memory) URL() string { return m.name }

// Publish verifies the event and stores it. For addressable kinds the
// newest event wins; ties break toward the lexically smaller id so
// every relay converges on the same copy.
func (m *Memory) Publish(_ context.Context, ev *wire.Event) error {
	if err := ev.Verify(); err != nil {
		return fmt.Errorf("relay %s: reject: %w", m.name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr := ev.Address(); addr != "" {
		cur, ok := m.byAddress[addr]
		if ok && !supersedes(ev, cur) {
			// Already have a newer copy; acking is still correct.
			return nil
		}
		m.byAddress[addr] = ev
		return nil
	}

	if _, dup := m.seen[ev.ID]; dup {
		return nil
	}
	m.seen[ev.ID] = struct{}{}
	m.plain = append(m.plain, ev)
	return nil
}

// Query returns matching events ordered oldest first.
func (m *Memory) Query(_ context.Context, f wire.Filter) ([]*wire.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*wire.Event
	for _, ev := range m.byAddress {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	for _, ev := range m.plain {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Len reports how many events the relay holds.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byAddress) + len(m.plain)
}

func supersedes(candidate, current *wire.Event) bool {
	if candidate.CreatedAt != current.CreatedAt {
		return candidate.CreatedAt > current.CreatedAt
	}
	return candidate.ID < current.ID
}
