// Package sessions keeps the list of announced saving sessions
package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/saaga0h/jeeves-savings/internal/savings"
)

// Store holds saving sessions keyed by id
type Store interface {
	// List returns all known sessions ordered by start
	List(ctx context.Context) ([]savings.Event, error)

	// Upsert inserts a session or replaces the one with the same id
	Upsert(ctx context.Context, event savings.Event) error

	// UpsertAll applies Upsert to every event, all or nothing
	UpsertAll(ctx context.Context, events []savings.Event) error
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]savings.Event
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]savings.Event)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) List(ctx context.Context) ([]savings.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]savings.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, event savings.Event) error {
	if err := validate(event); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

func (s *MemoryStore) UpsertAll(ctx context.Context, events []savings.Event) error {
	for _, event := range events {
		if err := validate(event); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		s.events[event.ID] = event
	}
	return nil
}

func sortByStart(events []savings.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}
