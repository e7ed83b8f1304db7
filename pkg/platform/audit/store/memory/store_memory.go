// Package memory keeps audit events in process for tests and single-node runs.
package memory

import (
	"context"
	"sync"

	id "securecard/pkg/domain"
	audit "securecard/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	byUser map[id.UserID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUser: make(map[id.UserID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	s.byUser[event.UserID] = append(s.byUser[event.UserID], event)
	s.mu.Unlock()
	return nil
}

// ListByUser returns the user's events oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.byUser[userID]...), nil
}
