package query

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"securecard/internal/support/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

// InMemory keeps support queries in a map. One mutex serializes every
// mutation.
type InMemory struct {
	mu      sync.Mutex
	queries map[id.QueryID]models.Query
}

func NewInMemory() *InMemory {
	return &InMemory{queries: make(map[id.QueryID]models.Query)}
}

func (s *InMemory) Create(_ context.Context, q *models.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queries[q.ID]; ok {
		return fmt.Errorf("query exists: %w", sentinel.ErrConflict)
	}
	s.queries[q.ID] = *q
	return nil
}

func (s *InMemory) FindByID(_ context.Context, queryID id.QueryID) (*models.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[queryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &q, nil
}

// ListByStatus returns matching queries, oldest first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Query, 0)
	for _, q := range s.queries {
		if q.Status == status {
			out = append(out, &q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Execute applies fn to a copy of the query and keeps it only when fn
// succeeds.
func (s *InMemory) Execute(ctx context.Context, queryID id.QueryID, fn func(*models.Query) error) (*models.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := s.queries[queryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	s.queries[queryID] = working
	return &working, nil
}
