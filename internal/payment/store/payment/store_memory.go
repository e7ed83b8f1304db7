package payment

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"sync"

	"securecard/internal/payment/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

const numShards = 64

// InMemory serializes resolutions of the same payment through a sharded
// mutex, so two concurrent decisions see each other's result.
type InMemory struct {
	shards [numShards]sync.Mutex

	mu       sync.RWMutex
	payments map[id.PaymentID]models.Payment
}

func NewInMemory() *InMemory {
	return &InMemory{payments: make(map[id.PaymentID]models.Payment)}
}

func (s *InMemory) shard(paymentID id.PaymentID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(paymentID.String()))
	return &s.shards[h.Sum32()%numShards]
}

func (s *InMemory) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return fmt.Errorf("payment exists: %w", sentinel.ErrConflict)
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *InMemory) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// ListByOwner returns the owner's payments in any of statuses, oldest first.
func (s *InMemory) ListByOwner(_ context.Context, ownerID id.UserID, statuses ...models.Status) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Payment, 0)
	for _, p := range s.payments {
		if p.OwnerID == ownerID && slices.Contains(statuses, p.Status) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Execute applies fn to a copy of the payment under its lock and stores the
// copy only when fn succeeds.
func (s *InMemory) Execute(ctx context.Context, paymentID id.PaymentID, fn func(*models.Payment) error) (*models.Payment, error) {
	lock := s.shard(paymentID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.payments[paymentID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.payments[paymentID] = working
	s.mu.Unlock()
	return &working, nil
}
