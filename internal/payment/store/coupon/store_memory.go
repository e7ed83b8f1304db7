package coupon

import (
	"context"
	"sync"

	"securecard/internal/payment/models"
	"securecard/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	coupons map[string]models.Coupon
}

// NewInMemory builds a coupon table holding seed.
func NewInMemory(seed ...models.Coupon) *InMemory {
	s := &InMemory{coupons: make(map[string]models.Coupon, len(seed))}
	for _, c := range seed {
		s.coupons[models.NormalizeCouponCode(c.Code)] = c
	}
	return s
}

func (s *InMemory) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// Save inserts or replaces a coupon.
func (s *InMemory) Save(_ context.Context, c models.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[models.NormalizeCouponCode(c.Code)] = c
	return nil
}
