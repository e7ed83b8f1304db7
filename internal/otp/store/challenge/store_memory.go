package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"securecard/internal/otp/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/requestcontext"
)

// InMemory keeps challenges in a map guarded by one mutex. Verification is
// rare enough that per-challenge sharding buys nothing here.
//
// Like the Redis store, a challenge is kept for a grace period past its
// expiry. Older ones are swept lazily from Create.
type InMemory struct {
	mu         sync.Mutex
	challenges map[id.ChallengeID]models.Challenge
	grace      time.Duration
	lastSweep  time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		challenges: make(map[id.ChallengeID]models.Challenge),
		grace:      defaultGrace,
	}
}

func (s *InMemory) Create(ctx context.Context, ch *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(requestcontext.Now(ctx))
	if _, ok := s.challenges[ch.ID]; ok {
		return fmt.Errorf("challenge exists: %w", sentinel.ErrConflict)
	}
	s.challenges[ch.ID] = *ch
	return nil
}

func (s *InMemory) FindByID(_ context.Context, challengeID id.ChallengeID) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ch, nil
}

// Execute applies fn to a copy and stores it when fn succeeds.
func (s *InMemory) Execute(ctx context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) error) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := s.challenges[challengeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	s.challenges[challengeID] = working
	return &working, nil
}

func (s *InMemory) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.grace {
		return
	}
	for challengeID, ch := range s.challenges {
		if now.After(ch.ExpiresAt.Add(s.grace)) {
			delete(s.challenges, challengeID)
		}
	}
	s.lastSweep = now
}
