package card

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"securecard/internal/card/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

// numShards spreads per-card locks so unrelated cards do not contend.
const numShards = 64

// InMemory is a thread-safe card and transaction store. Execute serializes
// mutations of the same card through a sharded mutex.
type InMemory struct {
	shards [numShards]sync.Mutex

	mu            sync.RWMutex
	cards         map[id.CardID]models.Card
	numbers       map[string]id.CardID
	byApplication map[id.ApplicationID]id.CardID
	transactions  map[id.CardID][]models.Transaction
}

func NewInMemory() *InMemory {
	return &InMemory{
		cards:         make(map[id.CardID]models.Card),
		numbers:       make(map[string]id.CardID),
		byApplication: make(map[id.ApplicationID]id.CardID),
		transactions:  make(map[id.CardID][]models.Transaction),
	}
}

func (s *InMemory) shard(cardID id.CardID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cardID.String()))
	return &s.shards[h.Sum32()%numShards]
}

// Create stores a new card. A taken number yields ErrConflict; a second card
// for the same application yields ErrAlreadyUsed.
func (s *InMemory) Create(_ context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byApplication[card.ApplicationID]; ok {
		return fmt.Errorf("application already has a card: %w", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.numbers[card.Number]; ok {
		return fmt.Errorf("card number taken: %w", sentinel.ErrConflict)
	}
	if _, ok := s.cards[card.ID]; ok {
		return fmt.Errorf("card id taken: %w", sentinel.ErrConflict)
	}
	s.cards[card.ID] = *card
	s.numbers[card.Number] = card.ID
	s.byApplication[card.ApplicationID] = card.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, cardID id.CardID) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[cardID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) FindByApplication(_ context.Context, applicationID id.ApplicationID) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cardID, ok := s.byApplication[applicationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := s.cards[cardID]
	return &c, nil
}

// ListByOwner returns the owner's cards, oldest first.
func (s *InMemory) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Card, 0)
	for _, c := range s.cards {
		if c.OwnerID == ownerID {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Execute runs fn on a copy of the card while holding the card's lock and
// stores the copy only when fn succeeds.
func (s *InMemory) Execute(ctx context.Context, cardID id.CardID, fn func(*models.Card) error) (*models.Card, error) {
	lock := s.shard(cardID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.cards[cardID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cards[cardID] = working
	s.mu.Unlock()
	return &working, nil
}

func (s *InMemory) Delete(_ context.Context, cardID id.CardID) error {
	lock := s.shard(cardID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.remove(c)
	return nil
}

// DeleteByOwner removes every card of ownerID and returns how many were
// removed.
func (s *InMemory) DeleteByOwner(_ context.Context, ownerID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.cards {
		if c.OwnerID == ownerID {
			s.remove(c)
			n++
		}
	}
	return n, nil
}

// remove expects s.mu held. Transaction history is kept.
func (s *InMemory) remove(c models.Card) {
	delete(s.cards, c.ID)
	delete(s.numbers, c.Number)
	delete(s.byApplication, c.ApplicationID)
}

func (s *InMemory) AppendTransaction(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[txn.CardID] = append(s.transactions[txn.CardID], *txn)
	return nil
}

// ListTransactions returns the card's transactions, newest first.
func (s *InMemory) ListTransactions(_ context.Context, cardID id.CardID) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.transactions[cardID]
	out := make([]*models.Transaction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		t := stored[i]
		out = append(out, &t)
	}
	return out, nil
}
