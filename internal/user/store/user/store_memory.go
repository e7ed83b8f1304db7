package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"securecard/internal/user/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

// InMemory keeps users with case-insensitive unique email and username
// indexes.
type InMemory struct {
	mu         sync.RWMutex
	users      map[id.UserID]models.User
	byEmail    map[string]id.UserID
	byUsername map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:      make(map[id.UserID]models.User),
		byEmail:    make(map[string]id.UserID),
		byUsername: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, username := strings.ToLower(u.Email), strings.ToLower(u.Username)
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user exists: %w", sentinel.ErrConflict)
	}
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("email taken: %w", sentinel.ErrConflict)
	}
	if _, ok := s.byUsername[username]; ok {
		return fmt.Errorf("username taken: %w", sentinel.ErrConflict)
	}
	s.users[u.ID] = *u
	s.byEmail[email] = u.ID
	s.byUsername[username] = u.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findByIndex(s.byEmail, email)
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findByIndex(s.byUsername, username)
}

func (s *InMemory) findByIndex(index map[string]id.UserID, key string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := index[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := s.users[userID]
	return &u, nil
}

// List returns every user, oldest first.
func (s *InMemory) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.users, userID)
	delete(s.byEmail, strings.ToLower(u.Email))
	delete(s.byUsername, strings.ToLower(u.Username))
	return nil
}
