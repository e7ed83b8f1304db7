package application

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"securecard/internal/application/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

const numShards = 32

// InMemory stores applications in a map. Decisions on the same application
// are serialized by Execute.
type InMemory struct {
	shards [numShards]sync.Mutex

	mu           sync.RWMutex
	applications map[id.ApplicationID]models.Application
}

func NewInMemory() *InMemory {
	return &InMemory{
		applications: make(map[id.ApplicationID]models.Application),
	}
}

func (s *InMemory) shard(appID id.ApplicationID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(appID.String()))
	return &s.shards[h.Sum32()%numShards]
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[app.ID]; ok {
		return fmt.Errorf("application exists: %w", sentinel.ErrConflict)
	}
	s.applications[app.ID] = *app
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &app, nil
}

// ListByStatus returns matching applications, oldest first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Application, error) {
	return s.filter(func(a models.Application) bool { return a.Status == status }), nil
}

// ListByApplicant returns the applicant's applications, oldest first.
func (s *InMemory) ListByApplicant(_ context.Context, applicantID id.UserID) ([]*models.Application, error) {
	return s.filter(func(a models.Application) bool { return a.ApplicantID == applicantID }), nil
}

func (s *InMemory) filter(keep func(models.Application) bool) []*models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Application, 0)
	for _, a := range s.applications {
		if keep(a) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Execute applies fn to a copy of the application under its lock and keeps
// the copy only when fn succeeds.
func (s *InMemory) Execute(ctx context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error) {
	lock := s.shard(appID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.applications[appID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.applications[appID] = working
	s.mu.Unlock()
	return &working, nil
}
