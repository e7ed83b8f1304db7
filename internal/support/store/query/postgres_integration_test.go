//go:build integration

package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"securecard/internal/support/models"
	"securecard/internal/support/store/query"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *query.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = query.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "support_queries"))
}

func (s *PostgresStoreSuite) create() *models.Query {
	q, err := models.NewQuery(id.NewQueryID(), id.Caller{UserID: id.NewUserID(), Email: "q@example.com"},
		"Statement", "Where is my statement?", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), q))
	return q
}

func (s *PostgresStoreSuite) TestResolvePersists() {
	ctx := context.Background()
	q := s.create()

	_, err := s.store.Execute(ctx, q.ID, func(q *models.Query) error {
		return q.Resolve("Sent again", time.Now().UTC())
	})
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, q.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, got.Status)
	s.Equal("Sent again", got.Reply)
	s.NotNil(got.ResolvedAt)

	open, err := s.store.ListByStatus(ctx, models.StatusOpen)
	s.Require().NoError(err)
	s.Empty(open)

	_, err = s.store.FindByID(ctx, id.NewQueryID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestConcurrentResolveOnlyOneWins() {
	q := s.create()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(context.Background(), q.ID, func(q *models.Query) error {
				return q.Resolve("reply", time.Now().UTC())
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
	s.Equal(4, conflicts)
}
