package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"securecard/internal/application/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

type ApplicationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestApplicationStoreSuite(t *testing.T) {
	suite.Run(t, new(ApplicationStoreSuite))
}

func (s *ApplicationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ApplicationStoreSuite) newApp(applicant id.UserID, createdAt time.Time) *models.Application {
	app := &models.Application{
		ID:          id.NewApplicationID(),
		ApplicantID: applicant,
		Status:      models.StatusPending,
		CreatedAt:   createdAt,
	}
	s.Require().NoError(s.store.Create(s.ctx, app))
	return app
}

func (s *ApplicationStoreSuite) TestCreateAndFind() {
	app := s.newApp(id.NewUserID(), time.Now())

	got, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(app.ApplicantID, got.ApplicantID)

	s.ErrorIs(s.store.Create(s.ctx, app), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, id.NewApplicationID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ApplicationStoreSuite) TestListsAreOrdered() {
	applicant := id.NewUserID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := s.newApp(applicant, base.Add(time.Hour))
	first := s.newApp(applicant, base)
	s.newApp(id.NewUserID(), base.Add(2*time.Hour))

	mine, err := s.store.ListByApplicant(s.ctx, applicant)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(first.ID, mine[0].ID)
	s.Equal(second.ID, mine[1].ID)

	pending, err := s.store.ListByStatus(s.ctx, models.StatusPending)
	s.Require().NoError(err)
	s.Len(pending, 3)
}

func (s *ApplicationStoreSuite) TestExecuteDiscardsFailedMutation() {
	app := s.newApp(id.NewUserID(), time.Now())
	boom := errors.New("boom")

	_, err := s.store.Execute(s.ctx, app.ID, func(a *models.Application) error {
		a.Status = models.StatusAccepted
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)

	updated, err := s.store.Execute(s.ctx, app.ID, func(a *models.Application) error {
		a.Status = models.StatusRejected
		return nil
	})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, updated.Status)

	_, err = s.store.Execute(s.ctx, id.NewApplicationID(), func(*models.Application) error { return nil })
	s.ErrorIs(err, sentinel.ErrNotFound)
}
