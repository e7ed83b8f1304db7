package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"securecard/internal/support/models"
	querystore "securecard/internal/support/store/query"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/email"
	emailmocks "securecard/pkg/email/mocks"
	"securecard/pkg/platform/audit"
	auditmemory "securecard/pkg/platform/audit/store/memory"
	"securecard/pkg/requestcontext"
)

type SupportServiceSuite struct {
	suite.Suite
	mailer *emailmocks.MockSender
	audits *auditmemory.InMemoryStore
	svc    *Service
	ctx    context.Context
	asker  id.Caller
	admin  id.Caller
}

func TestSupportServiceSuite(t *testing.T) {
	suite.Run(t, new(SupportServiceSuite))
}

type directPublisher struct {
	store *auditmemory.InMemoryStore
}

func (p directPublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

func (s *SupportServiceSuite) SetupTest() {
	s.mailer = emailmocks.NewMockSender(gomock.NewController(s.T()))
	s.audits = auditmemory.NewInMemoryStore()
	s.svc = New(querystore.NewInMemory(), s.mailer, WithAuditPublisher(directPublisher{s.audits}))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC))
	s.asker = id.Caller{UserID: id.NewUserID(), Email: "neha.sharma@example.com", Role: id.RoleUser}
	s.admin = id.Caller{UserID: id.NewUserID(), Email: "admin@securecard.test", Role: id.RoleAdmin}
}

func (s *SupportServiceSuite) TestSubmitAndListOpen() {
	q, err := s.svc.Submit(s.ctx, s.asker, "Limit increase", "Please raise my limit")
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, q.Status)

	_, err = s.svc.Submit(s.ctx, id.Caller{}, "x", "y")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.svc.ListOpen(s.ctx, s.asker)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	open, err := s.svc.ListOpen(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(q.ID, open[0].ID)
}

func (s *SupportServiceSuite) TestResolveMailsReplyOnce() {
	q, err := s.svc.Submit(s.ctx, s.asker, "Limit increase", "Please raise my limit")
	s.Require().NoError(err)

	var sent email.Message
	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg email.Message) error {
		sent = msg
		return nil
	})
	resolved, err := s.svc.Resolve(s.ctx, s.admin, q.ID, "Raised to 60000")
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, resolved.Status)
	s.Equal("neha.sharma@example.com", sent.To)
	s.Equal("Re: Limit increase", sent.Subject)
	s.Contains(sent.Body, "Dear Neha,")
	s.Contains(sent.Body, "Raised to 60000")

	_, err = s.svc.Resolve(s.ctx, s.admin, q.ID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	open, err := s.svc.ListOpen(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Empty(open)

	events, err := s.audits.ListByUser(s.ctx, s.asker.UserID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventQueryResolved), events[1].Action)
	s.Equal(s.admin.UserID.String(), events[1].ActorID)
}

func (s *SupportServiceSuite) TestResolveSurvivesMailFailure() {
	q, err := s.svc.Submit(s.ctx, s.asker, "Statement", "Missing statement")
	s.Require().NoError(err)

	s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
	resolved, err := s.svc.Resolve(s.ctx, s.admin, q.ID, "Re-sent")
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, resolved.Status)
}

func (s *SupportServiceSuite) TestResolveGuards() {
	q, err := s.svc.Submit(s.ctx, s.asker, "Statement", "Missing statement")
	s.Require().NoError(err)

	_, err = s.svc.Resolve(s.ctx, s.asker, q.ID, "self-service")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.Resolve(s.ctx, s.admin, q.ID, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Resolve(s.ctx, s.admin, id.NewQueryID(), "reply")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
