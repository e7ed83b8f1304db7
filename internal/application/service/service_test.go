package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CardIssuer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"securecard/internal/application/models"
	"securecard/internal/application/service/mocks"
	appstore "securecard/internal/application/store/application"
	cardmodels "securecard/internal/card/models"
	cardservice "securecard/internal/card/service"
	cardstore "securecard/internal/card/store/card"
	usermodels "securecard/internal/user/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	auditmemory "securecard/pkg/platform/audit/store/memory"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/requestcontext"
)

type ApplicationServiceSuite struct {
	suite.Suite
	store     *appstore.InMemory
	cardStore *cardstore.InMemory
	audits    *auditmemory.InMemoryStore
	svc       *Service
	ctx       context.Context
	applicant id.Caller
	admin     id.Caller
}

func TestApplicationServiceSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceSuite))
}

type directPublisher struct {
	store *auditmemory.InMemoryStore
}

func (p directPublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

func (s *ApplicationServiceSuite) SetupTest() {
	s.store = appstore.NewInMemory()
	s.cardStore = cardstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	cards := cardservice.New(s.cardStore, s.cardStore)
	s.svc = New(s.store, cards, WithAuditPublisher(directPublisher{s.audits}))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.applicant = id.Caller{UserID: id.NewUserID(), Email: "applicant@example.com", Role: id.RoleUser}
	s.admin = id.Caller{UserID: id.NewUserID(), Email: "admin@example.com", Role: id.RoleAdmin}
}

func validSubmission() models.Submission {
	return models.Submission{
		Category:      "credit",
		Tier:          "gold",
		PAN:           "abcde1234f",
		Employment:    "salaried",
		MonthlyIncome: decimal.NewFromInt(85000),
	}
}

func (s *ApplicationServiceSuite) submit() *models.Application {
	app, err := s.svc.Submit(s.ctx, s.applicant, validSubmission())
	s.Require().NoError(err)
	return app
}

func (s *ApplicationServiceSuite) TestSubmit() {
	s.Run("stores a pending application", func() {
		app := s.submit()
		s.Equal(models.StatusPending, app.Status)
		s.Equal("ABCDE1234F", app.PAN)
		s.Equal(cardmodels.CategoryCredit, app.Category)

		mine, err := s.svc.ListMine(s.ctx, s.applicant)
		s.Require().NoError(err)
		s.Len(mine, 1)
	})

	s.Run("rejects invalid submissions", func() {
		cases := map[string]func(*models.Submission){
			"pan format":      func(sub *models.Submission) { sub.PAN = "1234567890" },
			"negative income": func(sub *models.Submission) { sub.MonthlyIncome = decimal.NewFromInt(-1) },
			"employment":      func(sub *models.Submission) { sub.Employment = "astronaut" },
			"tier":            func(sub *models.Submission) { sub.Tier = "diamond" },
			"category":        func(sub *models.Submission) { sub.Category = "prepaid" },
		}
		for name, mutate := range cases {
			sub := validSubmission()
			mutate(&sub)
			_, err := s.svc.Submit(s.ctx, s.applicant, sub)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})

	s.Run("requires a caller", func() {
		_, err := s.svc.Submit(s.ctx, id.Caller{}, validSubmission())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ApplicationServiceSuite) TestAccept() {
	s.Run("issues an active card and records the decision", func() {
		app := s.submit()

		accepted, card, err := s.svc.Accept(s.ctx, s.admin, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusAccepted, accepted.Status)
		s.Equal(card.ID, accepted.CardID)
		s.Equal(s.admin.UserID, accepted.DecidedBy)
		s.True(card.IsUsable())
		s.Equal(cardmodels.TierGold, card.Tier)

		cards, err := s.cardStore.ListByOwner(s.ctx, s.applicant.UserID)
		s.Require().NoError(err)
		s.Len(cards, 1)

		pending, err := s.svc.ListPending(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("second decision conflicts without a second card", func() {
		app := s.submit()
		_, _, err := s.svc.Accept(s.ctx, s.admin, app.ID)
		s.Require().NoError(err)

		_, _, err = s.svc.Accept(s.ctx, s.admin, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.svc.Reject(s.ctx, s.admin, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		card, err := s.cardStore.FindByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		s.NotNil(card)
	})

	s.Run("non admins are forbidden", func() {
		app := s.submit()
		_, _, err := s.svc.Accept(s.ctx, s.applicant, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown application", func() {
		_, _, err := s.svc.Accept(s.ctx, s.admin, id.NewApplicationID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ApplicationServiceSuite) TestAcceptStaysPendingWhenCardCreationFails() {
	ctrl := gomock.NewController(s.T())
	issuer := mocks.NewMockCardIssuer(ctrl)
	svc := New(s.store, issuer)

	app := s.submit()
	issuer.EXPECT().
		CreateFromApplication(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("disk full"), dErrors.CodeInternal, "failed to create card"))

	_, _, err := svc.Accept(s.ctx, s.admin, app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stored.Status)
	s.True(stored.CardID.IsNil())
}

func (s *ApplicationServiceSuite) TestConcurrentAcceptIssuesOneCard() {
	app := s.submit()

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.svc.Accept(s.ctx, s.admin, app.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(workers-1), conflicts.Load())
	cards, err := s.cardStore.ListByOwner(s.ctx, s.applicant.UserID)
	s.Require().NoError(err)
	s.Len(cards, 1)
}

func (s *ApplicationServiceSuite) TestReject() {
	app := s.submit()

	rejected, err := s.svc.Reject(s.ctx, s.admin, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.NotNil(rejected.DecidedAt)

	_, err = s.cardStore.FindByApplication(s.ctx, app.ID)
	s.Error(err)

	events, err := s.audits.ListByUser(s.ctx, s.applicant.UserID)
	s.Require().NoError(err)
	s.Equal(string(audit.EventApplicationRejected), events[len(events)-1].Action)
	s.Equal(s.admin.UserID.String(), events[len(events)-1].ActorID)
}

func (s *ApplicationServiceSuite) TestGet() {
	app := s.submit()

	_, err := s.svc.Get(s.ctx, s.applicant, app.ID)
	s.NoError(err)
	_, err = s.svc.Get(s.ctx, s.admin, app.ID)
	s.NoError(err)

	stranger := id.Caller{UserID: id.NewUserID(), Role: id.RoleUser}
	_, err = s.svc.Get(s.ctx, stranger, app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ApplicationServiceSuite) TestAuthorizeUserDeletion() {
	s.NoError(s.svc.AuthorizeUserDeletion(s.admin, id.RoleUser))
	s.True(dErrors.HasCode(s.svc.AuthorizeUserDeletion(s.admin, id.RoleAdmin), dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.svc.AuthorizeUserDeletion(s.applicant, id.RoleUser), dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.svc.AuthorizeUserDeletion(id.Caller{}, id.RoleUser), dErrors.CodeUnauthorized))
}

// accounts is the set of user ids that still have an account.
type accounts map[id.UserID]bool

func (a accounts) FindByID(_ context.Context, userID id.UserID) (*usermodels.User, error) {
	if !a[userID] {
		return nil, sentinel.ErrNotFound
	}
	return &usermodels.User{ID: userID}, nil
}

func (s *ApplicationServiceSuite) TestDeletedApplicant() {
	known := accounts{s.applicant.UserID: true}
	cards := cardservice.New(s.cardStore, s.cardStore)
	s.svc = New(s.store, cards, WithAuditPublisher(directPublisher{s.audits}), WithApplicantDirectory(known))

	first := s.submit()
	second := s.submit()
	decided := s.submit()
	_, err := s.svc.Reject(s.ctx, s.admin, decided.ID)
	s.Require().NoError(err)

	s.Run("closing only touches pending applications", func() {
		n, err := s.svc.CloseForApplicant(s.ctx, s.admin, s.applicant.UserID)
		s.Require().NoError(err)
		s.Equal(2, n)

		pending, err := s.svc.ListPending(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Empty(pending)
		for _, appID := range []id.ApplicationID{first.ID, second.ID} {
			app, err := s.svc.Get(s.ctx, s.admin, appID)
			s.Require().NoError(err)
			s.Equal(models.StatusRejected, app.Status)
			s.Equal(s.admin.UserID, app.DecidedBy)
		}
	})

	s.Run("only admins close applications", func() {
		_, err := s.svc.CloseForApplicant(s.ctx, s.applicant, s.applicant.UserID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("a deleted applicant gets no card", func() {
		app := s.submit()
		delete(known, s.applicant.UserID)

		_, _, err := s.svc.Accept(s.ctx, s.admin, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		stored, err := s.svc.Get(s.ctx, s.admin, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)
		cards, err := s.cardStore.ListByOwner(s.ctx, s.applicant.UserID)
		s.Require().NoError(err)
		s.Empty(cards)
	})

	s.Run("a stale token cannot submit", func() {
		_, err := s.svc.Submit(s.ctx, s.applicant, validSubmission())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
