//go:build integration

package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	cardmodels "securecard/internal/card/models"
	cardservice "securecard/internal/card/service"
	cardstore "securecard/internal/card/store/card"
	otpservice "securecard/internal/otp/service"
	"securecard/internal/otp/store/challenge"
	"securecard/internal/otp/store/throttle"
	"securecard/internal/payment/models"
	"securecard/internal/payment/service"
	couponstore "securecard/internal/payment/store/coupon"
	paymentstore "securecard/internal/payment/store/payment"
	"securecard/internal/platform/postgres"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/email"
	"securecard/pkg/requestcontext"
	"securecard/pkg/testutil/containers"
)

// PostgresResolveSuite runs resolutions against row locks instead of the
// in-memory shard locks.
type PostgresResolveSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	cards    *cardservice.Service
	svc      *service.Service
	ctx      context.Context
	owner    id.Caller
}

func TestPostgresResolveSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresResolveSuite))
}

func (s *PostgresResolveSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	runner := postgres.NewTxRunner(s.postgres.DB)
	cards := cardstore.NewPostgres(s.postgres.DB)
	s.cards = cardservice.New(cards, cards, cardservice.WithTxRunner(runner))
	otp := otpservice.New(challenge.NewInMemory(), throttle.NewInMemory(), email.NewLogSender(nil))
	s.svc = service.New(paymentstore.NewPostgres(s.postgres.DB), couponstore.NewPostgres(s.postgres.DB), s.cards, otp,
		service.WithTxRunner(runner),
	)
}

func (s *PostgresResolveSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "payments", "cards", "card_transactions"))
	s.ctx = requestcontext.WithTime(context.Background(), time.Now().UTC().Truncate(time.Microsecond))
	s.owner = id.Caller{UserID: id.NewUserID(), Email: "owner@example.com", Role: id.RoleUser}
}

func (s *PostgresResolveSuite) fundedDebit(balance int64) *cardmodels.Card {
	card, err := s.cards.CreateFromApplication(s.ctx, cardmodels.Application{
		ID:          id.NewApplicationID(),
		ApplicantID: s.owner.UserID,
		Category:    cardmodels.CategoryDebit,
		Tier:        cardmodels.TierSilver,
		Status:      cardmodels.StatusAccepted,
	})
	s.Require().NoError(err)
	card, err = s.cards.UpdateBalance(s.ctx, s.owner, card.ID, decimal.NewFromInt(balance))
	s.Require().NoError(err)
	return card
}

func (s *PostgresResolveSuite) TestConcurrentResolveChargesOnce() {
	card := s.fundedDebit(1000)
	p, err := s.svc.Create(s.ctx, s.owner, "order-e", decimal.NewFromInt(300))
	s.Require().NoError(err)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		paid      int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Resolve(s.ctx, s.owner, models.ResolveRequest{
				PaymentID:  p.ID,
				Action:     models.ActionPaid,
				CardID:     card.ID,
				CouponCode: "SECURECARD10",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.Outcome == models.OutcomePaid:
				paid++
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, paid)
	s.Equal(workers-1, conflicts)

	got, err := s.cards.Get(s.ctx, s.owner, card.ID)
	s.Require().NoError(err)
	s.True(got.Balance.Equal(decimal.NewFromInt(730)))

	txns, err := s.svc.ListTransactions(s.ctx, s.owner, card.ID)
	s.Require().NoError(err)
	purchases := 0
	for _, t := range txns {
		if t.Kind == cardmodels.TransactionPurchase {
			purchases++
		}
	}
	s.Equal(1, purchases)
}

func (s *PostgresResolveSuite) TestDeclinedChargeLeavesPaymentPending() {
	card := s.fundedDebit(100)
	p, err := s.svc.Create(s.ctx, s.owner, "order-b", decimal.NewFromInt(500))
	s.Require().NoError(err)

	_, err = s.svc.Resolve(s.ctx, s.owner, models.ResolveRequest{
		PaymentID: p.ID,
		Action:    models.ActionPaid,
		CardID:    card.ID,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

	pending, err := s.svc.ListPending(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.StatusPending, pending[0].Status)
}
