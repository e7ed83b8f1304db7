package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"securecard/internal/card/models"
	cardstore "securecard/internal/card/store/card"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/audit"
	auditmemory "securecard/pkg/platform/audit/store/memory"
	"securecard/pkg/requestcontext"
)

type CardServiceSuite struct {
	suite.Suite
	store  *cardstore.InMemory
	audits *auditmemory.InMemoryStore
	svc    *Service
	ctx    context.Context
	owner  id.Caller
	other  id.Caller
	admin  id.Caller
}

func TestCardServiceSuite(t *testing.T) {
	suite.Run(t, new(CardServiceSuite))
}

type directPublisher struct {
	store *auditmemory.InMemoryStore
}

func (p directPublisher) Emit(ctx context.Context, event audit.Event) error {
	return p.store.Append(ctx, event)
}

func (s *CardServiceSuite) SetupTest() {
	s.store = cardstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.svc = New(s.store, s.store, WithAuditPublisher(directPublisher{s.audits}))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.owner = id.Caller{UserID: id.NewUserID(), Email: "owner@example.com", Role: id.RoleUser}
	s.other = id.Caller{UserID: id.NewUserID(), Email: "other@example.com", Role: id.RoleUser}
	s.admin = id.Caller{UserID: id.NewUserID(), Email: "admin@example.com", Role: id.RoleAdmin}
}

func (s *CardServiceSuite) issue(category models.Category, tier models.Tier) *models.Card {
	card, err := s.svc.CreateFromApplication(s.ctx, models.Application{
		ID:          id.NewApplicationID(),
		ApplicantID: s.owner.UserID,
		Category:    category,
		Tier:        tier,
		Status:      models.StatusAccepted,
	})
	s.Require().NoError(err)
	return card
}

func (s *CardServiceSuite) fund(card *models.Card, amount int64) {
	_, err := s.svc.UpdateBalance(s.ctx, s.owner, card.ID, decimal.NewFromInt(amount))
	s.Require().NoError(err)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (s *CardServiceSuite) TestCreateFromApplication() {
	s.Run("issues an active card with zero balance", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.True(card.IsUsable())
		s.True(card.Balance.IsZero())
		s.True(models.LuhnValid(card.Number))

		events, err := s.audits.ListByUser(s.ctx, s.owner.UserID)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(string(audit.EventCardCreated), events[len(events)-1].Action)
	})

	s.Run("refuses applications that are not accepted", func() {
		for _, status := range []models.Status{models.StatusPending, models.StatusRejected} {
			_, err := s.svc.CreateFromApplication(s.ctx, models.Application{
				ID:          id.NewApplicationID(),
				ApplicantID: s.owner.UserID,
				Category:    models.CategoryDebit,
				Tier:        models.TierSilver,
				Status:      status,
			})
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), status)
		}
	})

	s.Run("second card for the same application conflicts", func() {
		app := models.Application{
			ID:          id.NewApplicationID(),
			ApplicantID: s.owner.UserID,
			Category:    models.CategoryCredit,
			Tier:        models.TierGold,
			Status:      models.StatusAccepted,
		}
		first, err := s.svc.CreateFromApplication(s.ctx, app)
		s.Require().NoError(err)
		_, err = s.svc.CreateFromApplication(s.ctx, app)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		issued, err := s.store.FindByApplication(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(first.ID, issued.ID)
	})
}

func (s *CardServiceSuite) TestAccessControl() {
	card := s.issue(models.CategoryDebit, models.TierSilver)

	s.Run("owner and admin can read", func() {
		_, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.NoError(err)
		_, err = s.svc.Get(s.ctx, s.admin, card.ID)
		s.NoError(err)
	})

	s.Run("other users are forbidden", func() {
		_, err := s.svc.Get(s.ctx, s.other, card.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.svc.UpdateBalance(s.ctx, s.other, card.ID, dec(10))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.True(dErrors.HasCode(s.svc.Delete(s.ctx, s.other, card.ID), dErrors.CodeForbidden))
	})

	s.Run("anonymous callers are unauthorized", func() {
		_, err := s.svc.Get(s.ctx, id.Caller{}, card.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown card is not found", func() {
		_, err := s.svc.Get(s.ctx, s.owner, id.NewCardID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("admin lists another user's cards", func() {
		cards, err := s.svc.ListForUser(s.ctx, s.admin, s.owner.UserID)
		s.Require().NoError(err)
		s.NotEmpty(cards)
		_, err = s.svc.ListForUser(s.ctx, s.other, s.owner.UserID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CardServiceSuite) TestUpdateBalance() {
	s.Run("debit cannot go negative", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		_, err := s.svc.UpdateBalance(s.ctx, s.owner, card.ID, dec(-1))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("credit cannot exceed tier limit", func() {
		card := s.issue(models.CategoryCredit, models.TierSilver)
		_, err := s.svc.UpdateBalance(s.ctx, s.owner, card.ID, dec(30001))
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		updated, err := s.svc.UpdateBalance(s.ctx, s.owner, card.ID, dec(30000))
		s.Require().NoError(err)
		s.True(updated.Balance.Equal(dec(30000)))
	})

	s.Run("records an adjustment transaction", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.fund(card, 700)
		txns, err := s.svc.ListTransactions(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.Require().Len(txns, 1)
		s.Equal(models.TransactionAdjustment, txns[0].Kind)
		s.True(txns[0].BalanceAfter.Equal(dec(700)))
	})

	s.Run("inactive card is a conflict", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		_, err := s.svc.Deactivate(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		_, err = s.svc.UpdateBalance(s.ctx, s.owner, card.ID, dec(5))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("inactive card cannot be charged", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.fund(card, 500)
		_, err := s.svc.Deactivate(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)

		_, err = s.svc.Quote(s.ctx, s.owner.UserID, card.ID, dec(100))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(100))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CardServiceSuite) TestDepositAndPayBill() {
	s.Run("deposit adds to debit", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		updated, err := s.svc.Deposit(s.ctx, s.owner, card.ID, dec(250))
		s.Require().NoError(err)
		s.True(updated.Balance.Equal(dec(250)))
	})

	s.Run("deposit rejected on credit", func() {
		card := s.issue(models.CategoryCredit, models.TierSilver)
		_, err := s.svc.Deposit(s.ctx, s.owner, card.ID, dec(250))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("bill payment reduces credit debt", func() {
		card := s.issue(models.CategoryCredit, models.TierGold)
		_, err := s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(1000))
		s.Require().NoError(err)

		updated, err := s.svc.PayBill(s.ctx, s.owner, card.ID, dec(400))
		s.Require().NoError(err)
		s.True(updated.Balance.Equal(dec(600)))

		txns, err := s.svc.ListTransactions(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.Require().Len(txns, 2)
		s.Equal(models.TransactionBillPayment, txns[0].Kind)
		s.Equal(models.TransactionPurchase, txns[1].Kind)
	})
}

func (s *CardServiceSuite) TestCharge() {
	s.Run("debit charge subtracts and links payment", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.fund(card, 10000)
		paymentID := id.NewPaymentID()

		updated, err := s.svc.Charge(s.ctx, s.owner.UserID, card.ID, paymentID, dec(5000))
		s.Require().NoError(err)
		s.True(updated.Balance.Equal(dec(5000)))

		txns, err := s.svc.ListTransactions(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.Equal(paymentID, txns[0].PaymentID)
	})

	s.Run("insufficient funds leaves balance unchanged", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.fund(card, 5000)
		_, err := s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(6000))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))

		found, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.True(found.Balance.Equal(dec(5000)))
	})

	s.Run("credit limit exceeded leaves balance unchanged", func() {
		card := s.issue(models.CategoryCredit, models.TierGold)
		s.fund(card, 49000)
		_, err := s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(2000))
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		found, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.True(found.Balance.Equal(dec(49000)))
	})

	s.Run("quote does not mutate", func() {
		card := s.issue(models.CategoryCredit, models.TierSilver)
		next, err := s.svc.Quote(s.ctx, s.owner.UserID, card.ID, dec(100))
		s.Require().NoError(err)
		s.True(next.Equal(dec(100)))

		found, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.True(found.Balance.IsZero())
	})

	s.Run("concurrent charges never overdraw", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		s.fund(card, 1000)

		var wg sync.WaitGroup
		var succeeded atomic.Int32
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(100)); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		s.Equal(int32(10), succeeded.Load())
		found, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.True(found.Balance.IsZero())
	})
}

func (s *CardServiceSuite) TestChangeTier() {
	s.Run("silver to platinum", func() {
		card := s.issue(models.CategoryCredit, models.TierSilver)
		updated, err := s.svc.ChangeTier(s.ctx, s.owner, card.ID, models.TierPlatinum)
		s.Require().NoError(err)
		s.Equal(models.TierPlatinum, updated.Tier)
		s.True(updated.CreditLimit().Equal(dec(100000)))
	})

	s.Run("downgrade rejected", func() {
		card := s.issue(models.CategoryCredit, models.TierGold)
		_, err := s.svc.ChangeTier(s.ctx, s.owner, card.ID, models.TierSilver)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTierTransition))

		found, err := s.svc.Get(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)
		s.Equal(models.TierGold, found.Tier)
	})
}

func (s *CardServiceSuite) TestDeactivate() {
	s.Run("second call reports already inactive", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		_, err := s.svc.Deactivate(s.ctx, s.owner, card.ID)
		s.Require().NoError(err)

		_, err = s.svc.Deactivate(s.ctx, s.owner, card.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInactive))
		s.True(dErrors.CodeOf(err).IsConflictClass())
	})

	s.Run("admin may deactivate", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		updated, err := s.svc.Deactivate(s.ctx, s.admin, card.ID)
		s.Require().NoError(err)
		s.False(updated.State.IsActive())

		active, err := s.svc.ListActiveByOwner(s.ctx, s.owner)
		s.Require().NoError(err)
		for _, c := range active {
			s.NotEqual(card.ID, c.ID)
		}
	})

	s.Run("concurrent deactivation succeeds once", func() {
		card := s.issue(models.CategoryDebit, models.TierSilver)
		var wg sync.WaitGroup
		var succeeded, already atomic.Int32
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.svc.Deactivate(s.ctx, s.owner, card.ID)
				switch {
				case err == nil:
					succeeded.Add(1)
				case dErrors.HasCode(err, dErrors.CodeAlreadyInactive):
					already.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), succeeded.Load())
		s.Equal(int32(9), already.Load())
	})
}

func (s *CardServiceSuite) TestDelete() {
	card := s.issue(models.CategoryDebit, models.TierSilver)
	s.Require().NoError(s.svc.Delete(s.ctx, s.owner, card.ID))

	_, err := s.svc.Get(s.ctx, s.owner, card.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.svc.Delete(s.ctx, s.owner, card.ID), dErrors.CodeNotFound))
	_, err = s.svc.Charge(s.ctx, s.owner.UserID, card.ID, id.NewPaymentID(), dec(1))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CardServiceSuite) TestRemoveOwner() {
	s.issue(models.CategoryDebit, models.TierSilver)
	s.issue(models.CategoryCredit, models.TierGold)

	n, err := s.svc.RemoveOwner(s.ctx, s.owner.UserID)
	s.Require().NoError(err)
	s.Equal(2, n)

	cards, err := s.svc.ListByOwner(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Empty(cards)
}
