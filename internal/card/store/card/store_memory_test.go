package card

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"securecard/internal/card/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

type CardStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestCardStoreSuite(t *testing.T) {
	suite.Run(t, new(CardStoreSuite))
}

func (s *CardStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *CardStoreSuite) newCard(owner id.UserID) *models.Card {
	number, err := models.GenerateNumber(models.CategoryDebit, nil)
	s.Require().NoError(err)
	c, err := models.NewCard(id.NewCardID(), owner, id.NewApplicationID(), number, models.CategoryDebit, models.TierSilver, time.Now())
	s.Require().NoError(err)
	return c
}

func (s *CardStoreSuite) TestCreateAndFind() {
	s.Run("creates and finds by id and application", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.Number, found.Number)

		byApp, err := s.store.FindByApplication(s.ctx, c.ApplicationID)
		s.Require().NoError(err)
		s.Equal(c.ID, byApp.ID)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewCardID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate number is a conflict", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))

		dup := s.newCard(id.NewUserID())
		dup.Number = c.Number
		s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("second card for one application is already used", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))

		dup := s.newCard(id.NewUserID())
		dup.ApplicationID = c.ApplicationID
		s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})
}

func (s *CardStoreSuite) TestExecute() {
	s.Run("persists successful mutations", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))

		updated, err := s.store.Execute(s.ctx, c.ID, func(card *models.Card) error {
			card.ApplyBalance(decimal.NewFromInt(42), time.Now())
			return nil
		})
		s.Require().NoError(err)
		s.True(updated.Balance.Equal(decimal.NewFromInt(42)))

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.True(found.Balance.Equal(decimal.NewFromInt(42)))
	})

	s.Run("discards mutations when fn fails", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))
		boom := errors.New("boom")

		_, err := s.store.Execute(s.ctx, c.ID, func(card *models.Card) error {
			card.ApplyBalance(decimal.NewFromInt(99), time.Now())
			return boom
		})
		s.Require().ErrorIs(err, boom)

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.True(found.Balance.IsZero())
	})

	s.Run("unknown card", func() {
		_, err := s.store.Execute(s.ctx, id.NewCardID(), func(*models.Card) error { return nil })
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("serializes concurrent increments", func() {
		c := s.newCard(id.NewUserID())
		s.Require().NoError(s.store.Create(s.ctx, c))

		const workers = 50
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Execute(s.ctx, c.ID, func(card *models.Card) error {
					card.ApplyBalance(card.Balance.Add(decimal.NewFromInt(1)), time.Now())
					return nil
				})
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.True(found.Balance.Equal(decimal.NewFromInt(workers)), found.Balance.String())
	})
}

func (s *CardStoreSuite) TestDelete() {
	owner := id.NewUserID()
	c1 := s.newCard(owner)
	c2 := s.newCard(owner)
	other := s.newCard(id.NewUserID())
	for _, c := range []*models.Card{c1, c2, other} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	s.Require().NoError(s.store.Delete(s.ctx, c1.ID))
	_, err := s.store.FindByID(s.ctx, c1.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(s.ctx, c1.ID), sentinel.ErrNotFound)

	n, err := s.store.DeleteByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(1, n)

	cards, err := s.store.ListByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.Empty(cards)

	cards, err = s.store.ListByOwner(s.ctx, other.OwnerID)
	s.Require().NoError(err)
	s.Len(cards, 1)
}

func (s *CardStoreSuite) TestTransactions() {
	c := s.newCard(id.NewUserID())
	s.Require().NoError(s.store.Create(s.ctx, c))

	first := models.NewTransaction(c, id.PaymentID{}, models.TransactionDeposit, decimal.NewFromInt(10), time.Now())
	second := models.NewTransaction(c, id.NewPaymentID(), models.TransactionPurchase, decimal.NewFromInt(5), time.Now())
	s.Require().NoError(s.store.AppendTransaction(s.ctx, first))
	s.Require().NoError(s.store.AppendTransaction(s.ctx, second))

	txns, err := s.store.ListTransactions(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(second.ID, txns[0].ID)
	s.Equal(first.ID, txns[1].ID)
	s.True(txns[1].PaymentID.IsNil())
}
