package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"securecard/internal/card/models"
	"securecard/internal/card/service"
	cardstore "securecard/internal/card/store/card"
	id "securecard/pkg/domain"
	"securecard/pkg/testutil"
)

type CardHandlerSuite struct {
	suite.Suite
	router chi.Router
	svc    *service.Service
	owner  id.UserID
	admin  id.UserID
}

func TestCardHandlerSuite(t *testing.T) {
	suite.Run(t, new(CardHandlerSuite))
}

func (s *CardHandlerSuite) SetupTest() {
	store := cardstore.NewInMemory()
	s.svc = service.New(store, store)
	s.owner = id.NewUserID()
	s.admin = id.NewUserID()

	h := New(s.svc, nil)
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	s.router = r
}

func (s *CardHandlerSuite) issue(category models.Category, tier models.Tier) *models.Card {
	card, err := s.svc.CreateFromApplication(context.Background(), models.Application{
		ID:          id.NewApplicationID(),
		ApplicantID: s.owner,
		Category:    category,
		Tier:        tier,
		Status:      models.StatusAccepted,
	})
	s.Require().NoError(err)
	return card
}

func (s *CardHandlerSuite) asOwner(req *http.Request) *http.Request {
	return testutil.AsUser(req, s.owner, "owner@example.com")
}

func (s *CardHandlerSuite) TestListAndGet() {
	card := s.issue(models.CategoryCredit, models.TierGold)

	rr := testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards")))
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[CardListResponse](s.T(), rr)
	s.Require().Len(list.Cards, 1)
	s.Equal("50000.00", list.Cards[0].CreditLimit)
	s.Equal("**** **** **** "+card.Number[12:], list.Cards[0].Number)

	rr = testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+card.ID.String())))
	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[CardResponse](s.T(), rr)
	s.Equal("active", got.State)
	s.Equal("0.00", got.Balance)
}

func (s *CardHandlerSuite) TestErrors() {
	card := s.issue(models.CategoryDebit, models.TierSilver)

	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/not-a-uuid")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("unknown card", func() {
		rr := testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+id.NewCardID().String())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("other user's card", func() {
		req := testutil.AsUser(testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+card.ID.String()), id.NewUserID(), "x@example.com")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("negative debit balance", func() {
		req := s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPut, "/cards/"+card.ID.String()+"/balance", map[string]any{"balance": "-1"}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "insufficient_funds")
	})

	s.Run("missing amount", func() {
		req := s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPost, "/cards/"+card.ID.String()+"/deposit", map[string]any{}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
	})

	s.Run("too many decimals", func() {
		req := s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPost, "/cards/"+card.ID.String()+"/deposit", map[string]any{"amount": "1.005"}))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
	})
}

func (s *CardHandlerSuite) TestDepositAndTransactions() {
	card := s.issue(models.CategoryDebit, models.TierSilver)

	req := s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPost, "/cards/"+card.ID.String()+"/deposit", map[string]any{"amount": "1500.50"}))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("1500.50", testutil.UnmarshalResponse[CardResponse](s.T(), rr).Balance)

	rr = testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+card.ID.String()+"/transactions")))
	testutil.AssertStatusOK(s.T(), rr)
	txns := testutil.UnmarshalResponse[TransactionListResponse](s.T(), rr)
	s.Require().Len(txns.Transactions, 1)
	s.Equal("deposit", txns.Transactions[0].Kind)
}

func (s *CardHandlerSuite) TestTierAndDeactivation() {
	card := s.issue(models.CategoryCredit, models.TierGold)

	req := s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPut, "/cards/"+card.ID.String()+"/tier", map[string]any{"tier": "Silver"}))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_tier_transition")

	req = s.asOwner(testutil.NewJSONRequest(s.T(), http.MethodPut, "/cards/"+card.ID.String()+"/tier", map[string]any{"tier": "PLATINUM"}))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("platinum", testutil.UnmarshalResponse[CardResponse](s.T(), rr).Tier)

	rr = testutil.DoRequest(s.router, testutil.AsAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/admin/cards/"+card.ID.String()+"/deactivate"), s.admin))
	testutil.AssertStatusOK(s.T(), rr)

	rr = testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodPost, "/cards/"+card.ID.String()+"/deactivate")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_inactive")

	rr = testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/active")))
	testutil.AssertStatusOK(s.T(), rr)
	s.Empty(testutil.UnmarshalResponse[CardListResponse](s.T(), rr).Cards)
}

func (s *CardHandlerSuite) TestDelete() {
	card := s.issue(models.CategoryDebit, models.TierSilver)

	rr := testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodDelete, "/cards/"+card.ID.String())))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, s.asOwner(testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+card.ID.String())))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *CardHandlerSuite) TestRequestValidation() {
	s.Run("tier normalizes case", func() {
		req := &ChangeTierRequest{Tier: "  GOLD "}
		req.Normalize()
		s.NoError(req.Validate())
		s.Equal("gold", req.Tier)
	})

	s.Run("unknown tier", func() {
		req := &ChangeTierRequest{Tier: "diamond"}
		s.Error(req.Validate())
	})
}
