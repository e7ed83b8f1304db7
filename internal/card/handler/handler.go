package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"securecard/internal/card/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

// Service is the card registry surface used by the HTTP layer.
type Service interface {
	Get(ctx context.Context, caller id.Caller, cardID id.CardID) (*models.Card, error)
	ListByOwner(ctx context.Context, caller id.Caller) ([]*models.Card, error)
	ListActiveByOwner(ctx context.Context, caller id.Caller) ([]*models.Card, error)
	ListForUser(ctx context.Context, caller id.Caller, userID id.UserID) ([]*models.Card, error)
	UpdateBalance(ctx context.Context, caller id.Caller, cardID id.CardID, balance decimal.Decimal) (*models.Card, error)
	Deposit(ctx context.Context, caller id.Caller, cardID id.CardID, amount decimal.Decimal) (*models.Card, error)
	PayBill(ctx context.Context, caller id.Caller, cardID id.CardID, amount decimal.Decimal) (*models.Card, error)
	ChangeTier(ctx context.Context, caller id.Caller, cardID id.CardID, target models.Tier) (*models.Card, error)
	Deactivate(ctx context.Context, caller id.Caller, cardID id.CardID) (*models.Card, error)
	Delete(ctx context.Context, caller id.Caller, cardID id.CardID) error
	ListTransactions(ctx context.Context, caller id.Caller, cardID id.CardID) ([]*models.Transaction, error)
}

// Handler serves the card endpoints. Authentication and the admin guard are
// applied by the router.
type Handler struct {
	cards  Service
	logger *slog.Logger
}

func New(cards Service, logger *slog.Logger) *Handler {
	return &Handler{cards: cards, logger: logger}
}

// Register mounts the owner routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/cards", h.handleList)
	r.Get("/cards/active", h.handleListActive)
	r.Get("/cards/{id}", h.handleGet)
	r.Put("/cards/{id}/balance", h.handleUpdateBalance)
	r.Post("/cards/{id}/deposit", h.handleDeposit)
	r.Post("/cards/{id}/bill", h.handlePayBill)
	r.Put("/cards/{id}/tier", h.handleChangeTier)
	r.Post("/cards/{id}/deactivate", h.handleDeactivate)
	r.Delete("/cards/{id}", h.handleDelete)
	r.Get("/cards/{id}/transactions", h.handleListTransactions)
}

// RegisterAdmin mounts the admin routes on a router guarded by the admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/users/{id}/cards", h.handleListForUser)
	r.Post("/admin/cards/{id}/deactivate", h.handleDeactivate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cards, err := h.cards.ListByOwner(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list cards", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardListResponse(cards))
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cards, err := h.cards.ListActiveByOwner(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list active cards", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardListResponse(cards))
}

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cards, err := h.cards.ListForUser(ctx, requestcontext.Caller(ctx), userID)
	if err != nil {
		h.writeError(ctx, w, "list user cards", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardListResponse(cards))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Get(ctx, requestcontext.Caller(ctx), cardID)
	if err != nil {
		h.writeError(ctx, w, "get card", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateBalanceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	card, err := h.cards.UpdateBalance(ctx, requestcontext.Caller(ctx), cardID, *req.Balance)
	if err != nil {
		h.writeError(ctx, w, "update balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	card, err := h.cards.Deposit(ctx, requestcontext.Caller(ctx), cardID, *req.Amount)
	if err != nil {
		h.writeError(ctx, w, "deposit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handlePayBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	card, err := h.cards.PayBill(ctx, requestcontext.Caller(ctx), cardID, *req.Amount)
	if err != nil {
		h.writeError(ctx, w, "pay bill", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeTierRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	card, err := h.cards.ChangeTier(ctx, requestcontext.Caller(ctx), cardID, models.Tier(req.Tier))
	if err != nil {
		h.writeError(ctx, w, "change tier", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Deactivate(ctx, requestcontext.Caller(ctx), cardID)
	if err != nil {
		h.writeError(ctx, w, "deactivate card", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCardResponse(card))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	if err := h.cards.Delete(ctx, requestcontext.Caller(ctx), cardID); err != nil {
		h.writeError(ctx, w, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}
	txns, err := h.cards.ListTransactions(ctx, requestcontext.Caller(ctx), cardID)
	if err != nil {
		h.writeError(ctx, w, "list transactions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionListResponse(txns))
}

func parseCardID(w http.ResponseWriter, r *http.Request) (id.CardID, bool) {
	cardID, err := id.ParseCardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CardID{}, false
	}
	return cardID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	httputil.LogAndWriteError(ctx, w, h.logger, requestcontext.RequestID(ctx), op, err)
}
