package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"securecard/internal/payment/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, caller id.Caller, orderID string, amount decimal.Decimal) (*models.Payment, error)
	ListPending(ctx context.Context, caller id.Caller) ([]*models.Payment, error)
	Quote(ctx context.Context, caller id.Caller, paymentID id.PaymentID, couponCode string) (*models.Quote, error)
	Resolve(ctx context.Context, caller id.Caller, req models.ResolveRequest) (*models.ResolveResult, error)
	VerifyOTP(ctx context.Context, caller id.Caller, req models.VerifyRequest) (*models.Payment, error)
}

type Handler struct {
	payments Service
	logger   *slog.Logger
}

func New(payments Service, logger *slog.Logger) *Handler {
	return &Handler{payments: payments, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/payments", h.handleCreate)
	r.Get("/payments/pending", h.handleListPending)
	r.Post("/payments/{id}/quote", h.handleQuote)
	r.Post("/payments/{id}/resolve", h.handleResolve)
	r.Post("/payments/{id}/verify", h.handleVerify)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.payments.Create(ctx, requestcontext.Caller(ctx), req.OrderID, *req.Amount)
	if err != nil {
		h.writeError(ctx, w, "create payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payments, err := h.payments.ListPending(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list pending payments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPaymentListResponse(payments))
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, ok := parsePaymentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[QuoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	quote, err := h.payments.Quote(ctx, requestcontext.Caller(ctx), paymentID, req.CouponCode)
	if err != nil {
		h.writeError(ctx, w, "quote payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQuoteResponse(quote))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, ok := parsePaymentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	resolve, err := req.toModel(paymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.payments.Resolve(ctx, requestcontext.Caller(ctx), resolve)
	if err != nil {
		h.writeError(ctx, w, "resolve payment", err)
		return
	}
	status := http.StatusOK
	if res.Outcome == models.OutcomeOtpRequired {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, toResolveResponse(res))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, ok := parsePaymentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	verify, err := req.toModel(paymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.payments.VerifyOTP(ctx, requestcontext.Caller(ctx), verify)
	if err != nil {
		h.writeError(ctx, w, "verify payment otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPaymentResponse(p))
}

func parsePaymentID(w http.ResponseWriter, r *http.Request) (id.PaymentID, bool) {
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PaymentID{}, false
	}
	return paymentID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	httputil.LogAndWriteError(ctx, w, h.logger, requestcontext.RequestID(ctx), op, err)
}
