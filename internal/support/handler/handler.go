package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"securecard/internal/support/models"
	id "securecard/pkg/domain"
	dErrors "securecard/pkg/domain-errors"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, caller id.Caller, subject, message string) (*models.Query, error)
	ListOpen(ctx context.Context, caller id.Caller) ([]*models.Query, error)
	Resolve(ctx context.Context, caller id.Caller, queryID id.QueryID, reply string) (*models.Query, error)
}

type Handler struct {
	queries Service
	logger  *slog.Logger
}

func New(queries Service, logger *slog.Logger) *Handler {
	return &Handler{queries: queries, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/queries", h.handleSubmit)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/queries", h.handleListOpen)
	r.Post("/admin/queries/{id}/resolve", h.handleResolve)
}

type SubmitRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (r *SubmitRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *SubmitRequest) Validate() error {
	if r.Subject == "" || r.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "subject and message are required")
	}
	return nil
}

type ResolveRequest struct {
	Reply string `json:"reply"`
}

func (r *ResolveRequest) Validate() error {
	return nil
}

type QueryResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Subject    string     `json:"subject"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	Reply      string     `json:"reply,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func toQueryResponse(q *models.Query) QueryResponse {
	return QueryResponse{
		ID:         q.ID.String(),
		UserID:     q.UserID.String(),
		Email:      q.Email,
		Subject:    q.Subject,
		Message:    q.Message,
		Status:     string(q.Status),
		Reply:      q.Reply,
		CreatedAt:  q.CreatedAt,
		ResolvedAt: q.ResolvedAt,
	}
}

type QueryListResponse struct {
	Queries []QueryResponse `json:"queries"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	q, err := h.queries.Submit(ctx, requestcontext.Caller(ctx), req.Subject, req.Message)
	if err != nil {
		h.writeError(ctx, w, "submit query", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toQueryResponse(q))
}

func (h *Handler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queries, err := h.queries.ListOpen(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list open queries", err)
		return
	}
	out := QueryListResponse{Queries: make([]QueryResponse, 0, len(queries))}
	for _, q := range queries {
		out.Queries = append(out.Queries, toQueryResponse(q))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queryID, err := id.ParseQueryID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	q, err := h.queries.Resolve(ctx, requestcontext.Caller(ctx), queryID, req.Reply)
	if err != nil {
		h.writeError(ctx, w, "resolve query", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQueryResponse(q))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	httputil.LogAndWriteError(ctx, w, h.logger, requestcontext.RequestID(ctx), op, err)
}
