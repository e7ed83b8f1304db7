package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"securecard/internal/application/models"
	cardmodels "securecard/internal/card/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, caller id.Caller, sub models.Submission) (*models.Application, error)
	ListMine(ctx context.Context, caller id.Caller) ([]*models.Application, error)
	Get(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, error)
	ListPending(ctx context.Context, caller id.Caller) ([]*models.Application, error)
	Accept(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, *cardmodels.Card, error)
	Reject(ctx context.Context, caller id.Caller, appID id.ApplicationID) (*models.Application, error)
}

type Handler struct {
	applications Service
	logger       *slog.Logger
}

func New(applications Service, logger *slog.Logger) *Handler {
	return &Handler{applications: applications, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.handleSubmit)
	r.Get("/applications", h.handleListMine)
	r.Get("/applications/{id}", h.handleGet)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/applications/pending", h.handleListPending)
	r.Post("/admin/applications/{id}/accept", h.handleAccept)
	r.Post("/admin/applications/{id}/reject", h.handleReject)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.applications.Submit(ctx, requestcontext.Caller(ctx), req.toSubmission())
	if err != nil {
		h.writeError(ctx, w, "submit application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.applications.ListMine(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list applications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationListResponse(apps))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := parseApplicationID(w, r)
	if !ok {
		return
	}
	app, err := h.applications.Get(ctx, requestcontext.Caller(ctx), appID)
	if err != nil {
		h.writeError(ctx, w, "get application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.applications.ListPending(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list pending applications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationListResponse(apps))
}

// AcceptResponse returns the decided application and the id of the issued
// card.
type AcceptResponse struct {
	Application ApplicationResponse `json:"application"`
	CardID      string              `json:"card_id"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := parseApplicationID(w, r)
	if !ok {
		return
	}
	app, card, err := h.applications.Accept(ctx, requestcontext.Caller(ctx), appID)
	if err != nil {
		h.writeError(ctx, w, "accept application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AcceptResponse{
		Application: toApplicationResponse(app),
		CardID:      card.ID.String(),
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := parseApplicationID(w, r)
	if !ok {
		return
	}
	app, err := h.applications.Reject(ctx, requestcontext.Caller(ctx), appID)
	if err != nil {
		h.writeError(ctx, w, "reject application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func parseApplicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	httputil.LogAndWriteError(ctx, w, h.logger, requestcontext.RequestID(ctx), op, err)
}
