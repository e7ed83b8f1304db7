package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	otpservice "securecard/internal/otp/service"
	"securecard/internal/user/models"
	"securecard/internal/user/service"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

type Service interface {
	StartRegistration(ctx context.Context, form models.RegistrationForm) (*otpservice.IssueResult, error)
	CompleteRegistration(ctx context.Context, challengeID id.ChallengeID, code string, form models.RegistrationForm) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.Token, error)
	Current(ctx context.Context, caller id.Caller) (*models.User, error)
	List(ctx context.Context, caller id.Caller) ([]*models.User, error)
	Delete(ctx context.Context, caller id.Caller, userID id.UserID) error
}

type Handler struct {
	users  Service
	logger *slog.Logger
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// RegisterPublic mounts the unauthenticated registration and login routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/register/verify", h.handleVerifyRegistration)
	r.Post("/auth/login", h.handleLogin)
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.handleMe)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/users", h.handleList)
	r.Delete("/admin/users/{id}", h.handleDelete)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	form, err := req.toForm()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issued, err := h.users.StartRegistration(ctx, form)
	if err != nil {
		h.writeError(ctx, w, "start registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toRegistrationStartedResponse(issued))
}

func (h *Handler) handleVerifyRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyRegistrationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	challengeID, err := req.challengeID()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	form, err := req.toForm()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.users.CompleteRegistration(ctx, challengeID, req.Code, form)
	if err != nil {
		h.writeError(ctx, w, "complete registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	tok, err := h.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.writeError(ctx, w, "login", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(tok))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.Current(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "get current user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.users.List(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "list users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserListResponse(users))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.users.Delete(ctx, requestcontext.Caller(ctx), userID); err != nil {
		h.writeError(ctx, w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	httputil.LogAndWriteError(ctx, w, h.logger, requestcontext.RequestID(ctx), op, err)
}
