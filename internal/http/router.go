// Package httpapi assembles the chi router: shared middleware, the public,
// authenticated and admin route groups, and the platform endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphandler "securecard/internal/application/handler"
	cardhandler "securecard/internal/card/handler"
	paymenthandler "securecard/internal/payment/handler"
	"securecard/internal/platform/metrics"
	supporthandler "securecard/internal/support/handler"
	userhandler "securecard/internal/user/handler"
	"securecard/pkg/platform/httputil"
	"securecard/pkg/platform/middleware/admin"
	"securecard/pkg/platform/middleware/auth"
	"securecard/pkg/platform/middleware/metadata"
	"securecard/pkg/platform/middleware/ratelimit"
	"securecard/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	Users        *userhandler.Handler
	Cards        *cardhandler.Handler
	Applications *apphandler.Handler
	Payments     *paymenthandler.Handler
	Support      *supporthandler.Handler
}

type Deps struct {
	Handlers    Handlers
	Tokens      auth.JWTValidator
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	RateLimiter *ratelimit.Middleware
	// Health checks are keyed by dependency name, e.g. "postgres".
	Health map[string]HealthCheck
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Handler)
		}
		d.Handlers.Users.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Tokens, d.Logger))
		d.Handlers.Users.Register(r)
		d.Handlers.Cards.Register(r)
		d.Handlers.Applications.Register(r)
		d.Handlers.Payments.Register(r)
		d.Handlers.Support.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(d.Logger))
			d.Handlers.Users.RegisterAdmin(r)
			d.Handlers.Cards.RegisterAdmin(r)
			d.Handlers.Applications.RegisterAdmin(r)
			d.Handlers.Support.RegisterAdmin(r)
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
