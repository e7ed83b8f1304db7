package admin

import (
	"log/slog"
	"net/http"

	"securecard/pkg/platform/httputil"
	"securecard/pkg/requestcontext"
)

// RequireAdmin rejects callers without the admin role. It must run after
// auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Caller(ctx)
			if err := caller.RequireAdmin(); err != nil {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", caller.UserID,
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
