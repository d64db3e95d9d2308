package admin

import (
	"log/slog"
	"net/http"

	request "kycflow/pkg/platform/middleware/request"
	"kycflow/pkg/requestcontext"
)

// RequireAdmin admits only actors holding Admin or SuperAdmin. It must run
// after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestcontext.Actor(ctx)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"authentication required"}`))
				return
			}
			if !actor.IsAdmin() {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", request.GetRequestID(ctx),
					"user_id", actor.UserID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"administrator role required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
