// Package requesttime fixes one timestamp per request. The engine stamps the
// workflow's UpdatedAt and the appended log entry from it, so both agree.
package requesttime

import (
	"net/http"
	"time"

	"kycflow/pkg/requestcontext"
)

// Stamp normalizes t to UTC at microsecond precision, the resolution Postgres
// stores, so a value read back compares equal to the one written.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Middleware stamps the request with the current time.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an injectable clock.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), Stamp(now()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
