package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"kycflow/internal/platform/metrics"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/platform/middleware/admin"
	"kycflow/pkg/platform/middleware/auth"
	"kycflow/pkg/platform/middleware/metadata"
	"kycflow/pkg/platform/middleware/request"
	"kycflow/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 15 * time.Second

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config carries everything the router needs. Handlers stay thin and delegate
// to domain services so transport concerns remain isolated here.
type Config struct {
	Logger         *slog.Logger
	Validator      auth.JWTValidator
	Metrics        *metrics.Metrics
	Workflows      Registrar
	Admin          Registrar
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
}

// NewRouter wires the public endpoints. Health and metrics stay outside
// authentication.
func NewRouter(cfg Config) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.HealthChecks))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))

		if cfg.Workflows != nil {
			cfg.Workflows.Register(r)
		}
		if cfg.Admin != nil {
			r.Group(func(r chi.Router) {
				r.Use(admin.RequireAdmin(cfg.Logger))
				cfg.Admin.Register(r)
			})
		}
	})
	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, report)
	}
}
