package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP level Prometheus metrics for the application
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

// New creates and registers the HTTP metrics with reg. A nil registerer means
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycflow_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_http_requests_total",
			Help: "Total HTTP requests by route pattern and status",
		}, []string{"method", "route", "status"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kycflow_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

// Middleware records latency per chi route pattern so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(ww.Status())
		m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
