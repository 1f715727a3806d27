// pkg/middleware/metrics.go
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_auth_attempts_total",
		Help: "Authentication attempts by method and outcome.",
	}, []string{"method", "outcome"})

	csrfOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_csrf_validations_total",
		Help: "CSRF validate-and-consume outcomes.",
	}, []string{"outcome"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventgate_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// ObserveAuth records one gate decision.
func ObserveAuth(method, outcome string) {
	authAttempts.WithLabelValues(method, outcome).Inc()
}

// ObserveCSRF records one CSRF validation outcome.
func ObserveCSRF(outcome string) {
	csrfOutcomes.WithLabelValues(outcome).Inc()
}

// Metrics measures request latency per method/status.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			httpDuration.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}
