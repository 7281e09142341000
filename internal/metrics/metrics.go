// Package metrics holds Prometheus instruments that are used across the
// site.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelaySubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Contact submissions handled by the relay, by outcome.",
		}, []string{"outcome"})

	RelayActionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_action_errors_total",
			Help: "Post-submit action failures, by action.",
		}, []string{"action"})

	RelayThrottleTrackedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_throttle_tracked_clients",
			Help: "Client addresses currently tracked by the relay throttle.",
		})

	RelayThrottleEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_throttle_evictions_total",
			Help: "Client windows dropped because the throttle table was full.",
		})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method, and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"})
)

func init() {
	prometheus.MustRegister(
		RelaySubmissionsTotal,
		RelayActionErrorsTotal,
		RelayThrottleTrackedClients,
		RelayThrottleEvictionsTotal,
		HTTPRequestDuration,
	)
}

// Instrument records HTTPRequestDuration for every request.  The route label
// is the chi pattern, so path parameters do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
