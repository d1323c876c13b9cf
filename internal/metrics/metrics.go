// Package metrics exposes Prometheus instrumentation for the gateway.
// Collectors are registered once at startup and shared through a Metrics
// value rather than package globals so tests can build isolated registries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	PaymentsRequired   *prometheus.CounterVec
	PaymentsVerified   *prometheus.CounterVec
	PaymentsSettled    *prometheus.CounterVec
	PaymentsFailed     *prometheus.CounterVec
	ReplaysRejected    prometheus.Counter
	IdempotentReplays  prometheus.Counter
	FacilitatorLatency *prometheus.HistogramVec
	UpstreamLatency    *prometheus.HistogramVec
	CacheEntries       *prometheus.GaugeVec
	RequestsInFlight   prometheus.Gauge
}

// New creates and registers all gateway collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		PaymentsRequired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_payments_required_total",
			Help: "Number of 402 challenges issued, by route.",
		}, []string{"route"}),

		PaymentsVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_payments_verified_total",
			Help: "Number of payments verified by the facilitator, by network.",
		}, []string{"network"}),

		PaymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_payments_settled_total",
			Help: "Number of payments settled on chain, by network and mode.",
		}, []string{"network", "mode"}),

		PaymentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_payments_failed_total",
			Help: "Number of payment attempts rejected, by reason.",
		}, []string{"reason"}),

		ReplaysRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_replays_rejected_total",
			Help: "Number of requests rejected for reusing a nonce.",
		}),

		IdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_idempotent_replays_total",
			Help: "Number of responses served from the idempotency cache.",
		}),

		FacilitatorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_facilitator_request_seconds",
			Help:    "Facilitator round-trip latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_request_seconds",
			Help:    "Upstream proxy round-trip latency by status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status_class"}),

		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_cache_entries",
			Help: "Current entry count per TTL cache.",
		}, []string{"cache"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_requests_in_flight",
			Help: "Requests currently being handled.",
		}),
	}

	reg.MustRegister(
		m.PaymentsRequired,
		m.PaymentsVerified,
		m.PaymentsSettled,
		m.PaymentsFailed,
		m.ReplaysRejected,
		m.IdempotentReplays,
		m.FacilitatorLatency,
		m.UpstreamLatency,
		m.CacheEntries,
		m.RequestsInFlight,
	)

	return m
}

// Handler returns the /metrics scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFacilitator records a facilitator call duration for "verify" or
// "settle".
func (m *Metrics) ObserveFacilitator(operation string, start time.Time) {
	m.FacilitatorLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveUpstream records an upstream proxy duration bucketed by status
// class ("2xx", "4xx", "5xx", "error").
func (m *Metrics) ObserveUpstream(statusClass string, start time.Time) {
	m.UpstreamLatency.WithLabelValues(statusClass).Observe(time.Since(start).Seconds())
}

// StatusClass maps an HTTP status code to its metric label.
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// InFlight wraps a handler with the in-flight requests gauge.
func (m *Metrics) InFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()
		next.ServeHTTP(w, r)
	})
}
