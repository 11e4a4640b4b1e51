package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	flowTransitions    *prometheus.CounterVec
	accessDenials      *prometheus.CounterVec
	paymentSubmissions *prometheus.CounterVec
	activeFlows        prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		flowTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_flow_transitions_total",
				Help: "Contribution flow step transitions.",
			},
			[]string{"from", "to"},
		),
		accessDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_access_denials_total",
				Help: "Access gate denials by reason.",
			},
			[]string{"reason"},
		),
		paymentSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_payment_submissions_total",
				Help: "Payment submissions by outcome.",
			},
			[]string{"outcome"},
		),
		activeFlows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bfa_active_flows",
				Help: "Contribution flows currently held in memory.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTransition counts a step transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.flowTransitions.WithLabelValues(from, to).Inc()
}

// IncrAccessDenied counts an access gate denial.
func (m *Metrics) IncrAccessDenied(reason string) {
	m.accessDenials.WithLabelValues(reason).Inc()
}

// IncrPaymentSubmission counts a submission outcome
// (success, duplicate_purchase, rejected, gateway_error, unavailable, in_flight).
func (m *Metrics) IncrPaymentSubmission(outcome string) {
	m.paymentSubmissions.WithLabelValues(outcome).Inc()
}

// SetActiveFlows sets the number of flows in the registry.
func (m *Metrics) SetActiveFlows(n int) {
	m.activeFlows.Set(float64(n))
}

// PaymentSubmissions returns the cumulative count for an outcome.
func (m *Metrics) PaymentSubmissions(outcome string) float64 {
	return getCounterValue(m.paymentSubmissions, outcome)
}

// AccessDenials returns the cumulative count for a denial reason.
func (m *Metrics) AccessDenials(reason string) float64 {
	return getCounterValue(m.accessDenials, reason)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
