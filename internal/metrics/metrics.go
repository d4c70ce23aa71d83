// Package metrics provides Prometheus metrics for postraft-facade.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"postraft-facade/internal/cache"
	"postraft-facade/internal/client"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/resilience"
)

const namespace = "postraft"

// Metrics holds every collector the facade exports. It satisfies
// cache.Metrics and client.RequestObserver.
type Metrics struct {
	// CacheLookups counts cache reads by resource and result (hit, miss).
	CacheLookups *prometheus.CounterVec
	// CacheFetches counts network fetches by resource and outcome.
	CacheFetches *prometheus.CounterVec
	// CacheFetchDuration measures fetch latency including retries.
	CacheFetchDuration *prometheus.HistogramVec
	// CacheInvalidations counts entries marked stale.
	CacheInvalidations *prometheus.CounterVec
	// CacheEvictions counts dropped entries by reason.
	CacheEvictions *prometheus.CounterVec
	// APIRequests counts outbound requests by method, resource and status.
	APIRequests *prometheus.CounterVec
	// APIRequestDuration measures outbound request latency.
	APIRequestDuration *prometheus.HistogramVec
	// SessionTransitions counts session state changes.
	SessionTransitions *prometheus.CounterVec
	// CircuitState is the API circuit breaker state (0 closed, 1 open, 2 half-open).
	CircuitState prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups",
			},
			[]string{"resource", "result"},
		),
		CacheFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_fetches_total",
				Help:      "Total number of cache fetches against the API",
			},
			[]string{"resource", "outcome"},
		),
		CacheFetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_fetch_duration_seconds",
				Help:      "Duration of cache fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		CacheInvalidations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Total number of invalidated cache entries",
			},
			[]string{"resource"},
		),
		CacheEvictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of evicted cache entries",
			},
			[]string{"reason"},
		),
		APIRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of requests sent to the Postraft API",
			},
			[]string{"method", "resource", "status"},
		),
		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of requests to the Postraft API in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "resource"},
		),
		SessionTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),
		CircuitState: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "api_circuit_state",
				Help:      "API circuit breaker state (0 = closed, 1 = open, 2 = half-open)",
			},
		),
	}
}

func (m *Metrics) Hit(resource string) {
	m.CacheLookups.WithLabelValues(resource, "hit").Inc()
}

func (m *Metrics) Miss(resource string) {
	m.CacheLookups.WithLabelValues(resource, "miss").Inc()
}

func (m *Metrics) Fetched(resource string, elapsed time.Duration, err error) {
	m.CacheFetches.WithLabelValues(resource, outcome(err)).Inc()
	m.CacheFetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

func (m *Metrics) Invalidated(resource string) {
	m.CacheInvalidations.WithLabelValues(resource).Inc()
}

func (m *Metrics) Evicted(reason string) {
	m.CacheEvictions.WithLabelValues(reason).Inc()
}

// ObserveRequest records one outbound request. status 0 means no response.
func (m *Metrics) ObserveRequest(method, resource string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, resource, label).Inc()
	m.APIRequestDuration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// SessionTransition records a session state change.
func (m *Metrics) SessionTransition(from, to domain.SessionState) {
	m.SessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// SetCircuitState mirrors the breaker state into the gauge.
func (m *Metrics) SetCircuitState(state resilience.CircuitState) {
	m.CircuitState.Set(float64(state))
}

// outcome maps a fetch error to a bounded label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind.String()
	}
	return "error"
}

var (
	_ cache.Metrics          = (*Metrics)(nil)
	_ client.RequestObserver = (*Metrics)(nil)
)
