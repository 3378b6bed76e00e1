package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authorization outcomes
const (
	OutcomeApproved            = "approved"
	OutcomeRejectedControl     = "rejected_control"
	OutcomeRejectedBalance     = "rejected_balance"
	OutcomeRejectedCardMissing = "rejected_card_not_found"
	OutcomeError               = "error"
)

// Cache names used as the "cache" label
const (
	CacheCards           = "card"
	CacheGroupedControls = "group_control"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry           *prometheus.Registry
	authorizations     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	cacheLookups       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry, together with the
// Go runtime and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_control",
			Name:      "authorizations_total",
			Help:      "Transaction authorization attempts by outcome.",
		}, []string{"outcome"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "card_control",
			Name:      "control_evaluation_seconds",
			Help:      "Time spent evaluating a card's controls against a transaction.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_control",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result (hit or miss).",
		}, []string{"cache", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_control",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
	}
	m.registry.MustRegister(
		m.authorizations,
		m.evaluationDuration,
		m.cacheLookups,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordAuthorization counts one authorization attempt
func (m *Metrics) RecordAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.authorizations.WithLabelValues(outcome).Inc()
}

// ObserveEvaluation records how long control evaluation took
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordHTTPRequest counts a served request
func (m *Metrics) RecordHTTPRequest(route, method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
