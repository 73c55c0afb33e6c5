// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// IntentScores tracks the distribution of computed intent scores.
	IntentScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intent_score",
			Help:    "Distribution of purchase intent scores",
			Buckets: []float64{0, 10, 20, 30, 45, 60, 75, 85, 95, 100},
		},
	)

	// KnowledgeHits counts searches that returned at least one item.
	KnowledgeHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_search_hits_total",
			Help: "Knowledge searches returning results",
		},
	)

	// KnowledgeMisses counts searches that returned nothing.
	KnowledgeMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_search_misses_total",
			Help: "Knowledge searches returning no results",
		},
	)

	// KnowledgeRefreshFailures counts failed cache refreshes.
	KnowledgeRefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_refresh_failures_total",
			Help: "Knowledge cache refreshes that fell back to stale data",
		},
	)

	// CompletionDuration tracks completion service latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "completion_duration_seconds",
			Help:    "Completion service call duration",
			Buckets: []float64{.25, .5, 1, 2, 3, 5, 8, 13},
		},
		[]string{"provider", "status"},
	)

	// CompletionFallbacks counts completion failures recovered by the
	// template path.
	CompletionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_fallbacks_total",
			Help: "Completion failures recovered by template fallback",
		},
		[]string{"reason"},
	)

	// MessagesTotal tracks messages appended per role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total conversation messages appended",
		},
		[]string{"role"},
	)

	// PhaseTransitions tracks per-turn phase classifications.
	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phase_classifications_total",
			Help: "Per-turn sales phase classifications",
		},
		[]string{"phase"},
	)

	// PurchaseTriggers counts replies that triggered a purchase.
	PurchaseTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_triggers_total",
			Help: "Replies that triggered the purchase flow",
		},
	)

	// CartMutations tracks cart operations.
	CartMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation",
		},
		[]string{"op"},
	)

	// SessionsActive tracks sessions held in the in-memory cache.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_cached",
			Help: "Sessions currently held in the in-memory cache",
		},
	)

	// PersistenceRetries counts background persistence reattempts.
	PersistenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "persistence_retries_total",
			Help: "Background persistence write reattempts",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for a completion service call.
func RecordCompletion(provider, status string, duration float64) {
	CompletionDuration.WithLabelValues(provider, status).Observe(duration)
}
