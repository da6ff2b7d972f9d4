// Package metrics exposes Prometheus metrics for the adaptive response
// pipeline. Metrics are registered once at import time via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageLatency tracks the duration of each pipeline stage in seconds.
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "miga_pipeline_stage_latency_seconds",
			Help:    "The duration of each response pipeline stage in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// ClassifierTierCount tracks which classifier tier produced the result.
	ClassifierTierCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_classifier_tier_total",
			Help: "The total number of classifications per tier and emotion",
		},
		[]string{"tier", "emotion"},
	)

	// CrisisCount tracks detected crisis messages.
	CrisisCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "miga_crisis_detected_total",
			Help: "The total number of messages flagged by the crisis override",
		},
	)

	// CacheOperations tracks hit/miss per cache.
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_cache_operations_total",
			Help: "The total number of cache lookups by cache name and outcome",
		},
		[]string{"cache", "outcome"},
	)

	// SelectionCount tracks template selection by method.
	SelectionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_template_selection_total",
			Help: "The total number of template selections by method",
		},
		[]string{"method"},
	)

	// RetrievalResults tracks the number of knowledge chunks returned per query.
	RetrievalResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "miga_retrieval_results",
			Help:    "The number of knowledge chunks returned per retrieval query",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"backend"},
	)

	// HumanizerRuleApplied tracks humanizer rule applications.
	HumanizerRuleApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_humanizer_rule_applied_total",
			Help: "The total number of humanizer rule applications by rule",
		},
		[]string{"rule"},
	)

	// FeedbackCount tracks processed feedback events by outcome.
	FeedbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_feedback_events_total",
			Help: "The total number of feedback events by processing status",
		},
		[]string{"status"},
	)

	// TemplateDeactivations tracks templates auto-deactivated on negative signal.
	TemplateDeactivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "miga_template_deactivations_total",
			Help: "The total number of templates deactivated for sustained negative feedback",
		},
	)

	// RequestErrors tracks per-component recoverable errors.
	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miga_component_errors_total",
			Help: "The total number of recovered component errors by component and reason",
		},
		[]string{"component", "reason"},
	)
)

// RecordStageLatency records a stage duration in seconds.
func RecordStageLatency(stage string, seconds float64) {
	StageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordCacheOperation records a cache hit or miss.
func RecordCacheOperation(cache, outcome string) {
	CacheOperations.WithLabelValues(cache, outcome).Inc()
}

// RecordComponentError records a recovered component error.
func RecordComponentError(component, reason string) {
	RequestErrors.WithLabelValues(component, reason).Inc()
}
