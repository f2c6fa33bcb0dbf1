// Package metrics provides Prometheus metrics for the trends pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trends"

var (
	// FetchTotal counts feed fetches by outcome.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Total number of feed fetches",
		},
		[]string{"status"},
	)

	// IngestedTrends counts trends seen during ingestion by result.
	IngestedTrends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_trends_total",
			Help:      "Trends processed during ingestion",
		},
		[]string{"result"},
	)

	// IngestedNewsItems counts persisted news items.
	IngestedNewsItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_news_items_total",
			Help:      "News items persisted during ingestion",
		},
	)

	// QueueTransitions counts queue item state changes.
	QueueTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_transitions_total",
			Help:      "Enrichment queue state transitions",
		},
		[]string{"to"},
	)

	// GenerationDuration measures text generation calls.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of text generation calls in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"model", "status"},
	)

	// EnrichmentResults counts per-trend enrichment outcomes.
	EnrichmentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_results_total",
			Help:      "Per-trend enrichment outcomes",
		},
		[]string{"status"},
	)
)

// RecordIngest adds one ingestion run summary.
func RecordIngest(created, skipped, failed, newsItems int) {
	IngestedTrends.WithLabelValues("created").Add(float64(created))
	IngestedTrends.WithLabelValues("skipped").Add(float64(skipped))
	IngestedTrends.WithLabelValues("failed").Add(float64(failed))
	IngestedNewsItems.Add(float64(newsItems))
}

// RecordTransition records count items moving to state.
func RecordTransition(state string, count int) {
	if count <= 0 {
		return
	}
	QueueTransitions.WithLabelValues(state).Add(float64(count))
}

// RecordGeneration records one generation call.
func RecordGeneration(model string, ok bool, seconds float64) {
	GenerationDuration.WithLabelValues(model, status(ok)).Observe(seconds)
}

// RecordEnrichment records one per-trend outcome.
func RecordEnrichment(ok bool) {
	EnrichmentResults.WithLabelValues(status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
