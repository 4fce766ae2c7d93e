// Package metrics holds the Prometheus collectors for the pipeline and ingestion.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "insightbot"

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Workflow stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	StageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Workflow stage executions by outcome",
		},
		[]string{"stage", "status"}, // "success" / "error"
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallbacks_total",
			Help:      "LLM calls that were replaced by a deterministic fallback",
		},
		[]string{"stage"},
	)

	EvaluationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Overall evaluation score of answered queries",
			Buckets:   []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
		},
	)

	DocumentsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents successfully ingested",
		},
	)

	ChunksIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks inserted into the similarity index",
		},
	)

	IngestFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Failed ingestions by reason",
		},
		[]string{"reason"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StageDuration,
			StageRunsTotal,
			FallbacksTotal,
			EvaluationScore,
			DocumentsIngestedTotal,
			ChunksIngestedTotal,
			IngestFailuresTotal,
			EmbeddingCacheTotal,
		)
	})
}
