package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_fetch_attempts_total",
		Help: "Fetch attempts per source by outcome",
	}, []string{"source", "outcome"})

	ItemsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_items_collected_total",
		Help: "Items collected per source",
	}, []string{"source"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_fetch_cache_hits_total",
		Help: "Sources served from the fetch cache",
	}, []string{"source"})

	DuplicatesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_duplicates_removed_total",
		Help: "Items removed by deduplication",
	}, []string{"stage"})

	QualityDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsdigest_quality_dropped_total",
		Help: "Items dropped by the quality filter",
	})

	EnrichmentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_enrichment_results_total",
		Help: "Per-item enrichment outcomes",
	}, []string{"outcome"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsdigest_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMCircuitBreakerOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsdigest_llm_circuit_breaker_opens_total",
		Help: "Times the LLM circuit breaker opened",
	})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_runs_total",
		Help: "Collection runs by status",
	}, []string{"status"})

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsdigest_run_duration_seconds",
		Help:    "Duration of a full collection run",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	DigestsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsdigest_digests_delivered_total",
		Help: "Digest deliveries by status",
	}, []string{"status"})
)
