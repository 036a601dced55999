// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query status label values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusCacheHit = "cache_hit"
	StatusNoResult = "no_result"
)

var (
	// QueryTotal counts RAG queries by outcome.
	QueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_query_total",
		Help: "Total number of RAG queries by status.",
	}, []string{"status"})

	// QueryDuration observes end-to-end query latency.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_query_duration_seconds",
		Help:    "End-to-end RAG query duration in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// RetrievalDuration observes the embed+search phase latency.
	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieval_duration_seconds",
		Help:    "Context retrieval duration in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// RetrievalResults observes how many chunks survive the threshold filter.
	RetrievalResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieval_results_count",
		Help:    "Number of context chunks returned per retrieval.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	// GenerationDuration observes LLM generation latency.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_llm_generation_duration_seconds",
		Help:    "LLM generation duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// CacheHitTotal counts result cache hits.
	CacheHitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_cache_hit_total",
		Help: "Total number of result cache hits.",
	})

	// CacheMissTotal counts result cache misses.
	CacheMissTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_cache_miss_total",
		Help: "Total number of result cache misses.",
	})

	// ErrorTotal counts internal errors by type.
	ErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_error_total",
		Help: "Total number of internal errors by type.",
	}, []string{"type"})
)

// Error type label values.
const (
	ErrTypeEmbedding  = "embedding"
	ErrTypeSearch     = "search"
	ErrTypeGeneration = "generation"
	ErrTypeCache      = "cache"
	ErrTypePanic      = "panic"
)
