// Package metrics holds the Prometheus instruments exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipulse_articles_collected_total",
			Help: "Articles returned by collectors",
		},
		[]string{"source"},
	)

	CollectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipulse_collect_errors_total",
			Help: "Collector or store failures during collection",
		},
		[]string{"source"},
	)

	// TrendingRequests counts trending lookups by outcome: cache_hit, computed, refine_failed.
	TrendingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipulse_trending_requests_total",
			Help: "Trending topic lookups by outcome",
		},
		[]string{"outcome"},
	)

	TrendingTopics = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aipulse_trending_topics",
			Help: "Topics in the most recently computed trending list",
		},
	)

	// GraphRelations counts relation upserts by outcome: inserted, reinforced, skipped.
	GraphRelations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipulse_graph_relations_total",
			Help: "Knowledge graph relation upserts by outcome",
		},
		[]string{"outcome"},
	)

	GraphEntitiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aipulse_graph_entities_created_total",
			Help: "Knowledge graph entities created",
		},
	)

	// ReviewsRecorded counts reviews by outcome: pass, lapse.
	ReviewsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aipulse_reviews_total",
			Help: "Spaced-repetition reviews by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aipulse_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
