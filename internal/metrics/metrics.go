package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPRequestSize       prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Feed metrics
	FeedGenerationTime  prometheus.HistogramVec
	FeedCandidatesTotal prometheus.HistogramVec

	// Topic discovery metrics
	TopicClusteringTime prometheus.HistogramVec
	TopicClustersFound  prometheus.GaugeVec

	// Moderation metrics
	ModerationDecisionsTotal prometheus.CounterVec
	ReputationEventsTotal    prometheus.CounterVec

	// Security metrics
	SecurityEventsTotal prometheus.CounterVec
	IPBlocksActive      prometheus.GaugeVec

	// External API metrics
	ExternalRequestDuration prometheus.HistogramVec
	ExternalRequestsTotal   prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Cache metrics
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),

			// Rate limiting metrics
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			// Feed metrics
			FeedGenerationTime: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_generation_duration_seconds",
					Help:    "Time to generate a feed in seconds",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"feed_type"},
			),
			FeedCandidatesTotal: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_candidates_total",
					Help:    "Number of candidate posts scored per feed request",
					Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
				},
				[]string{"feed_type"},
			),

			// Topic discovery metrics
			TopicClusteringTime: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "topic_clustering_duration_seconds",
					Help:    "Time to cluster recent posts into topics",
					Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"scope"},
			),
			TopicClustersFound: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "topic_clusters_found",
					Help: "Number of topic clusters in the latest aggregation",
				},
				[]string{"scope"},
			),

			// Moderation metrics
			ModerationDecisionsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moderation_decisions_total",
					Help: "Total number of content moderation decisions",
				},
				[]string{"decision", "content_type"},
			),
			ReputationEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reputation_events_total",
					Help: "Total number of reputation events applied",
				},
				[]string{"event_type"},
			),

			// Security metrics
			SecurityEventsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "security_events_total",
					Help: "Total number of security events recorded",
				},
				[]string{"event_type", "severity"},
			),
			IPBlocksActive: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "ip_blocks_active",
					Help: "Number of currently active IP blocks",
				},
				[]string{"reason"},
			),

			// External API metrics
			ExternalRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "external_request_duration_seconds",
					Help:    "External API request latency in seconds",
					Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"service", "operation"},
			),
			ExternalRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "external_requests_total",
					Help: "Total number of external API requests",
				},
				[]string{"service", "operation", "status"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
