// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API endpoint metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of inbound rate limit rejections",
		},
		[]string{"endpoint"},
	)

	TokenRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_token_rejections_total",
			Help: "Total number of rejected API token validations",
		},
		[]string{"reason"}, // invalid, disabled, expired, daily_limit, ua_blocked
	)

	// Provider fetch metrics.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of upstream provider HTTP requests",
		},
		[]string{"provider", "outcome"}, // outcome: success, error, breaker_open
	)

	ProviderFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_fetch_duration_seconds",
			Help:    "Duration of full comment fetches per provider",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	CommentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comments_fetched_total",
			Help: "Total number of raw comments fetched from providers",
		},
		[]string{"provider"},
	)

	ProviderRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_rate_limited_total",
			Help: "Total number of fetches deferred by the provider governor",
		},
		[]string{"provider"},
	)

	// Task metrics.
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_submitted_total",
			Help: "Total number of tasks accepted into the queues",
		},
		[]string{"queue"},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_finished_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"queue", "status"}, // status: completed, failed
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Wall time of task execution including pauses",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"queue"},
	)

	TaskQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "task_queue_depth",
			Help: "Current number of tasks waiting in each queue",
		},
		[]string{"queue"},
	)

	// Search pipeline metrics.
	SearchRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of provider search requests",
		},
	)

	SearchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_cache_hits_total",
			Help: "Total number of search cache hits",
		},
	)

	SearchCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_cache_misses_total",
			Help: "Total number of search cache misses",
		},
	)

	SearchFanOutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_fanout_duration_seconds",
			Help:    "Duration of the parallel provider search fan-out",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WebSocket metrics.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	// System metrics.
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderFetch records one full comment fetch against a provider.
func RecordProviderFetch(provider string, duration time.Duration, comments int, err error) {
	ProviderFetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		ProviderRequests.WithLabelValues(provider, "error").Inc()
		return
	}
	ProviderRequests.WithLabelValues(provider, "success").Inc()
	CommentsFetched.WithLabelValues(provider).Add(float64(comments))
}

// RecordTaskFinished records a task reaching a terminal state.
func RecordTaskFinished(queue, status string, duration time.Duration) {
	TasksFinished.WithLabelValues(queue, status).Inc()
	TaskDuration.WithLabelValues(queue).Observe(duration.Seconds())
}
