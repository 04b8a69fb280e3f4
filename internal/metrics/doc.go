// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

/*
Package metrics provides Prometheus metrics collection and export.

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:7768/metrics

# Available Metrics

API metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: Active requests (gauge)
  - api_rate_limit_hits_total: Inbound throttle rejections (counter)
  - api_token_rejections_total: Failed token validations (counter)
    Labels: reason

Database metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
    Labels: operation, table

Provider metrics:
  - provider_requests_total: Upstream requests by outcome (counter)
    Labels: provider, outcome
  - provider_fetch_duration_seconds: Full comment fetch wall time (histogram)
    Labels: provider
  - comments_fetched_total: Raw comments fetched (counter)
    Labels: provider
  - provider_rate_limited_total: Fetches deferred by the governor (counter)
    Labels: provider

Task metrics:
  - tasks_submitted_total, tasks_finished_total, task_duration_seconds,
    task_queue_depth
    Labels: queue (and status on tasks_finished_total)

Search metrics:
  - search_requests_total, search_cache_hits_total,
    search_cache_misses_total, search_fanout_duration_seconds

WebSocket metrics:
  - websocket_connections, websocket_messages_sent_total

# Cardinality

Endpoint labels use the chi route pattern, never the raw URL, so path
parameters cannot explode the series count. Provider and queue label
sets are fixed at startup.

All recording functions are safe for concurrent use.
*/
package metrics
