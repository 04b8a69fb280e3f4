// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

/*
schema.go - Database Schema Management

Tables:
  - anime: canonical works; (title, season) unique
  - sources: provider bindings; (provider_name, media_id) unique
  - episodes: numbered units of a source; (source_id, episode_index) unique
  - comments: danmaku entries; (episode_id, cid) unique
  - settings: dynamic key/value configuration
  - cache_entries: TTL cache with optional provider tag
  - task_history: task manager history rows
  - rate_limit_state: fixed-window counters per provider plus __global__
  - api_tokens: player access tokens with daily counters
  - ua_rules: User-Agent allow/deny prefixes
  - webhook_tasks: delayed imports queued by webhook ingress

Integer IDs come from per-table sequences (DuckDB has no implicit
auto-increment). Uniqueness invariants live in the schema so repository
code can rely on conflict errors rather than read-then-write races.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables and sequences.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_anime_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_source_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_episode_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_token_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_ua_rule_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_webhook_task_id START 1`,

		`CREATE TABLE IF NOT EXISTS anime (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_anime_id'),
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			season INTEGER NOT NULL DEFAULT 1,
			year INTEGER,
			image_url TEXT,
			local_image_path TEXT,
			tmdb_id TEXT,
			imdb_id TEXT,
			tvdb_id TEXT,
			douban_id TEXT,
			bangumi_id TEXT,
			tmdb_episode_group_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (title, season)
		)`,

		`CREATE TABLE IF NOT EXISTS sources (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_source_id'),
			anime_id BIGINT NOT NULL,
			provider_name TEXT NOT NULL,
			media_id TEXT NOT NULL,
			is_favorited BOOLEAN NOT NULL DEFAULT FALSE,
			incremental_refresh_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (provider_name, media_id)
		)`,

		`CREATE TABLE IF NOT EXISTS episodes (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_episode_id'),
			source_id BIGINT NOT NULL,
			episode_index INTEGER NOT NULL,
			title TEXT NOT NULL,
			source_url TEXT,
			provider_episode_id TEXT NOT NULL,
			fetched_at TIMESTAMP,
			UNIQUE (source_id, episode_index)
		)`,

		`CREATE TABLE IF NOT EXISTS comments (
			episode_id BIGINT NOT NULL,
			cid TEXT NOT NULL,
			p TEXT NOT NULL,
			m TEXT NOT NULL,
			t DOUBLE NOT NULL,
			PRIMARY KEY (episode_id, cid)
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL,
			provider TEXT,
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS task_history (
			task_id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			queue_type TEXT NOT NULL,
			scheduled_task_id TEXT,
			task_type TEXT,
			task_parameters TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS rate_limit_state (
			provider_name TEXT PRIMARY KEY,
			request_count INTEGER NOT NULL DEFAULT 0,
			last_reset_time TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS api_tokens (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_token_id'),
			name TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP,
			daily_call_limit INTEGER NOT NULL DEFAULT -1,
			daily_count INTEGER NOT NULL DEFAULT 0,
			last_reset_date TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS ua_rules (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_ua_rule_id'),
			prefix TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS webhook_tasks (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_webhook_task_id'),
			service TEXT NOT NULL,
			provider_name TEXT NOT NULL,
			media_id TEXT NOT NULL,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			season INTEGER NOT NULL DEFAULT 1,
			episode_index INTEGER,
			fallback BOOLEAN NOT NULL DEFAULT FALSE,
			received_at TIMESTAMP NOT NULL,
			execute_at TIMESTAMP NOT NULL,
			submitted_at TIMESTAMP
		)`,
	}
}

// createIndexes creates indexes for frequent query patterns.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sources_anime ON sources (anime_id)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_source ON episodes (source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_episode_t ON comments (episode_id, t)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries (expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_provider ON cache_entries (provider)`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_status ON task_history (status)`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_created ON task_history (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_due ON webhook_tasks (execute_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
