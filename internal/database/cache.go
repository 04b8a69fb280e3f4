// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetCache stores a JSON value under key with a TTL. The optional
// provider tag enables bulk clearing by provider. Last writer wins.
func (db *DB) SetCache(ctx context.Context, key, valueJSON string, ttl time.Duration, provider string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	expires := time.Now().Add(ttl)
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, value_json, provider, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key, valueJSON, nullString(provider), expires)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// GetCache retrieves a cached JSON value. Returns ("", false, nil) when
// the key is absent or expired; expired rows are lazily deleted.
func (db *DB) GetCache(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var valueJSON string
	var expiresAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT value_json, expires_at FROM cache_entries WHERE key = ?`, key).
		Scan(&valueJSON, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if time.Now().After(expiresAt) {
		if _, err := db.conn.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return "", false, fmt.Errorf("failed to evict expired cache entry: %w", err)
		}
		return "", false, nil
	}
	return valueJSON, true, nil
}

// ClearAllCache drops every cache entry. Returns the deleted count.
func (db *DB) ClearAllCache(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// ClearCacheByProvider drops all entries tagged with a provider.
func (db *DB) ClearCacheByProvider(ctx context.Context, provider string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE provider = ?`, provider)
	if err != nil {
		return 0, fmt.Errorf("failed to clear provider cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
