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

	"github.com/okanami/barrage/internal/models"
)

// GlobalRateLimitKey is the provider_name of the process-wide counter.
const GlobalRateLimitKey = "__global__"

// MutateRateLimitState runs fn over the counter row for providerName
// inside a single transaction, creating the row first if absent. fn
// receives the current state and returns the state to persist, so
// window-reset and increment decisions happen under the transaction.
func (db *DB) MutateRateLimitState(ctx context.Context, providerName string, fn func(state *models.RateLimitState) error) (*models.RateLimitState, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	state := &models.RateLimitState{ProviderName: providerName}
	err = tx.QueryRowContext(ctx,
		`SELECT request_count, last_reset_time FROM rate_limit_state WHERE provider_name = ?`,
		providerName).Scan(&state.RequestCount, &state.LastResetTime)
	if errors.Is(err, sql.ErrNoRows) {
		state.RequestCount = 0
		state.LastResetTime = time.Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_state (provider_name, request_count, last_reset_time)
			 VALUES (?, ?, ?)`,
			providerName, state.RequestCount, state.LastResetTime); err != nil {
			return nil, fmt.Errorf("failed to create rate limit state: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read rate limit state: %w", err)
	}

	if err := fn(state); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rate_limit_state SET request_count = ?, last_reset_time = ? WHERE provider_name = ?`,
		state.RequestCount, state.LastResetTime, providerName); err != nil {
		return nil, fmt.Errorf("failed to update rate limit state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rate limit state: %w", err)
	}
	return state, nil
}

// ListRateLimitStates returns every counter row, global first.
func (db *DB) ListRateLimitStates(ctx context.Context) ([]models.RateLimitState, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider_name, request_count, last_reset_time
		 FROM rate_limit_state
		 ORDER BY CASE WHEN provider_name = ? THEN 0 ELSE 1 END, provider_name`,
		GlobalRateLimitKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit states: %w", err)
	}
	defer rows.Close()

	list := []models.RateLimitState{}
	for rows.Next() {
		var s models.RateLimitState
		if err := rows.Scan(&s.ProviderName, &s.RequestCount, &s.LastResetTime); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit state: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate limit states: %w", err)
	}
	return list, nil
}

// ResetRateLimitStates zeroes every counter and stamps a fresh window.
func (db *DB) ResetRateLimitStates(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE rate_limit_state SET request_count = 0, last_reset_time = ?`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reset rate limit states: %w", err)
	}
	return nil
}
