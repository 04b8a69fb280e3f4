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

	"github.com/okanami/barrage/internal/models"
)

// CreateAPIToken inserts a new player access token. Returns ErrConflict
// when the token string is already taken.
func (db *DB) CreateAPIToken(ctx context.Context, token *models.APIToken) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO api_tokens (name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		token.Name, token.Token, token.Enabled, nullTime(token.ExpiresAt),
		token.DailyCallLimit, token.DailyCount, token.LastResetDate).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("token already exists: %w", ErrConflict)
		}
		return 0, fmt.Errorf("failed to create token: %w", err)
	}
	return id, nil
}

// GetAPIToken retrieves a token row by its token string.
func (db *DB) GetAPIToken(ctx context.Context, token string) (*models.APIToken, error) {
	return db.getToken(ctx, `WHERE token = ?`, token)
}

// GetAPITokenByID retrieves a token row by ID.
func (db *DB) GetAPITokenByID(ctx context.Context, id int64) (*models.APIToken, error) {
	return db.getToken(ctx, `WHERE id = ?`, id)
}

func (db *DB) getToken(ctx context.Context, where string, arg interface{}) (*models.APIToken, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var t models.APIToken
	var expiresAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date, created_at
		 FROM api_tokens `+where, arg).
		Scan(&t.ID, &t.Name, &t.Token, &t.Enabled, &expiresAt,
			&t.DailyCallLimit, &t.DailyCount, &t.LastResetDate, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	return &t, nil
}

// ListAPITokens returns all tokens, newest first.
func (db *DB) ListAPITokens(ctx context.Context) ([]models.APIToken, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date, created_at
		 FROM api_tokens ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	list := []models.APIToken{}
	for rows.Next() {
		var t models.APIToken
		var expiresAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Name, &t.Token, &t.Enabled, &expiresAt,
			&t.DailyCallLimit, &t.DailyCount, &t.LastResetDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if expiresAt.Valid {
			t.ExpiresAt = &expiresAt.Time
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return list, nil
}

// SetAPITokenEnabled toggles a token on or off.
func (db *DB) SetAPITokenEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE api_tokens SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return checkRowsAffected(result, "token not found")
}

// ConsumeTokenCall increments a token's daily counter, resetting it
// first when the stored reset date differs from today. Returns the
// updated row so the caller can enforce the daily cap. The read, reset
// and increment happen in one transaction.
func (db *DB) ConsumeTokenCall(ctx context.Context, id int64, today string) (*models.APIToken, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var t models.APIToken
	var expiresAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, token, enabled, expires_at, daily_call_limit, daily_count, last_reset_date, created_at
		 FROM api_tokens WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Token, &t.Enabled, &expiresAt,
			&t.DailyCallLimit, &t.DailyCount, &t.LastResetDate, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}

	if t.LastResetDate != today {
		t.DailyCount = 0
		t.LastResetDate = today
	}
	t.DailyCount++

	if _, err := tx.ExecContext(ctx,
		`UPDATE api_tokens SET daily_count = ?, last_reset_date = ? WHERE id = ?`,
		t.DailyCount, t.LastResetDate, id); err != nil {
		return nil, fmt.Errorf("failed to update token counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token counter: %w", err)
	}
	return &t, nil
}

// ResetTokenCounter zeroes one token's daily counter and stamps today.
func (db *DB) ResetTokenCounter(ctx context.Context, id int64, today string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE api_tokens SET daily_count = 0, last_reset_date = ? WHERE id = ?`,
		today, id)
	if err != nil {
		return fmt.Errorf("failed to reset token counter: %w", err)
	}
	return checkRowsAffected(result, "token not found")
}

// ResetTokenCounters zeroes every daily counter and stamps today. Run
// by the midnight maintenance sweep.
func (db *DB) ResetTokenCounters(ctx context.Context, today string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE api_tokens SET daily_count = 0, last_reset_date = ?`, today)
	if err != nil {
		return fmt.Errorf("failed to reset token counters: %w", err)
	}
	return nil
}

// DeleteAPIToken removes a token.
func (db *DB) DeleteAPIToken(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return checkRowsAffected(result, "token not found")
}

// CreateUARule inserts a User-Agent filter rule.
func (db *DB) CreateUARule(ctx context.Context, prefix string, mode models.UARuleMode) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO ua_rules (prefix, mode) VALUES (?, ?) RETURNING id`,
		prefix, string(mode)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create ua rule: %w", err)
	}
	return id, nil
}

// ListUARules returns all User-Agent rules in insertion order.
func (db *DB) ListUARules(ctx context.Context) ([]models.UARule, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, prefix, mode, created_at FROM ua_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ua rules: %w", err)
	}
	defer rows.Close()

	list := []models.UARule{}
	for rows.Next() {
		var r models.UARule
		if err := rows.Scan(&r.ID, &r.Prefix, &r.Mode, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ua rule: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ua rules: %w", err)
	}
	return list, nil
}

// DeleteUARule removes a User-Agent rule.
func (db *DB) DeleteUARule(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM ua_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ua rule: %w", err)
	}
	return checkRowsAffected(result, "ua rule not found")
}
