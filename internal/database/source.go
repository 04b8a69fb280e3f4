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

// LinkSourceToAnime binds a provider media to a work, idempotently on
// (provider, mediaId). If the binding already exists under a different
// work, ErrConflict is returned.
func (db *DB) LinkSourceToAnime(ctx context.Context, animeID int64, providerName, mediaID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var existingID, existingAnimeID int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, anime_id FROM sources WHERE provider_name = ? AND media_id = ?`,
		providerName, mediaID).Scan(&existingID, &existingAnimeID)
	if err == nil {
		if existingAnimeID != animeID {
			return 0, fmt.Errorf("source (%s, %s) already linked to anime %d: %w",
				providerName, mediaID, existingAnimeID, ErrConflict)
		}
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up source: %w", err)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO sources (anime_id, provider_name, media_id) VALUES (?, ?, ?) RETURNING id`,
		animeID, providerName, mediaID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("source (%s, %s) already exists: %w", providerName, mediaID, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create source: %w", err)
	}
	return id, nil
}

// GetSource retrieves a source by ID.
func (db *DB) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var s models.Source
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		 FROM sources WHERE id = ?`, id).
		Scan(&s.ID, &s.AnimeID, &s.ProviderName, &s.MediaID, &s.IsFavorited, &s.IncrementalRefresh, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &s, nil
}

// FindSourceByMedia looks up a source by its provider binding.
// Returns nil when absent.
func (db *DB) FindSourceByMedia(ctx context.Context, providerName, mediaID string) (*models.Source, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var s models.Source
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		 FROM sources WHERE provider_name = ? AND media_id = ?`, providerName, mediaID).
		Scan(&s.ID, &s.AnimeID, &s.ProviderName, &s.MediaID, &s.IsFavorited, &s.IncrementalRefresh, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &s, nil
}

// ListSourcesByAnime returns all sources bound to a work.
func (db *DB) ListSourcesByAnime(ctx context.Context, animeID int64) ([]models.Source, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, anime_id, provider_name, media_id, is_favorited, incremental_refresh_enabled, created_at
		 FROM sources WHERE anime_id = ? ORDER BY created_at`, animeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	list := []models.Source{}
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.AnimeID, &s.ProviderName, &s.MediaID,
			&s.IsFavorited, &s.IncrementalRefresh, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return list, nil
}

// ToggleSourceFavorite flips a source's favorite flag. Favoriting a
// source demotes any other favorited source of the same work, keeping at
// most one favorite per work. Returns the new status.
func (db *DB) ToggleSourceFavorite(ctx context.Context, sourceID int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var animeID int64
	var current bool
	err = tx.QueryRowContext(ctx,
		`SELECT anime_id, is_favorited FROM sources WHERE id = ?`, sourceID).Scan(&animeID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up source: %w", err)
	}

	next := !current
	if next {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET is_favorited = FALSE WHERE anime_id = ? AND id <> ?`,
			animeID, sourceID); err != nil {
			return false, fmt.Errorf("failed to demote favorites: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sources SET is_favorited = ? WHERE id = ?`, next, sourceID); err != nil {
		return false, fmt.Errorf("failed to update favorite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return next, nil
}

// SetSourceIncrementalRefresh sets the incremental refresh flag.
func (db *DB) SetSourceIncrementalRefresh(ctx context.Context, sourceID int64, enabled bool) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE sources SET incremental_refresh_enabled = ? WHERE id = ?`, enabled, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return checkRowsAffected(result, "source not found")
}

// ClearSourceData removes a source's episodes and comments while
// preserving the source row itself. Used by full refresh.
func (db *DB) ClearSourceData(ctx context.Context, sourceID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := clearSourceDataTx(ctx, tx, sourceID); err != nil {
		return err
	}
	return tx.Commit()
}

// clearSourceDataTx is ClearSourceData inside an open transaction.
func clearSourceDataTx(ctx context.Context, tx *sql.Tx, sourceID int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE episode_id IN (SELECT id FROM episodes WHERE source_id = ?)`,
		sourceID); err != nil {
		return fmt.Errorf("failed to delete comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM episodes WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete episodes: %w", err)
	}
	return nil
}

// DeleteSource removes a source and cascades through its episodes and
// comments.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if err := clearSourceDataTx(ctx, tx, sourceID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if err := checkRowsAffected(result, "source not found"); err != nil {
		return err
	}

	return tx.Commit()
}
