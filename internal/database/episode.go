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

// CreateEpisodeIfNotExists returns the episode at (sourceID, index),
// creating it if absent. Existing rows are left untouched.
func (db *DB) CreateEpisodeIfNotExists(ctx context.Context, sourceID int64, episodeIndex int, title, sourceURL, providerEpisodeID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM episodes WHERE source_id = ? AND episode_index = ?`,
		sourceID, episodeIndex).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up episode: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO episodes (source_id, episode_index, title, source_url, provider_episode_id)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		sourceID, episodeIndex, title, nullString(sourceURL), providerEpisodeID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			if lookupErr := db.conn.QueryRowContext(ctx,
				`SELECT id FROM episodes WHERE source_id = ? AND episode_index = ?`,
				sourceID, episodeIndex).Scan(&id); lookupErr == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("failed to create episode: %w", err)
	}
	return id, nil
}

// GetEpisode retrieves an episode by ID.
func (db *DB) GetEpisode(ctx context.Context, id int64) (*models.Episode, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var e models.Episode
	var sourceURL sql.NullString
	var fetchedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, source_id, episode_index, title, source_url, provider_episode_id, fetched_at
		 FROM episodes WHERE id = ?`, id).
		Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &sourceURL, &e.ProviderEpisodeID, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan episode: %w", err)
	}
	e.SourceURL = sourceURL.String
	if fetchedAt.Valid {
		e.FetchedAt = &fetchedAt.Time
	}
	return &e, nil
}

// ListEpisodesBySource returns a source's episodes ordered by index,
// each annotated with its comment count.
func (db *DB) ListEpisodesBySource(ctx context.Context, sourceID int64) ([]models.Episode, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT e.id, e.source_id, e.episode_index, e.title, e.source_url, e.provider_episode_id, e.fetched_at,
		        COUNT(c.cid) AS comment_count
		 FROM episodes e
		 LEFT JOIN comments c ON c.episode_id = e.id
		 WHERE e.source_id = ?
		 GROUP BY e.id, e.source_id, e.episode_index, e.title, e.source_url, e.provider_episode_id, e.fetched_at
		 ORDER BY e.episode_index`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	list := []models.Episode{}
	for rows.Next() {
		var e models.Episode
		var sourceURL sql.NullString
		var fetchedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.SourceID, &e.EpisodeIndex, &e.Title, &sourceURL,
			&e.ProviderEpisodeID, &fetchedAt, &e.CommentCount); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		e.SourceURL = sourceURL.String
		if fetchedAt.Valid {
			e.FetchedAt = &fetchedAt.Time
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episodes: %w", err)
	}
	return list, nil
}

// MarkEpisodeFetched stamps the episode's last fetch time.
func (db *DB) MarkEpisodeFetched(ctx context.Context, episodeID int64, at time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE episodes SET fetched_at = ? WHERE id = ?`, at, episodeID)
	if err != nil {
		return fmt.Errorf("failed to mark episode fetched: %w", err)
	}
	return checkRowsAffected(result, "episode not found")
}

// ReindexEpisodes reassigns episode_index = 1..n over a source's
// episodes in their current index order. Idempotent. The two-phase
// update (offset to a high range first) avoids transient collisions with
// the (source_id, episode_index) uniqueness constraint.
func (db *DB) ReindexEpisodes(ctx context.Context, sourceID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM episodes WHERE source_id = ? ORDER BY episode_index`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to query episodes: %w", err)
	}
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			closeQuietly(rows)
			return fmt.Errorf("failed to scan episode id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return fmt.Errorf("error iterating episodes: %w", err)
	}
	closeQuietly(rows)

	if _, err := tx.ExecContext(ctx,
		`UPDATE episodes SET episode_index = episode_index + 1000000 WHERE source_id = ?`,
		sourceID); err != nil {
		return fmt.Errorf("failed to stage reindex: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET episode_index = ? WHERE id = ?`, i+1, id); err != nil {
			return fmt.Errorf("failed to reindex episode %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// OffsetEpisodes shifts episode_index by offset for the given episode
// IDs. Callers must pre-validate that no resulting index drops below 1;
// the shift is still checked here before any write.
func (db *DB) OffsetEpisodes(ctx context.Context, episodeIDs []int64, offset int) error {
	if len(episodeIDs) == 0 || offset == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	minIndex, err := minEpisodeIndexTx(ctx, tx, episodeIDs)
	if err != nil {
		return err
	}
	if minIndex+offset < 1 {
		return fmt.Errorf("offset would make minimum episode index %d: %w", minIndex+offset, ErrConflict)
	}

	// Stage through a high range so intermediate states never collide
	// with the uniqueness constraint.
	for _, id := range episodeIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET episode_index = episode_index + 1000000 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to stage offset for episode %d: %w", id, err)
		}
	}
	for _, id := range episodeIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET episode_index = episode_index - 1000000 + ? WHERE id = ?`, offset, id); err != nil {
			return fmt.Errorf("failed to offset episode %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// MinEpisodeIndex returns the smallest episode_index among the given
// episode IDs. Used to pre-validate offsets before a task is enqueued.
func (db *DB) MinEpisodeIndex(ctx context.Context, episodeIDs []int64) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	min, err := minEpisodeIndexTx(ctx, tx, episodeIDs)
	if err != nil {
		return 0, err
	}
	return min, tx.Commit()
}

func minEpisodeIndexTx(ctx context.Context, tx *sql.Tx, episodeIDs []int64) (int, error) {
	query := `SELECT MIN(episode_index) FROM episodes WHERE id IN (`
	args := make([]interface{}, 0, len(episodeIDs))
	for i, id := range episodeIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"

	var min sql.NullInt32
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&min); err != nil {
		return 0, fmt.Errorf("failed to compute minimum episode index: %w", err)
	}
	if !min.Valid {
		return 0, fmt.Errorf("no matching episodes: %w", ErrNotFound)
	}
	return int(min.Int32), nil
}

// DeleteEpisode removes an episode and its comments.
func (db *DB) DeleteEpisode(ctx context.Context, episodeID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE episode_id = ?`, episodeID); err != nil {
		return fmt.Errorf("failed to delete comments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, episodeID)
	if err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	if err := checkRowsAffected(result, "episode not found"); err != nil {
		return err
	}

	return tx.Commit()
}
