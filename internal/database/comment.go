// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"fmt"

	"github.com/okanami/barrage/internal/models"
)

// BulkInsertComments inserts a batch of comments for an episode,
// skipping rows whose (episode_id, cid) already exists. Returns the
// number of newly inserted rows. Calling it twice with the same payload
// inserts zero rows the second time.
func (db *DB) BulkInsertComments(ctx context.Context, episodeID int64, comments []models.Comment) (int, error) {
	if len(comments) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO comments (episode_id, cid, p, m, t)
		 SELECT ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM comments WHERE episode_id = ? AND cid = ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	inserted := 0
	for _, c := range comments {
		result, err := stmt.ExecContext(ctx, episodeID, c.CID, c.P, c.M, c.T, episodeID, c.CID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert comment %s: %w", c.CID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit comments: %w", err)
	}
	return inserted, nil
}

// GetExistingCommentCIDs returns the set of cids already stored for an
// episode. Used by incremental refresh to diff against a fresh fetch.
func (db *DB) GetExistingCommentCIDs(ctx context.Context, episodeID int64) (map[string]struct{}, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT cid FROM comments WHERE episode_id = ?`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment cids: %w", err)
	}
	defer rows.Close()

	cids := map[string]struct{}{}
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("failed to scan cid: %w", err)
		}
		cids[cid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cids: %w", err)
	}
	return cids, nil
}

// CountComments returns the number of comments stored for an episode.
func (db *DB) CountComments(ctx context.Context, episodeID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE episode_id = ?`, episodeID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return total, nil
}

// ListComments returns a page of an episode's comments ordered by
// playback time. A limit of 0 returns all comments.
func (db *DB) ListComments(ctx context.Context, episodeID int64, offset, limit int) ([]models.Comment, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT cid, episode_id, p, m, t FROM comments WHERE episode_id = ? ORDER BY t, cid`
	args := []interface{}{episodeID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	list := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.CID, &c.EpisodeID, &c.P, &c.M, &c.T); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return list, nil
}
