// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okanami/barrage/internal/models"
)

// EnqueueWebhookTask persists a delayed import queued by webhook ingress.
func (db *DB) EnqueueWebhookTask(ctx context.Context, task *models.WebhookTask) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var episodeIndex sql.NullInt32
	if task.EpisodeIndex != nil {
		episodeIndex = sql.NullInt32{Int32: int32(*task.EpisodeIndex), Valid: true}
	}

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO webhook_tasks
			(service, provider_name, media_id, title, type, season, episode_index, fallback, received_at, execute_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		task.Service, task.ProviderName, task.MediaID, task.Title, string(task.Type),
		task.Season, episodeIndex, task.Fallback, task.ReceivedAt, task.ExecuteAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue webhook task: %w", err)
	}
	return id, nil
}

// ListDueWebhookTasks returns unsubmitted tasks whose execute_at has
// passed, oldest first.
func (db *DB) ListDueWebhookTasks(ctx context.Context, now time.Time) ([]models.WebhookTask, error) {
	return db.listWebhookTasks(ctx,
		`WHERE submitted_at IS NULL AND execute_at <= ? ORDER BY execute_at, id`, now)
}

// ListPendingWebhookTasks returns every unsubmitted task regardless of
// due time, soonest first.
func (db *DB) ListPendingWebhookTasks(ctx context.Context) ([]models.WebhookTask, error) {
	return db.listWebhookTasks(ctx,
		`WHERE submitted_at IS NULL ORDER BY execute_at, id`)
}

func (db *DB) listWebhookTasks(ctx context.Context, clause string, args ...interface{}) ([]models.WebhookTask, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, service, provider_name, media_id, title, type, season, episode_index, fallback,
		        received_at, execute_at, submitted_at
		 FROM webhook_tasks `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook tasks: %w", err)
	}
	defer rows.Close()

	list := []models.WebhookTask{}
	for rows.Next() {
		var t models.WebhookTask
		var episodeIndex sql.NullInt32
		var submittedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Service, &t.ProviderName, &t.MediaID, &t.Title, &t.Type,
			&t.Season, &episodeIndex, &t.Fallback, &t.ReceivedAt, &t.ExecuteAt, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook task: %w", err)
		}
		if episodeIndex.Valid {
			idx := int(episodeIndex.Int32)
			t.EpisodeIndex = &idx
		}
		if submittedAt.Valid {
			t.SubmittedAt = &submittedAt.Time
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook tasks: %w", err)
	}
	return list, nil
}

// MarkWebhookTaskSubmitted stamps a task as handed to the task manager,
// but only if it is still unsubmitted. Returns ErrNotFound when the row
// is gone or already submitted, so concurrent scheduler passes cannot
// double-submit.
func (db *DB) MarkWebhookTaskSubmitted(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE webhook_tasks SET submitted_at = ? WHERE id = ? AND submitted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook task submitted: %w", err)
	}
	return checkRowsAffected(result, "webhook task not found or already submitted")
}

// DeleteWebhookTask removes a queued task before submission.
func (db *DB) DeleteWebhookTask(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM webhook_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook task: %w", err)
	}
	return checkRowsAffected(result, "webhook task not found")
}

// PruneSubmittedWebhookTasks deletes submitted rows older than cutoff.
func (db *DB) PruneSubmittedWebhookTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM webhook_tasks WHERE submitted_at IS NOT NULL AND submitted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
