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

// InsertTaskHistory records a freshly submitted task.
func (db *DB) InsertTaskHistory(ctx context.Context, info *models.TaskInfo, taskType, taskParameters string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO task_history
			(task_id, title, status, progress, description, queue_type, scheduled_task_id, task_type, task_parameters, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.TaskID, info.Title, string(info.Status), info.Progress, info.Description,
		string(info.QueueType), nullString(info.ScheduledTaskID),
		nullString(taskType), nullString(taskParameters), info.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task history: %w", err)
	}
	return nil
}

// UpdateTaskState persists a status/progress transition. finishedAt is
// only written for terminal states.
func (db *DB) UpdateTaskState(ctx context.Context, taskID string, status models.TaskStatus, progress int, description string, finishedAt *time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE task_history
		 SET status = ?, progress = ?, description = ?, finished_at = COALESCE(?, finished_at)
		 WHERE task_id = ?`,
		string(status), progress, description, nullTime(finishedAt), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task state: %w", err)
	}
	return checkRowsAffected(result, "task not found")
}

// GetTaskInfo retrieves one task history row.
func (db *DB) GetTaskInfo(ctx context.Context, taskID string) (*models.TaskInfo, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT task_id, title, status, progress, description, queue_type, scheduled_task_id, created_at, finished_at
		 FROM task_history WHERE task_id = ?`, taskID)

	info, err := scanTaskInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return info, nil
}

// ListTasks returns a page of task history rows, newest first, with an
// optional status filter.
func (db *DB) ListTasks(ctx context.Context, status models.TaskStatus, offset, limit int) ([]models.TaskInfo, int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	where := ""
	args := []interface{}{}
	if status != "" {
		where = `WHERE status = ?`
		args = append(args, string(status))
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_history `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT task_id, title, status, progress, description, queue_type, scheduled_task_id, created_at, finished_at
		 FROM task_history `+where+`
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	list := []models.TaskInfo{}
	for rows.Next() {
		info, err := scanTaskInfoRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		list = append(list, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating tasks: %w", err)
	}
	return list, total, nil
}

// InterruptedTask is a running/paused row found at startup, together
// with its cached recovery parameters.
type InterruptedTask struct {
	Info           models.TaskInfo
	TaskType       string
	TaskParameters string
}

// FindInterruptedTasks returns tasks left in running or paused state by
// a previous process. Crash recovery marks them failed and may resubmit
// idempotent types.
func (db *DB) FindInterruptedTasks(ctx context.Context) ([]InterruptedTask, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT task_id, title, status, progress, description, queue_type, scheduled_task_id, created_at, finished_at,
		        task_type, task_parameters
		 FROM task_history
		 WHERE status IN (?, ?)`,
		string(models.TaskStatusRunning), string(models.TaskStatusPaused))
	if err != nil {
		return nil, fmt.Errorf("failed to query interrupted tasks: %w", err)
	}
	defer rows.Close()

	list := []InterruptedTask{}
	for rows.Next() {
		var it InterruptedTask
		var scheduledID, taskType, taskParameters sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&it.Info.TaskID, &it.Info.Title, &it.Info.Status, &it.Info.Progress,
			&it.Info.Description, &it.Info.QueueType, &scheduledID, &it.Info.CreatedAt, &finishedAt,
			&taskType, &taskParameters); err != nil {
			return nil, fmt.Errorf("failed to scan interrupted task: %w", err)
		}
		it.Info.ScheduledTaskID = scheduledID.String
		if finishedAt.Valid {
			it.Info.FinishedAt = &finishedAt.Time
		}
		it.TaskType = taskType.String
		it.TaskParameters = taskParameters.String
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interrupted tasks: %w", err)
	}
	return list, nil
}

// DeleteTaskHistory removes a task history row.
func (db *DB) DeleteTaskHistory(ctx context.Context, taskID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM task_history WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task history: %w", err)
	}
	return checkRowsAffected(result, "task not found")
}

type taskScanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskInfo(row *sql.Row) (*models.TaskInfo, error)      { return scanTaskInfoFrom(row) }
func scanTaskInfoRows(rows *sql.Rows) (*models.TaskInfo, error) { return scanTaskInfoFrom(rows) }

func scanTaskInfoFrom(s taskScanner) (*models.TaskInfo, error) {
	var info models.TaskInfo
	var scheduledID sql.NullString
	var finishedAt sql.NullTime

	err := s.Scan(&info.TaskID, &info.Title, &info.Status, &info.Progress,
		&info.Description, &info.QueueType, &scheduledID, &info.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	info.ScheduledTaskID = scheduledID.String
	if finishedAt.Valid {
		info.FinishedAt = &finishedAt.Time
	}
	return &info, nil
}
