// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
)

// handleListTasks lists task history, optionally filtered by status.
func (rt *Router) handleListTasks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := models.TaskStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", models.TaskStatusPending, models.TaskStatusRunning, models.TaskStatusPaused,
		models.TaskStatusCompleted, models.TaskStatusFailed:
	default:
		rw.BadRequest("unknown status filter")
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := rt.db.ListTasks(r.Context(), status, offset, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if tasks == nil {
		tasks = []models.TaskInfo{}
	}

	rw.SuccessWithPagination(tasks, &PaginationMeta{
		Total:   total,
		Count:   len(tasks),
		Offset:  offset,
		Limit:   limit,
		HasMore: int64(offset+len(tasks)) < total,
	})
}

// handlePauseTask pauses a running task at its next checkpoint.
func (rt *Router) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	taskID := pathParam(r, "taskId")
	if err := rt.manager.Pause(r.Context(), taskID); err != nil {
		rw.NotFound("task is not active: " + err.Error())
		return
	}
	rw.Success(map[string]string{"taskId": taskID, "status": string(models.TaskStatusPaused)})
}

// handleResumeTask resumes a paused task.
func (rt *Router) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	taskID := pathParam(r, "taskId")
	if err := rt.manager.Resume(r.Context(), taskID); err != nil {
		rw.NotFound("task is not active: " + err.Error())
		return
	}
	rw.Success(map[string]string{"taskId": taskID, "status": string(models.TaskStatusRunning)})
}

// handleAbortTask aborts a task; ?force=true cancels the body context
// immediately instead of waiting for the next checkpoint.
func (rt *Router) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	taskID := pathParam(r, "taskId")
	abort := rt.manager.Abort
	if r.URL.Query().Get("force") == "true" {
		abort = rt.manager.ForceAbort
	}

	if err := abort(r.Context(), taskID); err != nil {
		rw.NotFound("task is not active: " + err.Error())
		return
	}
	rw.Success(map[string]string{"taskId": taskID})
}

// handleDeleteTask removes a finished task's history row. Active rows
// must be aborted first.
func (rt *Router) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	taskID := pathParam(r, "taskId")
	info, err := rt.db.GetTaskInfo(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("task not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	switch info.Status {
	case models.TaskStatusPending, models.TaskStatusRunning, models.TaskStatusPaused:
		rw.Conflict("task is still active, abort it first")
		return
	}

	if err := rt.db.DeleteTaskHistory(r.Context(), taskID); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]string{"taskId": taskID})
}

// handleRateLimitStatus reports the provider governor's window state.
// Reading advances the window without consuming quota.
func (rt *Router) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status, err := rt.limiter.Status(r.Context())
	if err != nil {
		rw.InternalError("failed to read rate limit status: " + err.Error())
		return
	}
	rw.Success(status)
}
