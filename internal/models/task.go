// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package models

import "time"

// TaskStatus is the lifecycle state of a task history row.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// QueueType selects which of the three task queues a task runs on.
type QueueType string

const (
	// QueueDownload serves tasks dominated by outbound HTTP fetches
	// (imports, refreshes).
	QueueDownload QueueType = "download"

	// QueueManagement serves intra-database mutations. Never blocked by
	// slow providers.
	QueueManagement QueueType = "management"

	// QueueFallback serves low-priority best-effort auto-imports.
	QueueFallback QueueType = "fallback"
)

// TaskInfo is one task history row.
type TaskInfo struct {
	TaskID          string     `json:"taskId"`
	Title           string     `json:"title"`
	Status          TaskStatus `json:"status"`
	Progress        int        `json:"progress"`
	Description     string     `json:"description"`
	QueueType       QueueType  `json:"queueType"`
	ScheduledTaskID string     `json:"scheduledTaskId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// TaskEvent is published on the task event bus whenever a task's status
// or progress changes. The websocket hub relays it to connected clients.
type TaskEvent struct {
	TaskID      string     `json:"taskId"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
}
