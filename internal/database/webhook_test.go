// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okanami/barrage/internal/models"
)

func enqueueTestWebhookTask(t *testing.T, db *DB, title string, executeAt time.Time) int64 {
	t.Helper()

	episode := 3
	id, err := db.EnqueueWebhookTask(context.Background(), &models.WebhookTask{
		Service:      "emby",
		ProviderName: "bilibili",
		MediaID:      "md1",
		Title:        title,
		Type:         models.MediaTypeTVSeries,
		Season:       1,
		EpisodeIndex: &episode,
		ReceivedAt:   time.Now(),
		ExecuteAt:    executeAt,
	})
	if err != nil {
		t.Fatalf("EnqueueWebhookTask() error = %v", err)
	}
	return id
}

func TestWebhookTaskDueSelection(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	dueID := enqueueTestWebhookTask(t, db, "due", now.Add(-time.Minute))
	enqueueTestWebhookTask(t, db, "future", now.Add(time.Hour))

	due, err := db.ListDueWebhookTasks(ctx, now)
	if err != nil {
		t.Fatalf("ListDueWebhookTasks() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != dueID {
		t.Fatalf("due tasks = %+v, want single %d", due, dueID)
	}
	if due[0].EpisodeIndex == nil || *due[0].EpisodeIndex != 3 {
		t.Errorf("EpisodeIndex = %v, want 3", due[0].EpisodeIndex)
	}

	pending, err := db.ListPendingWebhookTasks(ctx)
	if err != nil {
		t.Fatalf("ListPendingWebhookTasks() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending tasks = %d, want 2", len(pending))
	}
}

func TestMarkWebhookTaskSubmittedOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := enqueueTestWebhookTask(t, db, "due", time.Now().Add(-time.Minute))

	if err := db.MarkWebhookTaskSubmitted(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkWebhookTaskSubmitted() error = %v", err)
	}

	// A second submission attempt must fail so concurrent scheduler
	// passes cannot double-submit.
	if err := db.MarkWebhookTaskSubmitted(ctx, id, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkWebhookTaskSubmitted() repeat error = %v, want ErrNotFound", err)
	}

	due, err := db.ListDueWebhookTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListDueWebhookTasks() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("submitted task still listed as due: %+v", due)
	}
}

func TestDeleteWebhookTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := enqueueTestWebhookTask(t, db, "queued", time.Now().Add(time.Hour))

	if err := db.DeleteWebhookTask(ctx, id); err != nil {
		t.Fatalf("DeleteWebhookTask() error = %v", err)
	}
	if err := db.DeleteWebhookTask(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteWebhookTask() repeat error = %v, want ErrNotFound", err)
	}
}

func TestPruneSubmittedWebhookTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	oldID := enqueueTestWebhookTask(t, db, "old", time.Now().Add(-2*time.Hour))
	if err := db.MarkWebhookTaskSubmitted(ctx, oldID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("MarkWebhookTaskSubmitted() error = %v", err)
	}
	enqueueTestWebhookTask(t, db, "unsubmitted", time.Now().Add(-2*time.Hour))

	n, err := db.PruneSubmittedWebhookTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("PruneSubmittedWebhookTasks() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	pending, err := db.ListPendingWebhookTasks(ctx)
	if err != nil {
		t.Fatalf("ListPendingWebhookTasks() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("unsubmitted task was pruned: %d pending", len(pending))
	}
}
