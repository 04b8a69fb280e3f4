// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/settings"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
)

var testDBSemaphore = make(chan struct{}, 1)

func setupScheduler(t *testing.T) (*Scheduler, *database.DB, *settings.Service) {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := settings.NewService(db)
	bus := task.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	manager := task.NewManager(db, bus, nil)

	deps := jobs.Deps{
		DB:        db,
		Settings:  svc,
		Providers: provider.NewRegistry(svc),
		Limiter:   ratelimit.New(db, t.TempDir()),
	}
	return NewScheduler(db, svc, manager, deps), db, svc
}

func enqueueDue(t *testing.T, db *database.DB, title string, fallback bool) int64 {
	t.Helper()
	id, err := db.EnqueueWebhookTask(context.Background(), &models.WebhookTask{
		Service:      "emby",
		ProviderName: "bilibili",
		MediaID:      "md100",
		Title:        title,
		Type:         models.MediaTypeTVSeries,
		Season:       1,
		Fallback:     fallback,
		ReceivedAt:   time.Now().Add(-10 * time.Minute),
		ExecuteAt:    time.Now().Add(-5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueWebhookTask error = %v", err)
	}
	return id
}

func TestDispatchDueSubmitsAndStamps(t *testing.T) {
	s, db, _ := setupScheduler(t)
	ctx := context.Background()

	enqueueDue(t, db, "葬送的芙莉莲", false)
	s.dispatchDue(ctx)

	pending, err := db.ListPendingWebhookTasks(ctx)
	if err != nil {
		t.Fatalf("ListPendingWebhookTasks error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after dispatch = %d, want 0", len(pending))
	}

	tasks, total, err := db.ListTasks(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("ListTasks error = %v", err)
	}
	if total != 1 {
		t.Fatalf("task history rows = %d, want 1", total)
	}
	if tasks[0].Title != "Webhook导入: 葬送的芙莉莲" {
		t.Errorf("task title = %q", tasks[0].Title)
	}
}

func TestDispatchDueDuplicateIsSkipped(t *testing.T) {
	s, db, _ := setupScheduler(t)
	ctx := context.Background()

	// Same media twice: the second submission hits the unique-key dedup
	// but both rows end up stamped.
	enqueueDue(t, db, "重复通知", false)
	enqueueDue(t, db, "重复通知", false)
	s.dispatchDue(ctx)

	pending, err := db.ListPendingWebhookTasks(ctx)
	if err != nil {
		t.Fatalf("ListPendingWebhookTasks error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after dispatch = %d, want 0", len(pending))
	}

	_, total, err := db.ListTasks(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("ListTasks error = %v", err)
	}
	if total != 1 {
		t.Errorf("task history rows = %d, want 1", total)
	}
}

func TestDispatchDueIgnoresFutureRows(t *testing.T) {
	s, db, _ := setupScheduler(t)
	ctx := context.Background()

	if _, err := db.EnqueueWebhookTask(ctx, &models.WebhookTask{
		Service:      "emby",
		ProviderName: "bilibili",
		MediaID:      "md200",
		Title:        "未到期",
		Type:         models.MediaTypeTVSeries,
		Season:       1,
		ReceivedAt:   time.Now(),
		ExecuteAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("EnqueueWebhookTask error = %v", err)
	}

	s.dispatchDue(ctx)

	pending, err := db.ListPendingWebhookTasks(ctx)
	if err != nil {
		t.Fatalf("ListPendingWebhookTasks error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestEnqueueAppliesConfiguredDelay(t *testing.T) {
	s, _, _ := setupScheduler(t)
	ctx := context.Background()

	wt := &models.WebhookTask{
		Service:      "jellyfin",
		ProviderName: "tencent",
		MediaID:      "cover1",
		Title:        "延迟测试",
		Type:         models.MediaTypeTVSeries,
		Season:       1,
	}
	before := time.Now()
	if _, err := s.Enqueue(ctx, wt); err != nil {
		t.Fatalf("Enqueue error = %v", err)
	}

	// Default delay is 300 s.
	gap := wt.ExecuteAt.Sub(wt.ReceivedAt)
	if gap != 300*time.Second {
		t.Errorf("delay = %v, want 5m", gap)
	}
	if wt.ReceivedAt.Before(before) {
		t.Errorf("ReceivedAt = %v predates the call", wt.ReceivedAt)
	}
}

func TestTitleAllowed(t *testing.T) {
	s, _, svc := setupScheduler(t)
	ctx := context.Background()

	if !s.TitleAllowed(ctx, "任意标题") {
		t.Error("empty filter should allow everything")
	}

	if err := svc.Set(ctx, "webhookFilterRegex", "预告|花絮"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if s.TitleAllowed(ctx, "第1话 预告") {
		t.Error("blacklist should drop matching title")
	}
	if !s.TitleAllowed(ctx, "第1话 正片") {
		t.Error("blacklist should keep non-matching title")
	}

	if err := svc.Set(ctx, "webhookFilterMode", "whitelist"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if !s.TitleAllowed(ctx, "第1话 预告") {
		t.Error("whitelist should keep matching title")
	}
	if s.TitleAllowed(ctx, "第1话 正片") {
		t.Error("whitelist should drop non-matching title")
	}
}

func TestPruneRemovesOldSubmittedRows(t *testing.T) {
	s, db, _ := setupScheduler(t)
	ctx := context.Background()

	id := enqueueDue(t, db, "待清理", false)
	if err := db.MarkWebhookTaskSubmitted(ctx, id, time.Now().Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("MarkWebhookTaskSubmitted error = %v", err)
	}

	s.prune(ctx)

	if err := db.DeleteWebhookTask(ctx, id); err == nil {
		t.Error("expected row to be gone after prune")
	}
}
