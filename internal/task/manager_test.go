// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/ratelimit"
)

// testDBSemaphore serializes DuckDB-backed tests in this package.
var testDBSemaphore = make(chan struct{}, 1)

func setupManager(t *testing.T) (*Manager, *database.DB) {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	params, err := OpenParamStore("")
	if err != nil {
		t.Fatalf("failed to open param store: %v", err)
	}
	t.Cleanup(func() { _ = params.Close() })

	return NewManager(db, NewBus(), params), db
}

func startWorkers(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, w := range m.Workers() {
		go func(w *QueueWorker) { _ = w.Serve(ctx) }(w)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("task did not finish in time")
	}
}

func TestSubmitRunsTask(t *testing.T) {
	m, db := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	ran := make(chan struct{})
	id, done, err := m.Submit(ctx, Submission{
		Title: "import something",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			close(ran)
			if err := progress(50, "halfway"); err != nil {
				return "", err
			}
			return "imported 3 comments", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitDone(t, done)
	<-ran

	info, err := db.GetTaskInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetTaskInfo() error = %v", err)
	}
	if info.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", info.Status)
	}
	if info.Progress != 100 || info.Description != "imported 3 comments" {
		t.Errorf("unexpected terminal row: %+v", info)
	}
	if info.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestSubmitDuplicateTitleConflicts(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	block := make(chan struct{})
	_, _, err := m.Submit(ctx, Submission{
		Title: "refresh source 7",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			<-block
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	// No worker is running, so the first task is still pending.
	_, _, err = m.Submit(ctx, Submission{
		Title:   "refresh source 7",
		Queue:   models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) { return "", nil },
	})
	if !errors.Is(err, database.ErrConflict) {
		t.Fatalf("duplicate title error = %v, want ErrConflict", err)
	}
	close(block)
}

func TestSubmitDuplicateUniqueKeyConflicts(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	_, _, err := m.Submit(ctx, Submission{
		Title:     "delete source 42",
		UniqueKey: "delete-source-42",
		Queue:     models.QueueManagement,
		Factory:   func(ctx context.Context, progress ProgressFunc) (string, error) { return "", nil },
	})
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	_, _, err = m.Submit(ctx, Submission{
		Title:     "delete source 42 again",
		UniqueKey: "delete-source-42",
		Queue:     models.QueueManagement,
		Factory:   func(ctx context.Context, progress ProgressFunc) (string, error) { return "", nil },
	})
	if !errors.Is(err, database.ErrConflict) {
		t.Fatalf("duplicate unique key error = %v, want ErrConflict", err)
	}
}

func TestTaskFailureKeepsLastLine(t *testing.T) {
	m, db := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	id, done, err := m.Submit(ctx, Submission{
		Title: "failing task",
		Queue: models.QueueManagement,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			return "", errors.New("context line\nupstream returned 502")
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitDone(t, done)

	info, err := db.GetTaskInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetTaskInfo() error = %v", err)
	}
	if info.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", info.Status)
	}
	if info.Description != "upstream returned 502" {
		t.Errorf("description = %q, want the last line only", info.Description)
	}
}

func TestPauseBlocksProgressUntilResume(t *testing.T) {
	m, _ := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	started := make(chan string, 1)
	passed := make(chan struct{})
	id, done, err := m.Submit(ctx, Submission{
		Title: "pausable task",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			started <- "running"
			// Give the test a moment to pause before the checkpoint.
			time.Sleep(200 * time.Millisecond)
			if err := progress(10, "checkpoint"); err != nil {
				return "", err
			}
			close(passed)
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	<-started
	if err := m.Pause(ctx, id); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	select {
	case <-passed:
		t.Fatal("progress checkpoint passed while paused")
	case <-time.After(500 * time.Millisecond):
	}

	if err := m.Resume(ctx, id); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitDone(t, done)
	<-passed
}

func TestAbortFailsTaskAtCheckpoint(t *testing.T) {
	m, db := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	started := make(chan struct{})
	id, done, err := m.Submit(ctx, Submission{
		Title: "abortable task",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			close(started)
			for {
				if err := progress(10, "working"); err != nil {
					return "", err
				}
				select {
				case <-time.After(50 * time.Millisecond):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	<-started
	if err := m.Abort(ctx, id); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	waitDone(t, done)

	info, err := db.GetTaskInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetTaskInfo() error = %v", err)
	}
	if info.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", info.Status)
	}
	if info.Description != abortedDescription {
		t.Errorf("description = %q, want %q", info.Description, abortedDescription)
	}
}

func TestRateLimitPauseResumesAndReruns(t *testing.T) {
	m, db := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	attempts := 0
	id, done, err := m.Submit(ctx, Submission{
		Title: "rate limited import",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			attempts++
			if attempts == 1 {
				return "", &ratelimit.RateLimitedError{
					ProviderName: "bilibili",
					RetryAfter:   50 * time.Millisecond,
				}
			}
			return "imported after resume", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitDone(t, done)

	if attempts != 2 {
		t.Errorf("factory ran %d times, want 2", attempts)
	}
	info, err := db.GetTaskInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetTaskInfo() error = %v", err)
	}
	if info.Status != models.TaskStatusCompleted || info.Description != "imported after resume" {
		t.Errorf("unexpected terminal row: %+v", info)
	}
}

func TestManagementQueueNotBlockedByDownload(t *testing.T) {
	m, _ := setupManager(t)
	startWorkers(t, m)
	ctx := context.Background()

	blockDownload := make(chan struct{})
	_, _, err := m.Submit(ctx, Submission{
		Title: "slow import",
		Queue: models.QueueDownload,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) {
			<-blockDownload
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	defer close(blockDownload)

	_, done, err := m.Submit(ctx, Submission{
		Title:   "quick delete",
		Queue:   models.QueueManagement,
		Factory: func(ctx context.Context, progress ProgressFunc) (string, error) { return "deleted", nil },
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitDone(t, done)
}

func TestRecoverMarksInterruptedFailed(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()

	info := &models.TaskInfo{
		TaskID:    "11111111-1111-1111-1111-111111111111",
		Title:     "interrupted import",
		Status:    models.TaskStatusRunning,
		QueueType: models.QueueDownload,
		CreatedAt: time.Now(),
	}
	if err := db.InsertTaskHistory(ctx, info, "generic_import", `{"provider":"bilibili"}`); err != nil {
		t.Fatalf("InsertTaskHistory() error = %v", err)
	}
	if err := db.UpdateTaskState(ctx, info.TaskID, models.TaskStatusRunning, 40, "fetching", nil); err != nil {
		t.Fatalf("UpdateTaskState() error = %v", err)
	}

	interrupted, err := m.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(interrupted) != 1 || interrupted[0].TaskType != "generic_import" {
		t.Fatalf("Recover() = %+v", interrupted)
	}

	got, err := db.GetTaskInfo(ctx, info.TaskID)
	if err != nil {
		t.Fatalf("GetTaskInfo() error = %v", err)
	}
	if got.Status != models.TaskStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestParamStoreRoundTrip(t *testing.T) {
	store, err := OpenParamStore("")
	if err != nil {
		t.Fatalf("OpenParamStore() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Put("task-1", "generic_import", `{"mediaId":"ss1"}`); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	taskType, params, ok, err := store.Get("task-1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if taskType != "generic_import" || params != `{"mediaId":"ss1"}` {
		t.Errorf("Get() = %q, %q", taskType, params)
	}

	store.Delete("task-1")
	if _, _, ok, _ := store.Get("task-1"); ok {
		t.Error("record survived Delete()")
	}
}
