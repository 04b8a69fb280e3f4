// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package task runs the three FIFO work queues. Each queue is served
// by exactly one worker, so tasks within a queue never overlap; the
// management queue is never blocked by slow provider fetches on the
// download queue.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/ratelimit"
)

const (
	queueCapacity    = 256
	progressInterval = 500 * time.Millisecond

	abortedDescription = "被用户手动中止"
)

// ProgressFunc reports task progress. It is also the pause and
// cancellation checkpoint: it blocks while the task is paused and
// returns an error when the task was aborted. Long-running bodies must
// call it at least every few seconds.
type ProgressFunc func(progress int, description string) error

// Factory is a task body. It returns the terminal success message, or
// an error; a *ratelimit.RateLimitedError pauses the task with a
// scheduled resume instead of failing it. The body is re-invoked after
// the pause, so bodies must tolerate partial prior progress (comment
// inserts are cid-idempotent, which makes imports safe to re-run).
type Factory func(ctx context.Context, progress ProgressFunc) (string, error)

// Submission describes one task to enqueue.
type Submission struct {
	Title           string
	UniqueKey       string
	Queue           models.QueueType
	TaskType        string
	Parameters      string
	ScheduledTaskID string

	// RunImmediately bypasses the queue and starts the task in its own
	// goroutine, still subject to the dedup preconditions.
	RunImmediately bool

	Factory Factory
}

// ErrQueueFull is returned when a queue's backlog is exhausted.
var ErrQueueFull = errors.New("task queue is full")

type runtime struct {
	info      models.TaskInfo
	uniqueKey string
	taskType  string
	params    string
	factory   Factory

	gate      *pauseGate
	resumeNow chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	forced bool
}

// Manager owns the queues, the title and unique-key reservations, and
// the task history rows.
type Manager struct {
	db     *database.DB
	bus    *Bus
	params *ParamStore

	mu               sync.Mutex
	pendingTitles    map[string]struct{}
	runningTitles    map[string]struct{}
	activeUniqueKeys map[string]struct{}
	active           map[string]*runtime

	queues map[models.QueueType]chan *runtime
}

// NewManager builds the task manager. The ParamStore may be nil in
// tests; recovery caching is then skipped.
func NewManager(db *database.DB, bus *Bus, params *ParamStore) *Manager {
	return &Manager{
		db:               db,
		bus:              bus,
		params:           params,
		pendingTitles:    make(map[string]struct{}),
		runningTitles:    make(map[string]struct{}),
		activeUniqueKeys: make(map[string]struct{}),
		active:           make(map[string]*runtime),
		queues: map[models.QueueType]chan *runtime{
			models.QueueDownload:   make(chan *runtime, queueCapacity),
			models.QueueManagement: make(chan *runtime, queueCapacity),
			models.QueueFallback:   make(chan *runtime, queueCapacity),
		},
	}
}

// Submit enqueues a task after enforcing the dedup preconditions:
// no pending or running task may share the title, and no active task
// may share the unique key. Violations return database.ErrConflict.
func (m *Manager) Submit(ctx context.Context, sub Submission) (string, <-chan struct{}, error) {
	if sub.Factory == nil {
		return "", nil, errors.New("task factory is required")
	}
	queue, ok := m.queues[sub.Queue]
	if !ok {
		return "", nil, fmt.Errorf("unknown queue %q", sub.Queue)
	}

	rt := &runtime{
		info: models.TaskInfo{
			TaskID:          uuid.NewString(),
			Title:           sub.Title,
			Status:          models.TaskStatusPending,
			QueueType:       sub.Queue,
			ScheduledTaskID: sub.ScheduledTaskID,
			CreatedAt:       time.Now(),
		},
		uniqueKey: sub.UniqueKey,
		taskType:  sub.TaskType,
		params:    sub.Parameters,
		factory:   sub.Factory,
		gate:      newPauseGate(),
		resumeNow: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if _, dup := m.pendingTitles[sub.Title]; dup {
		m.mu.Unlock()
		return "", nil, fmt.Errorf("task %q is already queued: %w", sub.Title, database.ErrConflict)
	}
	if _, dup := m.runningTitles[sub.Title]; dup {
		m.mu.Unlock()
		return "", nil, fmt.Errorf("task %q is already running: %w", sub.Title, database.ErrConflict)
	}
	if sub.UniqueKey != "" {
		if _, dup := m.activeUniqueKeys[sub.UniqueKey]; dup {
			m.mu.Unlock()
			return "", nil, fmt.Errorf("task for %q is already active: %w", sub.UniqueKey, database.ErrConflict)
		}
		m.activeUniqueKeys[sub.UniqueKey] = struct{}{}
	}
	m.pendingTitles[sub.Title] = struct{}{}
	m.active[rt.info.TaskID] = rt
	m.mu.Unlock()

	if err := m.db.InsertTaskHistory(ctx, &rt.info, sub.TaskType, sub.Parameters); err != nil {
		m.release(rt)
		return "", nil, err
	}
	if m.params != nil && sub.TaskType != "" {
		if err := m.params.Put(rt.info.TaskID, sub.TaskType, sub.Parameters); err != nil {
			logging.Warn().Err(err).Str("task_id", rt.info.TaskID).Msg("failed to cache recovery record")
		}
	}
	m.publish(rt, models.TaskStatusPending, 0, "queued")

	if sub.RunImmediately {
		go m.run(context.Background(), rt)
		return rt.info.TaskID, rt.done, nil
	}

	select {
	case queue <- rt:
	default:
		m.failBeforeStart(rt, "queue full")
		return "", nil, ErrQueueFull
	}
	return rt.info.TaskID, rt.done, nil
}

// QueueWorker serves one queue. It implements suture.Service.
type QueueWorker struct {
	manager *Manager
	queue   models.QueueType
}

// Workers returns one worker per queue for supervision.
func (m *Manager) Workers() []*QueueWorker {
	return []*QueueWorker{
		{manager: m, queue: models.QueueDownload},
		{manager: m, queue: models.QueueManagement},
		{manager: m, queue: models.QueueFallback},
	}
}

// Serve dequeues and runs tasks strictly in FIFO order until ctx ends.
func (w *QueueWorker) Serve(ctx context.Context) error {
	for {
		select {
		case rt := <-w.manager.queues[w.queue]:
			w.manager.run(ctx, rt)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *QueueWorker) String() string {
	return fmt.Sprintf("task-queue-%s", w.queue)
}

// run executes one task to a terminal state, including rate-limit
// pause cycles.
func (m *Manager) run(ctx context.Context, rt *runtime) {
	m.mu.Lock()
	if _, alive := m.active[rt.info.TaskID]; !alive {
		// Aborted while still queued.
		m.mu.Unlock()
		return
	}
	delete(m.pendingTitles, rt.info.Title)
	m.runningTitles[rt.info.Title] = struct{}{}
	m.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.cancel = cancel
	rt.mu.Unlock()
	defer cancel()

	m.persist(rt, models.TaskStatusRunning, 0, "started", false)

	for {
		message, err := rt.factory(taskCtx, m.progressFor(taskCtx, rt))

		var limited *ratelimit.RateLimitedError
		switch {
		case err == nil:
			m.finish(rt, models.TaskStatusCompleted, 100, message)
			return

		case errors.As(err, &limited):
			m.persist(rt, models.TaskStatusPaused,
				rt.info.Progress,
				fmt.Sprintf("rate limited, resuming in %s", limited.RetryAfter.Round(time.Second)),
				false)
			select {
			case <-time.After(limited.RetryAfter):
			case <-rt.resumeNow:
			case <-taskCtx.Done():
				m.finish(rt, models.TaskStatusFailed, rt.info.Progress, abortedDescription)
				return
			}
			m.persist(rt, models.TaskStatusRunning, rt.info.Progress, "resumed", false)

		case errors.Is(err, context.Canceled) || taskCtx.Err() != nil:
			rt.mu.Lock()
			forced := rt.forced
			rt.mu.Unlock()
			if !forced {
				m.finish(rt, models.TaskStatusFailed, rt.info.Progress, abortedDescription)
			} else {
				// The force path already wrote the terminal row.
				m.release(rt)
			}
			return

		default:
			logging.Error().Err(err).Str("task_id", rt.info.TaskID).
				Str("title", rt.info.Title).Msg("task failed")
			m.finish(rt, models.TaskStatusFailed, rt.info.Progress, lastLine(err.Error()))
			return
		}
	}
}

// progressFor builds the progress callback. It waits out pauses,
// observes cancellation, and throttles history writes to one per
// 500 ms except at the boundaries.
func (m *Manager) progressFor(ctx context.Context, rt *runtime) ProgressFunc {
	var lastWrite time.Time
	return func(progress int, description string) error {
		if err := rt.gate.Wait(ctx); err != nil {
			return err
		}

		rt.info.Progress = progress
		now := time.Now()
		if progress != 0 && progress < 100 && now.Sub(lastWrite) < progressInterval {
			return nil
		}
		lastWrite = now
		m.persist(rt, models.TaskStatusRunning, progress, description, true)
		return nil
	}
}

// Pause suspends a running task at its next progress checkpoint.
func (m *Manager) Pause(ctx context.Context, taskID string) error {
	rt, err := m.lookup(taskID)
	if err != nil {
		return err
	}
	rt.gate.Pause()
	m.persist(rt, models.TaskStatusPaused, rt.info.Progress, "paused by user", false)
	return nil
}

// Resume releases a paused task, including one waiting out a
// rate-limit window.
func (m *Manager) Resume(ctx context.Context, taskID string) error {
	rt, err := m.lookup(taskID)
	if err != nil {
		return err
	}
	rt.gate.Resume()
	select {
	case rt.resumeNow <- struct{}{}:
	default:
	}
	m.persist(rt, models.TaskStatusRunning, rt.info.Progress, "resumed", false)
	return nil
}

// Abort cancels a task gracefully: the body observes the cancellation
// at its next checkpoint and unwinds.
func (m *Manager) Abort(ctx context.Context, taskID string) error {
	rt, err := m.lookup(taskID)
	if err != nil {
		return err
	}
	rt.gate.Resume()
	rt.mu.Lock()
	cancel := rt.cancel
	rt.mu.Unlock()
	if cancel == nil {
		// Still pending; fail it before it starts.
		m.failBeforeStart(rt, abortedDescription)
		return nil
	}
	cancel()
	return nil
}

// ForceAbort marks the history row failed immediately, even if the
// task body fails to unwind.
func (m *Manager) ForceAbort(ctx context.Context, taskID string) error {
	rt, err := m.lookup(taskID)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.forced = true
	cancel := rt.cancel
	rt.mu.Unlock()

	m.finish(rt, models.TaskStatusFailed, rt.info.Progress, abortedDescription)
	rt.gate.Resume()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Recover handles task rows left running or paused by a crash: each is
// logged and marked failed. The interrupted set is returned so the
// caller can resubmit known-idempotent task types.
func (m *Manager) Recover(ctx context.Context) ([]database.InterruptedTask, error) {
	interrupted, err := m.db.FindInterruptedTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range interrupted {
		logging.Warn().Str("task_id", it.Info.TaskID).Str("title", it.Info.Title).
			Str("task_type", it.TaskType).Msg("task interrupted by restart")
		now := time.Now()
		if err := m.db.UpdateTaskState(ctx, it.Info.TaskID, models.TaskStatusFailed,
			it.Info.Progress, "interrupted by restart", &now); err != nil {
			logging.Error().Err(err).Str("task_id", it.Info.TaskID).Msg("failed to mark interrupted task")
		}
		if m.params != nil {
			m.params.Delete(it.Info.TaskID)
		}
	}
	return interrupted, nil
}

// ActiveCount reports tasks not yet in a terminal state.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) lookup(taskID string) (*runtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.active[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, database.ErrNotFound)
	}
	return rt, nil
}

// persist writes task state and publishes the matching event. Write
// failures are logged; the in-memory state remains authoritative for
// the run loop.
func (m *Manager) persist(rt *runtime, status models.TaskStatus, progress int, description string, throttled bool) {
	rt.info.Status = status
	rt.info.Progress = progress
	rt.info.Description = description

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.db.UpdateTaskState(ctx, rt.info.TaskID, status, progress, description, nil); err != nil {
		logging.Warn().Err(err).Str("task_id", rt.info.TaskID).Msg("failed to persist task state")
	}
	m.publish(rt, status, progress, description)
}

// finish writes the terminal row and releases all reservations.
func (m *Manager) finish(rt *runtime, status models.TaskStatus, progress int, description string) {
	now := time.Now()
	rt.info.Status = status
	rt.info.Progress = progress
	rt.info.Description = description
	rt.info.FinishedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.db.UpdateTaskState(ctx, rt.info.TaskID, status, progress, description, &now); err != nil {
		logging.Warn().Err(err).Str("task_id", rt.info.TaskID).Msg("failed to persist terminal task state")
	}
	m.publish(rt, status, progress, description)
	m.release(rt)
}

// failBeforeStart terminates a task that never ran.
func (m *Manager) failBeforeStart(rt *runtime, description string) {
	now := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.db.UpdateTaskState(ctx, rt.info.TaskID, models.TaskStatusFailed, 0, description, &now); err != nil {
		logging.Warn().Err(err).Str("task_id", rt.info.TaskID).Msg("failed to persist cancelled task state")
	}
	m.publish(rt, models.TaskStatusFailed, 0, description)
	m.release(rt)
}

// release drops the title and unique-key reservations and closes the
// done channel exactly once.
func (m *Manager) release(rt *runtime) {
	m.mu.Lock()
	delete(m.pendingTitles, rt.info.Title)
	delete(m.runningTitles, rt.info.Title)
	if rt.uniqueKey != "" {
		delete(m.activeUniqueKeys, rt.uniqueKey)
	}
	if _, still := m.active[rt.info.TaskID]; still {
		delete(m.active, rt.info.TaskID)
		close(rt.done)
	}
	m.mu.Unlock()

	if m.params != nil {
		m.params.Delete(rt.info.TaskID)
	}
}

func (m *Manager) publish(rt *runtime, status models.TaskStatus, progress int, description string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(models.TaskEvent{
		TaskID:      rt.info.TaskID,
		Title:       rt.info.Title,
		Status:      status,
		Progress:    progress,
		Description: description,
	})
}

// lastLine keeps failure descriptions to a single concise line.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return s
}

// pauseGate blocks the progress callback while a task is paused.
// resume is closed while the task may run and replaced with an open
// channel on pause.
type pauseGate struct {
	mu     sync.Mutex
	resume chan struct{}
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{resume: ch}
}

func (g *pauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resume:
		g.resume = make(chan struct{})
	default:
		// Already paused.
	}
}

func (g *pauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.resume:
	default:
		close(g.resume)
	}
}

// Wait blocks until the gate is open or ctx ends.
func (g *pauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resume
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
