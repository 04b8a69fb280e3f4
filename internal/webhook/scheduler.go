// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package webhook turns ingress notifications from media services into
// delayed imports. Each accepted notification becomes a persisted row;
// a supervised scheduler submits due rows to the task manager.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/settings"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
)

const (
	pollInterval = 30 * time.Second

	// Submitted rows are kept for a week for the admin UI history.
	submittedRetention = 7 * 24 * time.Hour

	// TaskTypeImport is the task_history type recorded for scheduler
	// submissions, matching the recovery resubmission path.
	TaskTypeImport = "webhookImport"
)

// Scheduler drains the webhook queue into the task manager.
type Scheduler struct {
	db       *database.DB
	settings *settings.Service
	manager  *task.Manager
	deps     jobs.Deps
}

// NewScheduler builds the scheduler worker.
func NewScheduler(db *database.DB, svc *settings.Service, manager *task.Manager, deps jobs.Deps) *Scheduler {
	return &Scheduler{db: db, settings: svc, manager: manager, deps: deps}
}

// Enqueue persists one notification as a delayed import. The execute
// time is now plus the configured debounce delay, so rapid repeat
// notifications for an airing episode collapse into the manager's
// unique-key dedup when they come due together.
func (s *Scheduler) Enqueue(ctx context.Context, t *models.WebhookTask) (int64, error) {
	delay, err := s.settings.GetInt(ctx, "webhookDelaySeconds", 300)
	if err != nil || delay < 0 {
		delay = 300
	}
	now := time.Now()
	t.ReceivedAt = now
	t.ExecuteAt = now.Add(time.Duration(delay) * time.Second)
	return s.db.EnqueueWebhookTask(ctx, t)
}

// TitleAllowed applies the configured title filter. Blacklist mode
// drops matching titles; whitelist mode drops non-matching ones. An
// empty or invalid regex allows everything.
func (s *Scheduler) TitleAllowed(ctx context.Context, title string) bool {
	pattern, err := s.settings.Get(ctx, "webhookFilterRegex")
	if err != nil || pattern == "" {
		return true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Err(err).Str("pattern", pattern).Msg("invalid webhook filter regex, allowing all")
		return true
	}
	mode, err := s.settings.Get(ctx, "webhookFilterMode")
	if err != nil {
		mode = "blacklist"
	}
	if mode == "whitelist" {
		return re.MatchString(title)
	}
	return !re.MatchString(title)
}

// Serve implements suture.Service: poll for due rows, submit them, and
// prune old submitted rows, until the context ends.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", pollInterval).Msg("Webhook scheduler started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Webhook scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.dispatchDue(ctx)
			s.prune(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string {
	return "webhook-scheduler"
}

// dispatchDue submits every due row. The row is stamped submitted
// before the manager call; the stamp is conditional on being
// unsubmitted, so overlapping passes cannot double-submit.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	due, err := s.db.ListDueWebhookTasks(ctx, time.Now())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list due webhook tasks")
		return
	}

	for _, wt := range due {
		if err := s.db.MarkWebhookTaskSubmitted(ctx, wt.ID, time.Now()); err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				logging.Error().Err(err).Int64("webhook_task_id", wt.ID).
					Msg("Failed to mark webhook task submitted")
			}
			continue
		}
		if err := s.submit(ctx, wt); err != nil {
			if errors.Is(err, database.ErrConflict) {
				logging.Info().Int64("webhook_task_id", wt.ID).Str("title", wt.Title).
					Msg("Webhook import already queued, skipped")
				continue
			}
			logging.Error().Err(err).Int64("webhook_task_id", wt.ID).Str("title", wt.Title).
				Msg("Failed to submit webhook import")
		}
	}
}

func (s *Scheduler) submit(ctx context.Context, wt models.WebhookTask) error {
	params := jobs.GenericImportParams{
		Provider: wt.ProviderName,
		MediaID:  wt.MediaID,
		Title:    wt.Title,
		Type:     wt.Type,
		Season:   wt.Season,
	}
	if wt.EpisodeIndex != nil {
		params.TargetEpisodeIndex = *wt.EpisodeIndex
	}

	queue := models.QueueDownload
	if wt.Fallback {
		queue = models.QueueFallback
	}

	title := wt.Title
	if wt.EpisodeIndex != nil {
		title = fmt.Sprintf("%s 第%d话", wt.Title, *wt.EpisodeIndex)
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode webhook import parameters: %w", err)
	}

	_, _, err = s.manager.Submit(ctx, task.Submission{
		Title:      fmt.Sprintf("Webhook导入: %s", title),
		UniqueKey:  params.UniqueKey(),
		Queue:      queue,
		TaskType:   TaskTypeImport,
		Parameters: string(encoded),
		Factory:    jobs.GenericImport(s.deps, params),
	})
	return err
}

func (s *Scheduler) prune(ctx context.Context) {
	n, err := s.db.PruneSubmittedWebhookTasks(ctx, time.Now().Add(-submittedRetention))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to prune webhook tasks")
		return
	}
	if n > 0 {
		logging.Debug().Int64("pruned", n).Msg("Pruned submitted webhook tasks")
	}
}
