// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Command server runs the Barrage danmaku aggregation server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/api"
	"github.com/okanami/barrage/internal/auth"
	"github.com/okanami/barrage/internal/config"
	"github.com/okanami/barrage/internal/danmaku"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/metadata"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/provider/bilibili"
	"github.com/okanami/barrage/internal/provider/custom"
	"github.com/okanami/barrage/internal/provider/iqiyi"
	"github.com/okanami/barrage/internal/provider/mgtv"
	"github.com/okanami/barrage/internal/provider/renren"
	"github.com/okanami/barrage/internal/provider/tencent"
	"github.com/okanami/barrage/internal/provider/youku"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/search"
	"github.com/okanami/barrage/internal/settings"
	"github.com/okanami/barrage/internal/supervisor"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
	"github.com/okanami/barrage/internal/webhook"
	"github.com/okanami/barrage/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Msg("Barrage starting")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	svc := settings.NewService(db)
	limiter := ratelimit.New(db, cfg.RateLimit.Dir)
	registry := buildRegistry(svc, limiter)

	params, err := task.OpenParamStore(cfg.Task.RecoveryPath)
	if err != nil {
		return fmt.Errorf("failed to open recovery store: %w", err)
	}
	defer func() { _ = params.Close() }()

	bus := task.NewBus()
	defer func() { _ = bus.Close() }()
	manager := task.NewManager(db, bus, params)

	jobsDeps := jobs.Deps{
		DB:        db,
		Settings:  svc,
		Providers: registry,
		Limiter:   limiter,
		Mirror:    danmaku.NewMirror(svc),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resubmitInterrupted(ctx, manager, jobsDeps)

	scheduler := webhook.NewScheduler(db, svc, manager, jobsDeps)
	tokens := auth.NewTokenService(db)
	admin := auth.NewAdminAuth(cfg.Security)
	hub := websocket.NewHub(bus)

	router := api.NewRouter(cfg.Server, api.Deps{
		DB:        db,
		Settings:  svc,
		Registry:  registry,
		Limiter:   limiter,
		Search:    search.New(db, svc, registry, metadata.NewRegistry()),
		Manager:   manager,
		Jobs:      jobsDeps,
		Tokens:    tokens,
		Admin:     admin,
		Scheduler: scheduler,
		Hub:       hub,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	for _, worker := range manager.Workers() {
		tree.AddWorker(worker)
	}
	tree.AddWorker(scheduler)
	tree.AddWorker(auth.NewResetWorker(db))
	tree.AddMessaging(hub)
	tree.AddAPI(supervisor.NewHTTPService(server, addr, cfg.Server.Timeout))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Barrage stopped")
	return nil
}

// buildRegistry registers every platform adapter and declares its
// outbound quota with the governor.
func buildRegistry(svc *settings.Service, limiter *ratelimit.Limiter) *provider.Registry {
	registry := provider.NewRegistry(svc)
	adapters := []provider.Provider{
		bilibili.New(svc),
		tencent.New(svc),
		iqiyi.New(svc),
		youku.New(svc),
		mgtv.New(svc),
		renren.New(svc),
		custom.New(),
	}
	for _, adapter := range adapters {
		registry.Register(adapter)
		limiter.RegisterQuota(adapter.Name(), adapter.RateLimitQuota())
	}
	return registry
}

// resubmitInterrupted marks tasks orphaned by the previous process as
// failed and resubmits the import types whose parameters are stored on
// the history row. Maintenance tasks are not resubmitted, their inputs
// may no longer exist.
func resubmitInterrupted(ctx context.Context, manager *task.Manager, deps jobs.Deps) {
	interrupted, err := manager.Recover(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Crash recovery scan failed")
		return
	}

	for _, it := range interrupted {
		switch it.TaskType {
		case "genericImport", webhook.TaskTypeImport:
		default:
			continue
		}

		var p jobs.GenericImportParams
		if err := json.Unmarshal([]byte(it.TaskParameters), &p); err != nil {
			logging.Warn().Err(err).Str("task_id", it.Info.TaskID).
				Msg("Unreadable parameters, task not resubmitted")
			continue
		}

		_, _, err := manager.Submit(ctx, task.Submission{
			Title:      it.Info.Title,
			UniqueKey:  p.UniqueKey(),
			Queue:      models.QueueDownload,
			TaskType:   it.TaskType,
			Parameters: it.TaskParameters,
			Factory:    jobs.GenericImport(deps, p),
		})
		if err != nil {
			logging.Warn().Err(err).Str("task_id", it.Info.TaskID).
				Str("title", it.Info.Title).Msg("Failed to resubmit interrupted import")
			continue
		}
		logging.Info().Str("title", it.Info.Title).Msg("Resubmitted interrupted import")
	}
}
