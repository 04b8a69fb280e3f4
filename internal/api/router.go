// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package api is the HTTP surface of Barrage: provider search and
// imports, the comment delivery endpoints, library management, task
// control, token administration, webhook ingress, and the live task
// websocket. Responses use a uniform JSON envelope; player-facing
// endpoints authenticate with API tokens, management endpoints with an
// admin JWT session.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okanami/barrage/internal/auth"
	"github.com/okanami/barrage/internal/config"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/middleware"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/search"
	"github.com/okanami/barrage/internal/settings"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
	"github.com/okanami/barrage/internal/webhook"
	"github.com/okanami/barrage/internal/websocket"
)

// Deps bundles everything the handlers reach into.
type Deps struct {
	DB        *database.DB
	Settings  *settings.Service
	Registry  *provider.Registry
	Limiter   *ratelimit.Limiter
	Search    *search.Service
	Manager   *task.Manager
	Jobs      jobs.Deps
	Tokens    *auth.TokenService
	Admin     *auth.AdminAuth
	Scheduler *webhook.Scheduler
	Hub       *websocket.Hub
}

// Router wires the chi mux over the application services.
type Router struct {
	cfg config.ServerConfig

	db        *database.DB
	settings  *settings.Service
	registry  *provider.Registry
	limiter   *ratelimit.Limiter
	search    *search.Service
	manager   *task.Manager
	jobs      jobs.Deps
	tokens    *auth.TokenService
	admin     *auth.AdminAuth
	scheduler *webhook.Scheduler
	hub       *websocket.Hub
}

// NewRouter builds the API router.
func NewRouter(cfg config.ServerConfig, d Deps) *Router {
	return &Router{
		cfg:       cfg,
		db:        d.DB,
		settings:  d.Settings,
		registry:  d.Registry,
		limiter:   d.Limiter,
		search:    d.Search,
		manager:   d.Manager,
		jobs:      d.Jobs,
		tokens:    d.Tokens,
		admin:     d.Admin,
		scheduler: d.Scheduler,
		hub:       d.Hub,
	}
}

// Handler assembles the chi mux.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(rt.cfg.CORSOrigins))
	r.Use(securityHeaders)
	r.Use(middleware.Prometheus)

	r.Get("/healthz", rt.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))

		// Admin session bootstrap, strictly throttled.
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter(5, 5*time.Minute))
			r.Post("/auth/login", rt.handleLogin)
		})

		// Player-facing comment delivery, API-token authenticated.
		r.Group(func(r chi.Router) {
			r.Use(rt.tokenAuth)
			r.Use(middleware.Compression)
			r.Get("/comments/{episodeId}", rt.handleGetComments)
			r.Get("/comments/{episodeId}.xml", rt.handleExportCommentsXML)
		})

		// Webhook ingress, shared-key authenticated.
		r.Post("/webhook/{service}", rt.handleWebhook)

		// Live task progress. The browser websocket client cannot set
		// headers, so the session rides a query parameter.
		r.Get("/ws/tasks", rt.handleTaskSocket)

		// Management surface behind the admin session.
		r.Group(func(r chi.Router) {
			r.Use(rt.adminAuth)

			r.Get("/search/provider", rt.handleSearch)

			r.Post("/import", rt.handleImport)
			r.Post("/import/manual", rt.handleManualImport)
			r.Post("/import/batch", rt.handleBatchManualImport)

			rt.registerLibraryRoutes(r)
			rt.registerTaskRoutes(r)
			rt.registerProviderRoutes(r)
			rt.registerAdminRoutes(r)
		})
	})

	return r
}

// handleHealthz reports process liveness and database reachability.
func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := rt.db.Ping(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeDatabaseError, "database unreachable")
		return
	}
	rw.Success(map[string]string{"status": "ok"})
}

// registerLibraryRoutes mounts the library CRUD under /api/library.
func (rt *Router) registerLibraryRoutes(r chi.Router) {
	r.Route("/library", func(r chi.Router) {
		r.Get("/", rt.handleListLibrary)
		r.Get("/anime/{animeId}", rt.handleGetAnime)
		r.Delete("/anime/{animeId}", rt.handleDeleteAnime)
		r.Post("/anime/{animeId}/reassociate", rt.handleReassociate)

		r.Get("/source/{sourceId}/episodes", rt.handleListEpisodes)
		r.Delete("/source/{sourceId}", rt.handleDeleteSource)
		r.Put("/source/{sourceId}/favorite", rt.handleToggleFavorite)
		r.Put("/source/{sourceId}/incremental", rt.handleToggleIncremental)
		r.Post("/source/{sourceId}/reorder", rt.handleReorderEpisodes)
		r.Post("/source/{sourceId}/refresh", rt.handleRefreshSource)

		r.Post("/episodes/offset", rt.handleOffsetEpisodes)
		r.Post("/episodes/delete", rt.handleBulkDeleteEpisodes)
		r.Delete("/episode/{episodeId}", rt.handleDeleteEpisode)
		r.Post("/episode/{episodeId}/refresh", rt.handleRefreshEpisode)
	})
}

// registerTaskRoutes mounts task control and rate-limit status.
func (rt *Router) registerTaskRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", rt.handleListTasks)
		r.Post("/{taskId}/pause", rt.handlePauseTask)
		r.Post("/{taskId}/resume", rt.handleResumeTask)
		r.Post("/{taskId}/abort", rt.handleAbortTask)
		r.Delete("/{taskId}", rt.handleDeleteTask)
	})
	r.Get("/ratelimit/status", rt.handleRateLimitStatus)
}

// registerProviderRoutes mounts provider administration.
func (rt *Router) registerProviderRoutes(r chi.Router) {
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", rt.handleListProviders)
		r.Post("/{name}/test", rt.handleTestProvider)
		r.Put("/{name}/enabled", rt.handleSetProviderEnabled)
		r.Put("/{name}/order", rt.handleSetProviderOrder)
	})
}

// registerAdminRoutes mounts token, UA-rule and settings management.
func (rt *Router) registerAdminRoutes(r chi.Router) {
	r.Route("/tokens", func(r chi.Router) {
		r.Get("/", rt.handleListTokens)
		r.Post("/", rt.handleCreateToken)
		r.Delete("/{tokenId}", rt.handleDeleteToken)
		r.Put("/{tokenId}/toggle", rt.handleToggleToken)
		r.Put("/{tokenId}/reset", rt.handleResetToken)
	})

	r.Route("/ua-rules", func(r chi.Router) {
		r.Get("/", rt.handleListUARules)
		r.Post("/", rt.handleCreateUARule)
		r.Delete("/{ruleId}", rt.handleDeleteUARule)
	})

	r.Get("/settings", rt.handleListSettings)
	r.Put("/settings", rt.handleUpdateSettings)
}
