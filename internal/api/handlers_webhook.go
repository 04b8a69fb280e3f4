// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
)

// handleWebhook ingests a media-server notification and queues a
// delayed import. Authentication is the shared key from settings; an
// empty key disables the ingress entirely.
func (rt *Router) handleWebhook(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	expected, err := rt.settings.Get(r.Context(), "webhookApiKey")
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if expected == "" {
		rw.Forbidden("webhook ingress is not configured")
		return
	}
	supplied := r.URL.Query().Get("apiKey")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
		rw.Unauthorized("invalid webhook key")
		return
	}

	service := pathParam(r, "service")

	var payload webhookPayload
	if !decodeAndValidate(rw, r, &payload) {
		return
	}

	if !rt.scheduler.TitleAllowed(r.Context(), payload.Title) {
		logging.Info().Str("service", service).Str("title", payload.Title).
			Msg("Webhook title filtered, not queued")
		rw.Success(map[string]interface{}{"queued": false, "reason": "filtered"})
		return
	}

	wt := &models.WebhookTask{
		Service:      service,
		ProviderName: payload.Provider,
		MediaID:      payload.MediaID,
		Title:        payload.Title,
		Type:         models.MediaType(payload.Type),
		Season:       payload.Season,
		EpisodeIndex: payload.EpisodeIndex,
		Fallback:     payload.Fallback,
	}

	id, err := rt.scheduler.Enqueue(r.Context(), wt)
	if err != nil {
		rw.InternalError("failed to queue webhook import: " + err.Error())
		return
	}

	logging.Info().Str("service", service).Str("provider", payload.Provider).
		Str("title", payload.Title).Int64("webhook_task_id", id).
		Msg("Webhook import queued")
	rw.Created(map[string]interface{}{"queued": true, "id": id})
}
