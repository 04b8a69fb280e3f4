// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"errors"
	"net/http"

	"github.com/okanami/barrage/internal/danmaku"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
)

// commentsPayload is the player-facing comment list.
type commentsPayload struct {
	Count    int              `json:"count"`
	Comments []models.Comment `json:"comments"`
}

// loadComments resolves the episode and reads its comments, applying
// the configured output cap. Writes the error response itself and
// returns nil when the handler should stop.
func (rt *Router) loadComments(rw *ResponseWriter, r *http.Request) []models.Comment {
	episodeID, ok := pathID(r, "episodeId")
	if !ok {
		rw.BadRequest("episodeId must be a positive integer")
		return nil
	}

	if _, err := rt.db.GetEpisode(r.Context(), episodeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("episode not found")
			return nil
		}
		rw.DatabaseError(err)
		return nil
	}

	limit, err := rt.settings.GetInt(r.Context(), "danmakuOutputLimitPerSource", -1)
	if err != nil || limit < 0 {
		limit = 0 // 0 reads everything
	}

	comments, err := rt.db.ListComments(r.Context(), episodeID, 0, limit)
	if err != nil {
		rw.DatabaseError(err)
		return nil
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments
}

// handleGetComments serves an episode's danmaku as JSON.
func (rt *Router) handleGetComments(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	comments := rt.loadComments(rw, r)
	if comments == nil {
		return
	}
	rw.Success(commentsPayload{Count: len(comments), Comments: comments})
}

// handleExportCommentsXML serves an episode's danmaku in the custom
// XML interchange format.
func (rt *Router) handleExportCommentsXML(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	comments := rt.loadComments(rw, r)
	if comments == nil {
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if err := danmaku.WriteXML(w, comments); err != nil {
		logging.Error().Err(err).Msg("Failed to stream danmaku XML")
	}
}
