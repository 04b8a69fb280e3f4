// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
)

// handleListLibrary lists works, optionally filtered by keyword.
func (rt *Router) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	anime, total, err := rt.db.ListAnime(r.Context(), keyword, offset, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(anime, &PaginationMeta{
		Total:   total,
		Count:   len(anime),
		Offset:  offset,
		Limit:   limit,
		HasMore: int64(offset+len(anime)) < total,
	})
}

// animeDetail is the work detail payload with its sources.
type animeDetail struct {
	models.Anime
	Sources []models.Source `json:"sources"`
}

// handleGetAnime returns one work with its sources.
func (rt *Router) handleGetAnime(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	animeID, ok := pathID(r, "animeId")
	if !ok {
		rw.BadRequest("animeId must be a positive integer")
		return
	}

	anime, err := rt.db.GetAnime(r.Context(), animeID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("anime not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	sources, err := rt.db.ListSourcesByAnime(r.Context(), animeID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}

	rw.Success(animeDetail{Anime: *anime, Sources: sources})
}

// handleDeleteAnime removes a work and everything under it, on the
// management queue so a slow download never delays it.
func (rt *Router) handleDeleteAnime(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	animeID, ok := pathID(r, "animeId")
	if !ok {
		rw.BadRequest("animeId must be a positive integer")
		return
	}
	if _, err := rt.db.GetAnime(r.Context(), animeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("anime not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("删除作品 #%d", animeID),
		UniqueKey: fmt.Sprintf("delete-anime-%d", animeID),
		Queue:     models.QueueManagement,
		TaskType:  "deleteAnime",
		Factory:   jobs.DeleteAnime(rt.jobs, animeID),
	})
}

// handleReassociate moves all sources of a work onto another work.
func (rt *Router) handleReassociate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	animeID, ok := pathID(r, "animeId")
	if !ok {
		rw.BadRequest("animeId must be a positive integer")
		return
	}

	var req reassociateRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}
	if req.TargetAnimeID == animeID {
		rw.BadRequest("target must differ from the source anime")
		return
	}

	if err := rt.db.ReassociateAnimeSources(r.Context(), animeID, req.TargetAnimeID); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			rw.NotFound("anime not found")
		case errors.Is(err, database.ErrConflict):
			rw.Conflict("target anime already has a source for the same provider media")
		default:
			rw.DatabaseError(err)
		}
		return
	}
	rw.Success(map[string]int64{"animeId": req.TargetAnimeID})
}

// handleListEpisodes lists a source's episodes with comment counts.
func (rt *Router) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}
	if _, err := rt.db.GetSource(r.Context(), sourceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	episodes, err := rt.db.ListEpisodesBySource(r.Context(), sourceID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	rw.Success(episodes)
}

// handleDeleteSource removes one source and its episodes.
func (rt *Router) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}
	if _, err := rt.db.GetSource(r.Context(), sourceID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("删除源 #%d", sourceID),
		UniqueKey: fmt.Sprintf("delete-source-%d", sourceID),
		Queue:     models.QueueManagement,
		TaskType:  "deleteSource",
		Factory:   jobs.DeleteSource(rt.jobs, sourceID),
	})
}

// handleToggleFavorite flips a source's favorite flag. At most one
// source per work carries it; the repository enforces the swap.
func (rt *Router) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}

	favorited, err := rt.db.ToggleSourceFavorite(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]bool{"isFavorited": favorited})
}

// handleToggleIncremental enables or disables incremental refresh.
func (rt *Router) handleToggleIncremental(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}

	var req providerEnableRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	if err := rt.db.SetSourceIncrementalRefresh(r.Context(), sourceID, req.Enabled); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]bool{"incrementalRefreshEnabled": req.Enabled})
}

// handleReorderEpisodes renumbers a source's episodes contiguously.
func (rt *Router) handleReorderEpisodes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("重整集数 #%d", sourceID),
		UniqueKey: fmt.Sprintf("reorder-%d", sourceID),
		Queue:     models.QueueManagement,
		TaskType:  "reorderEpisodes",
		Factory:   jobs.ReorderEpisodes(rt.jobs, sourceID),
	})
}

// handleRefreshSource refreshes a source, incrementally when the flag
// is set on the source, otherwise as a full fetch-then-replace pass.
func (rt *Router) handleRefreshSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sourceID, ok := pathID(r, "sourceId")
	if !ok {
		rw.BadRequest("sourceId must be a positive integer")
		return
	}

	source, err := rt.db.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	factory := jobs.FullRefresh(rt.jobs, sourceID)
	taskType := "fullRefresh"
	if source.IncrementalRefresh {
		factory = jobs.IncrementalRefresh(rt.jobs, sourceID)
		taskType = "incrementalRefresh"
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("刷新源 #%d (%s)", sourceID, source.ProviderName),
		UniqueKey: fmt.Sprintf("refresh-%d", sourceID),
		Queue:     models.QueueDownload,
		TaskType:  taskType,
		Factory:   factory,
	})
}

// handleOffsetEpisodes shifts episode numbering. The shift is
// validated here so an impossible offset fails fast instead of inside
// the task.
func (rt *Router) handleOffsetEpisodes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req offsetRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	minIndex, err := rt.db.MinEpisodeIndex(r.Context(), req.EpisodeIDs)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("episodes not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	if minIndex+req.Offset < 1 {
		rw.BadRequest(fmt.Sprintf("offset %d is not applicable: the minimum episode index would become %d",
			req.Offset, minIndex+req.Offset))
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("集数偏移 %+d (%d集)", req.Offset, len(req.EpisodeIDs)),
		UniqueKey: fmt.Sprintf("offset-%d-%d", req.EpisodeIDs[0], req.Offset),
		Queue:     models.QueueManagement,
		TaskType:  "offsetEpisodes",
		Factory:   jobs.OffsetEpisodes(rt.jobs, req.EpisodeIDs, req.Offset),
	})
}

// handleBulkDeleteEpisodes removes a set of episodes on one task.
func (rt *Router) handleBulkDeleteEpisodes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req bulkDeleteEpisodesRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("批量删除 %d 集", len(req.EpisodeIDs)),
		UniqueKey: fmt.Sprintf("bulk-delete-%d-%d", req.EpisodeIDs[0], len(req.EpisodeIDs)),
		Queue:     models.QueueManagement,
		TaskType:  "bulkDeleteEpisodes",
		Factory:   jobs.BulkDeleteEpisodes(rt.jobs, req.EpisodeIDs),
	})
}

// handleDeleteEpisode removes one episode.
func (rt *Router) handleDeleteEpisode(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	episodeID, ok := pathID(r, "episodeId")
	if !ok {
		rw.BadRequest("episodeId must be a positive integer")
		return
	}
	if _, err := rt.db.GetEpisode(r.Context(), episodeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("episode not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("删除分集 #%d", episodeID),
		UniqueKey: fmt.Sprintf("delete-episode-%d", episodeID),
		Queue:     models.QueueManagement,
		TaskType:  "deleteEpisode",
		Factory:   jobs.DeleteEpisode(rt.jobs, episodeID),
	})
}

// handleRefreshEpisode re-fetches one episode's comments and inserts
// only unseen cids.
func (rt *Router) handleRefreshEpisode(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	episodeID, ok := pathID(r, "episodeId")
	if !ok {
		rw.BadRequest("episodeId must be a positive integer")
		return
	}
	if _, err := rt.db.GetEpisode(r.Context(), episodeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("episode not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("刷新分集 #%d", episodeID),
		UniqueKey: fmt.Sprintf("refresh-episode-%d", episodeID),
		Queue:     models.QueueDownload,
		TaskType:  "refreshEpisode",
		Factory:   jobs.RefreshEpisode(rt.jobs, episodeID),
	})
}
