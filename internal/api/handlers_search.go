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

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/search"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
)

// handleSearch runs the provider fan-out for a keyword.
func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		rw.BadRequest("keyword query parameter is required")
		return
	}

	resp, err := rt.search.Search(r.Context(), keyword)
	if err != nil {
		if errors.Is(err, search.ErrNoProvidersEnabled) {
			rw.BadRequest("all danmaku providers are disabled; enable at least one first")
			return
		}
		rw.InternalError("search failed: " + err.Error())
		return
	}
	rw.Success(resp)
}

// handleImport submits a generic or edited import task. A full import
// of a media that is already in the library is rejected; a targeted
// single-episode import of it is allowed.
func (rt *Router) handleImport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req importRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	params := jobs.GenericImportParams{
		Provider:           req.Provider,
		MediaID:            req.MediaID,
		Title:              req.Title,
		Type:               models.MediaType(req.Type),
		Season:             req.Season,
		Year:               req.Year,
		TargetEpisodeIndex: req.EpisodeIndex,
		ImageURL:           req.ImageURL,
		TMDBID:             req.TMDBID,
		IMDBID:             req.IMDBID,
		TVDBID:             req.TVDBID,
		DoubanID:           req.DoubanID,
		BangumiID:          req.BangumiID,
	}

	if req.EpisodeIndex == 0 {
		src, err := rt.db.FindSourceByMedia(r.Context(), req.Provider, req.MediaID)
		if err != nil {
			rw.DatabaseError(err)
			return
		}
		if src != nil {
			rw.Conflict("this media is already in the library; refresh the source instead")
			return
		}
	}

	title := fmt.Sprintf("导入: %s (%s)", req.Title, req.Provider)
	if req.EpisodeIndex > 0 {
		title = fmt.Sprintf("%s 第%d话", title, req.EpisodeIndex)
	}

	factory := jobs.GenericImport(rt.jobs, params)
	if len(req.Episodes) > 0 {
		episodes := make([]models.ProviderEpisodeInfo, 0, len(req.Episodes))
		for _, ep := range req.Episodes {
			episodes = append(episodes, models.ProviderEpisodeInfo{
				Provider:     req.Provider,
				EpisodeID:    ep.EpisodeID,
				Title:        ep.Title,
				EpisodeIndex: ep.EpisodeIndex,
				URL:          ep.URL,
			})
		}
		factory = jobs.EditedImport(rt.jobs, params, episodes)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		rw.InternalError("failed to encode task parameters")
		return
	}

	rt.submitTask(rw, r, task.Submission{
		Title:      title,
		UniqueKey:  params.UniqueKey(),
		Queue:      models.QueueDownload,
		TaskType:   "genericImport",
		Parameters: string(paramsJSON),
		Factory:    factory,
	})
}

// handleManualImport imports one episode from a URL or pasted danmaku
// content onto an existing source.
func (rt *Router) handleManualImport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req manualImportRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	source, err := rt.db.GetSource(r.Context(), req.SourceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("source not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	params := jobs.ManualImportParams{
		SourceID:     req.SourceID,
		Title:        req.Title,
		EpisodeIndex: req.EpisodeIndex,
		Content:      req.Content,
		ProviderName: source.ProviderName,
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("手动导入: %s 第%d话", req.Title, req.EpisodeIndex),
		UniqueKey: fmt.Sprintf("manual-%d-%d", req.SourceID, req.EpisodeIndex),
		Queue:     models.QueueDownload,
		TaskType:  "manualImport",
		Factory:   jobs.ManualImport(rt.jobs, params),
	})
}

// handleBatchManualImport imports a list of manual episodes as one
// task. All items must target the same source.
func (rt *Router) handleBatchManualImport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req batchManualImportRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	sourceID := req.Items[0].SourceID
	for _, item := range req.Items {
		if item.SourceID != sourceID {
			rw.BadRequest("all batch items must target the same source")
			return
		}
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

	items := make([]jobs.ManualImportParams, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, jobs.ManualImportParams{
			SourceID:     item.SourceID,
			Title:        item.Title,
			EpisodeIndex: item.EpisodeIndex,
			Content:      item.Content,
			ProviderName: source.ProviderName,
		})
	}

	rt.submitTask(rw, r, task.Submission{
		Title:     fmt.Sprintf("批量手动导入: %d 项", len(items)),
		UniqueKey: fmt.Sprintf("manual-batch-%d", sourceID),
		Queue:     models.QueueDownload,
		TaskType:  "batchManualImport",
		Factory:   jobs.BatchManualImport(rt.jobs, items),
	})
}

// submitTask funnels all task submissions: dedup conflicts map to 409,
// a full queue to 429, everything else to 500. On success the task ID
// comes back with 202 semantics (200 + taskId payload).
func (rt *Router) submitTask(rw *ResponseWriter, r *http.Request, sub task.Submission) {
	taskID, _, err := rt.manager.Submit(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrConflict):
			rw.Conflict("an identical task is already queued or running")
		case errors.Is(err, task.ErrQueueFull):
			rw.TooManyRequests("task queue is full, retry later")
		default:
			rw.InternalError("failed to submit task: " + err.Error())
		}
		return
	}
	rw.Success(map[string]string{"taskId": taskID})
}
