// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package jobs holds the task bodies the queues execute: imports,
// refreshes, reorders, and deletions. Each constructor returns a
// task.Factory closed over its parameters.
package jobs

import (
	"context"
	"time"

	"github.com/okanami/barrage/internal/danmaku"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/settings"
)

// Deps bundles what the task bodies need. Mirror may be nil when the
// file mirror is not configured.
type Deps struct {
	DB        *database.DB
	Settings  *settings.Service
	Providers *provider.Registry
	Limiter   *ratelimit.Limiter
	Mirror    *danmaku.Mirror
}

// fetchComments runs one rate-limited comment fetch: check before,
// increment only after success, normalize the payload.
func (d Deps) fetchComments(ctx context.Context, adapter provider.Provider, providerEpisodeID string) ([]models.Comment, error) {
	if err := d.Limiter.Check(ctx, adapter.Name()); err != nil {
		return nil, err
	}
	raw, err := adapter.GetComments(ctx,
		adapter.FormatEpisodeIDForComments(providerEpisodeID), nil)
	if err != nil {
		return nil, err
	}
	if err := d.Limiter.Increment(ctx, adapter.Name()); err != nil {
		return nil, err
	}
	return danmaku.Normalize(adapter.Name(), raw), nil
}

func (d Deps) markFetched(ctx context.Context, episodeID int64) error {
	return d.DB.MarkEpisodeFetched(ctx, episodeID, time.Now())
}

// mirrorByIDs writes the episode's stored comments to the file mirror.
// Best effort only; the database stays the source of truth.
func (d Deps) mirrorByIDs(ctx context.Context, animeID, sourceID, episodeID int64) {
	if d.Mirror == nil {
		return
	}
	anime, err := d.DB.GetAnime(ctx, animeID)
	if err != nil {
		return
	}
	source, err := d.DB.GetSource(ctx, sourceID)
	if err != nil {
		return
	}
	episode, err := d.DB.GetEpisode(ctx, episodeID)
	if err != nil {
		return
	}
	comments, err := d.DB.ListComments(ctx, episodeID, 0, 0)
	if err != nil {
		return
	}
	year := 0
	if anime.Year != nil {
		year = *anime.Year
	}
	_ = d.Mirror.Write(ctx, anime.Type, danmaku.PathVars{
		Title:     anime.Title,
		Season:    anime.Season,
		Episode:   episode.EpisodeIndex,
		Year:      year,
		Provider:  source.ProviderName,
		AnimeID:   anime.ID,
		SourceID:  source.ID,
		EpisodeID: episode.ID,
	}, comments)
}
