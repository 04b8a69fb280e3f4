// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package jobs

import (
	"context"
	"fmt"

	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/task"
)

// FullRefresh refetches a source from scratch: everything is collected
// in memory first, and the old data is cleared only when the fetch
// produced at least one comment. An upstream that suddenly returns
// nothing cannot wipe a previously good source.
func FullRefresh(d Deps, sourceID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		source, err := d.DB.GetSource(ctx, sourceID)
		if err != nil {
			return "", err
		}
		anime, err := d.DB.GetAnime(ctx, source.AnimeID)
		if err != nil {
			return "", err
		}
		adapter, err := d.Providers.Get(source.ProviderName)
		if err != nil {
			return "", err
		}

		if err := progress(0, "listing episodes"); err != nil {
			return "", err
		}
		episodes, err := adapter.GetEpisodes(ctx, source.MediaID, 0, anime.Type)
		if err != nil {
			return "", fmt.Errorf("failed to list episodes from %s: %w", source.ProviderName, err)
		}
		if anime.Type == models.MediaTypeMovie && len(episodes) > 1 {
			episodes = episodes[:1]
		}

		type fetched struct {
			episode  models.ProviderEpisodeInfo
			comments []models.Comment
		}
		collected := make([]fetched, 0, len(episodes))
		total := 0
		for i, ep := range episodes {
			if err := progress(i*90/max(len(episodes), 1),
				fmt.Sprintf("fetching %s (%d/%d)", ep.Title, i+1, len(episodes))); err != nil {
				return "", err
			}
			comments, err := d.fetchComments(ctx, adapter, ep.EpisodeID)
			if err != nil {
				return "", err
			}
			collected = append(collected, fetched{episode: ep, comments: comments})
			total += len(comments)
		}

		if total == 0 {
			return "refresh found no comments, keeping existing data", nil
		}

		if err := progress(90, "replacing stored data"); err != nil {
			return "", err
		}
		if err := d.DB.ClearSourceData(ctx, sourceID); err != nil {
			return "", err
		}
		inserted := 0
		for _, f := range collected {
			if len(f.comments) == 0 {
				continue
			}
			episodeID, err := d.DB.CreateEpisodeIfNotExists(ctx, sourceID,
				f.episode.EpisodeIndex, f.episode.Title, f.episode.URL, f.episode.EpisodeID)
			if err != nil {
				return "", err
			}
			n, err := d.DB.BulkInsertComments(ctx, episodeID, f.comments)
			if err != nil {
				return "", err
			}
			inserted += n
			if err := d.markFetched(ctx, episodeID); err != nil {
				return "", err
			}
			d.mirrorByIDs(ctx, anime.ID, sourceID, episodeID)
		}
		return fmt.Sprintf("refreshed %d comments", inserted), nil
	}
}

// IncrementalRefresh fetches only from the last stored episode onward:
// the newest known episode is re-diffed for late comments, and any
// later episodes are imported whole.
func IncrementalRefresh(d Deps, sourceID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		source, err := d.DB.GetSource(ctx, sourceID)
		if err != nil {
			return "", err
		}
		anime, err := d.DB.GetAnime(ctx, source.AnimeID)
		if err != nil {
			return "", err
		}
		adapter, err := d.Providers.Get(source.ProviderName)
		if err != nil {
			return "", err
		}

		existing, err := d.DB.ListEpisodesBySource(ctx, sourceID)
		if err != nil {
			return "", err
		}
		lastIndex := 0
		byIndex := make(map[int]models.Episode, len(existing))
		for _, ep := range existing {
			byIndex[ep.EpisodeIndex] = ep
			if ep.EpisodeIndex > lastIndex {
				lastIndex = ep.EpisodeIndex
			}
		}

		if err := progress(0, "listing episodes"); err != nil {
			return "", err
		}
		episodes, err := adapter.GetEpisodes(ctx, source.MediaID, 0, anime.Type)
		if err != nil {
			return "", fmt.Errorf("failed to list episodes from %s: %w", source.ProviderName, err)
		}

		total := 0
		processed := 0
		for _, ep := range episodes {
			if ep.EpisodeIndex < lastIndex {
				continue
			}
			processed++
			if err := progress(processed*100/max(len(episodes), 1),
				fmt.Sprintf("refreshing %s", ep.Title)); err != nil {
				return "", err
			}

			comments, err := d.fetchComments(ctx, adapter, ep.EpisodeID)
			if err != nil {
				return "", err
			}
			if len(comments) == 0 {
				continue
			}

			var episodeID int64
			if stored, ok := byIndex[ep.EpisodeIndex]; ok {
				episodeID = stored.ID
			} else {
				episodeID, err = d.DB.CreateEpisodeIfNotExists(ctx, sourceID,
					ep.EpisodeIndex, ep.Title, ep.URL, ep.EpisodeID)
				if err != nil {
					return "", err
				}
			}
			n, err := d.DB.BulkInsertComments(ctx, episodeID, comments)
			if err != nil {
				return "", err
			}
			total += n
			if err := d.markFetched(ctx, episodeID); err != nil {
				return "", err
			}
			d.mirrorByIDs(ctx, anime.ID, sourceID, episodeID)
		}

		if total == 0 {
			return "no new comments", nil
		}
		return fmt.Sprintf("imported %d new comments", total), nil
	}
}

// RefreshEpisode rediffs one episode: only cids absent from the store
// are inserted.
func RefreshEpisode(d Deps, episodeID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		episode, err := d.DB.GetEpisode(ctx, episodeID)
		if err != nil {
			return "", err
		}
		source, err := d.DB.GetSource(ctx, episode.SourceID)
		if err != nil {
			return "", err
		}
		adapter, err := d.Providers.Get(source.ProviderName)
		if err != nil {
			return "", err
		}

		if err := progress(0, fmt.Sprintf("refreshing %s", episode.Title)); err != nil {
			return "", err
		}
		comments, err := d.fetchComments(ctx, adapter, episode.ProviderEpisodeID)
		if err != nil {
			return "", err
		}

		existing, err := d.DB.GetExistingCommentCIDs(ctx, episodeID)
		if err != nil {
			return "", err
		}
		fresh := comments[:0]
		for _, c := range comments {
			if _, have := existing[c.CID]; !have {
				fresh = append(fresh, c)
			}
		}

		inserted, err := d.DB.BulkInsertComments(ctx, episodeID, fresh)
		if err != nil {
			return "", err
		}
		if err := d.markFetched(ctx, episodeID); err != nil {
			return "", err
		}
		d.mirrorByIDs(ctx, source.AnimeID, source.ID, episodeID)

		if inserted == 0 {
			return "no new comments", nil
		}
		return fmt.Sprintf("imported %d new comments", inserted), nil
	}
}
