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

// GenericImportParams identifies one upstream media to import.
type GenericImportParams struct {
	Provider string           `json:"provider"`
	MediaID  string           `json:"mediaId"`
	Title    string           `json:"title"`
	Type     models.MediaType `json:"type"`
	Season   int              `json:"season"`
	Year     *int             `json:"year,omitempty"`

	// TargetEpisodeIndex restricts the import to a single episode;
	// zero imports everything.
	TargetEpisodeIndex int `json:"targetEpisodeIndex,omitempty"`

	ImageURL       string `json:"imageUrl,omitempty"`
	LocalImagePath string `json:"localImagePath,omitempty"`

	TMDBID    string `json:"tmdbId,omitempty"`
	IMDBID    string `json:"imdbId,omitempty"`
	TVDBID    string `json:"tvdbId,omitempty"`
	DoubanID  string `json:"doubanId,omitempty"`
	BangumiID string `json:"bangumiId,omitempty"`
}

// UniqueKey composes the dedup key for an import submission.
func (p GenericImportParams) UniqueKey() string {
	key := fmt.Sprintf("import-%s-%s", p.Provider, p.MediaID)
	if p.TargetEpisodeIndex > 0 {
		key = fmt.Sprintf("%s-ep%d", key, p.TargetEpisodeIndex)
	}
	return key
}

// GenericImport imports episodes and comments for one media. Episodes
// run in list order; the Work and Source rows materialize on the first
// non-empty fetch, so an import that finds nothing leaves no library
// rows behind.
func GenericImport(d Deps, p GenericImportParams) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		adapter, err := d.Providers.Get(p.Provider)
		if err != nil {
			return "", err
		}

		if err := progress(0, "listing episodes"); err != nil {
			return "", err
		}
		episodes, err := adapter.GetEpisodes(ctx, p.MediaID, p.TargetEpisodeIndex, p.Type)
		if err != nil {
			return "", fmt.Errorf("failed to list episodes from %s: %w", p.Provider, err)
		}
		return importEpisodes(ctx, d, p, episodes, progress)
	}
}

// EditedImport imports a caller-curated episode list instead of the
// provider's listing. Titles and indices come from the request as
// edited in the UI; only the comment fetch goes upstream.
func EditedImport(d Deps, p GenericImportParams, episodes []models.ProviderEpisodeInfo) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		return importEpisodes(ctx, d, p, episodes, progress)
	}
}

func importEpisodes(ctx context.Context, d Deps, p GenericImportParams, episodes []models.ProviderEpisodeInfo, progress task.ProgressFunc) (string, error) {
	adapter, err := d.Providers.Get(p.Provider)
	if err != nil {
		return "", err
	}
	if p.Type == models.MediaTypeMovie && len(episodes) > 1 {
		episodes = episodes[:1]
	}
	if len(episodes) == 0 {
		return "no episodes found", nil
	}

	var (
		animeID  int64
		sourceID int64
		total    int
	)
	for i, ep := range episodes {
		if err := progress(i*100/len(episodes),
			fmt.Sprintf("importing %s (%d/%d)", ep.Title, i+1, len(episodes))); err != nil {
			return "", err
		}

		comments, err := d.fetchComments(ctx, adapter, ep.EpisodeID)
		if err != nil {
			return "", err
		}
		if len(comments) == 0 {
			continue
		}

		if animeID == 0 {
			animeID, err = d.DB.GetOrCreateAnime(ctx, p.Title, p.Type, p.Season,
				p.ImageURL, p.LocalImagePath, p.Year)
			if err != nil {
				return "", err
			}
			if err := d.DB.UpdateMetadataIfEmpty(ctx, animeID,
				p.TMDBID, p.IMDBID, p.TVDBID, p.DoubanID, p.BangumiID); err != nil {
				return "", err
			}
			sourceID, err = d.DB.LinkSourceToAnime(ctx, animeID, p.Provider, p.MediaID)
			if err != nil {
				return "", err
			}
		}

		episodeID, err := d.DB.CreateEpisodeIfNotExists(ctx, sourceID,
			ep.EpisodeIndex, ep.Title, ep.URL, ep.EpisodeID)
		if err != nil {
			return "", err
		}
		inserted, err := d.DB.BulkInsertComments(ctx, episodeID, comments)
		if err != nil {
			return "", err
		}
		total += inserted
		if err := d.markFetched(ctx, episodeID); err != nil {
			return "", err
		}
		d.mirrorByIDs(ctx, animeID, sourceID, episodeID)
	}

	if total == 0 {
		return "no new comments", nil
	}
	return fmt.Sprintf("imported %d comments", total), nil
}
