// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package jobs

import (
	"context"
	"fmt"

	"github.com/okanami/barrage/internal/task"
)

// ReorderEpisodes reassigns a source's episode indices to 1..n in the
// current sort order. Running it twice yields the same indices.
func ReorderEpisodes(d Deps, sourceID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, "reordering episodes"); err != nil {
			return "", err
		}
		if err := d.DB.ReindexEpisodes(ctx, sourceID); err != nil {
			return "", err
		}
		return "episodes reordered", nil
	}
}

// OffsetEpisodes shifts the given episodes' indices by a fixed delta.
// The caller pre-validates that no index drops below 1.
func OffsetEpisodes(d Deps, episodeIDs []int64, offset int) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, "offsetting episodes"); err != nil {
			return "", err
		}
		if err := d.DB.OffsetEpisodes(ctx, episodeIDs, offset); err != nil {
			return "", err
		}
		return fmt.Sprintf("offset %d episodes by %+d", len(episodeIDs), offset), nil
	}
}

// DeleteAnime removes a work with all its sources, episodes, and
// comments.
func DeleteAnime(d Deps, animeID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, "deleting work"); err != nil {
			return "", err
		}
		if err := d.DB.DeleteAnime(ctx, animeID); err != nil {
			return "", err
		}
		return "work deleted", nil
	}
}

// DeleteSource removes one source with its episodes and comments.
func DeleteSource(d Deps, sourceID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, "deleting source"); err != nil {
			return "", err
		}
		if err := d.DB.DeleteSource(ctx, sourceID); err != nil {
			return "", err
		}
		return "source deleted", nil
	}
}

// DeleteEpisode removes one episode and its comments.
func DeleteEpisode(d Deps, episodeID int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, "deleting episode"); err != nil {
			return "", err
		}
		if err := d.DB.DeleteEpisode(ctx, episodeID); err != nil {
			return "", err
		}
		return "episode deleted", nil
	}
}

// BulkDeleteEpisodes removes a batch of episodes, reporting progress
// per deletion.
func BulkDeleteEpisodes(d Deps, episodeIDs []int64) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		for i, id := range episodeIDs {
			if err := progress(i*100/max(len(episodeIDs), 1),
				fmt.Sprintf("deleting episode %d/%d", i+1, len(episodeIDs))); err != nil {
				return "", err
			}
			if err := d.DB.DeleteEpisode(ctx, id); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("deleted %d episodes", len(episodeIDs)), nil
	}
}
