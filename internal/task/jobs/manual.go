// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okanami/barrage/internal/danmaku"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider/custom"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/task"
)

// ManualImportParams describes one manually supplied episode. For the
// custom provider Content is a danmaku XML document or the
// line-oriented plain-text format; for network providers it is a watch
// URL resolved through the adapter.
type ManualImportParams struct {
	SourceID     int64  `json:"sourceId"`
	Title        string `json:"title"`
	EpisodeIndex int    `json:"episodeIndex"`
	Content      string `json:"content"`
	ProviderName string `json:"providerName"`
}

// ManualImport stores one episode from caller-supplied content.
func ManualImport(d Deps, p ManualImportParams) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		if err := progress(0, fmt.Sprintf("importing %s", p.Title)); err != nil {
			return "", err
		}
		inserted, err := importManualItem(ctx, d, p)
		if err != nil {
			return "", err
		}
		if inserted == 0 {
			return "no new comments", nil
		}
		return fmt.Sprintf("imported %d comments", inserted), nil
	}
}

// BatchManualImport applies ManualImport over a list. Items whose
// episode index already exists are skipped; a rate-limit pause aborts
// the pass (the rerun skips completed items); other failures are
// logged per item and do not stop the batch.
func BatchManualImport(d Deps, items []ManualImportParams) task.Factory {
	return func(ctx context.Context, progress task.ProgressFunc) (string, error) {
		imported, skipped, failed := 0, 0, 0
		for i, item := range items {
			if err := progress(i*100/max(len(items), 1),
				fmt.Sprintf("importing %s (%d/%d)", item.Title, i+1, len(items))); err != nil {
				return "", err
			}

			exists, err := episodeIndexExists(ctx, d, item.SourceID, item.EpisodeIndex)
			if err != nil {
				return "", err
			}
			if exists {
				skipped++
				continue
			}

			n, err := importManualItem(ctx, d, item)
			var limited *ratelimit.RateLimitedError
			if errors.As(err, &limited) {
				return "", err
			}
			if err != nil {
				logging.Warn().Err(err).Str("title", item.Title).
					Int("episode", item.EpisodeIndex).Msg("manual import item failed")
				failed++
				continue
			}
			imported += n
		}
		return fmt.Sprintf("imported %d comments (%d items skipped, %d failed)",
			imported, skipped, failed), nil
	}
}

func episodeIndexExists(ctx context.Context, d Deps, sourceID int64, episodeIndex int) (bool, error) {
	episodes, err := d.DB.ListEpisodesBySource(ctx, sourceID)
	if err != nil {
		return false, err
	}
	for _, ep := range episodes {
		if ep.EpisodeIndex == episodeIndex {
			return true, nil
		}
	}
	return false, nil
}

func importManualItem(ctx context.Context, d Deps, p ManualImportParams) (int, error) {
	source, err := d.DB.GetSource(ctx, p.SourceID)
	if err != nil {
		return 0, err
	}

	var comments []models.Comment
	var providerEpisodeID string
	var sourceURL string
	if p.ProviderName == custom.Name {
		comments, err = parseManualContent(p.Content)
		if err != nil {
			return 0, err
		}
		providerEpisodeID = fmt.Sprintf("manual-%d-%d", p.SourceID, p.EpisodeIndex)
	} else {
		// For network providers Content is the watch URL; it is kept
		// as the episode's sourceUrl.
		sourceURL = strings.TrimSpace(p.Content)
		adapter, err := d.Providers.Get(p.ProviderName)
		if err != nil {
			return 0, err
		}
		episodeID, err := adapter.GetIDFromURL(ctx, sourceURL)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve URL via %s: %w", p.ProviderName, err)
		}
		comments, err = d.fetchComments(ctx, adapter, episodeID)
		if err != nil {
			return 0, err
		}
		providerEpisodeID = episodeID
	}

	episodeID, err := d.DB.CreateEpisodeIfNotExists(ctx, p.SourceID,
		p.EpisodeIndex, p.Title, sourceURL, providerEpisodeID)
	if err != nil {
		return 0, err
	}
	inserted, err := d.DB.BulkInsertComments(ctx, episodeID, comments)
	if err != nil {
		return 0, err
	}
	if err := d.markFetched(ctx, episodeID); err != nil {
		return 0, err
	}
	d.mirrorByIDs(ctx, source.AnimeID, p.SourceID, episodeID)
	return inserted, nil
}

// parseManualContent accepts the custom XML format or the plain-text
// fallback, detected by the leading character.
func parseManualContent(content string) ([]models.Comment, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.New("empty danmaku content")
	}

	var raw []models.RawComment
	var err error
	if strings.HasPrefix(trimmed, "<") {
		raw, err = danmaku.ParseXML(strings.NewReader(trimmed))
	} else {
		raw, err = danmaku.ParsePlainText(strings.NewReader(trimmed))
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("no parsable danmaku entries in content")
	}
	return danmaku.Normalize("custom_xml", raw), nil
}
