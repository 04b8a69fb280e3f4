// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package danmaku

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/settings"
)

// PathVars feeds the mirror path template.
type PathVars struct {
	Title     string
	Season    int
	Episode   int
	Year      int
	Provider  string
	AnimeID   int64
	SourceID  int64
	EpisodeID int64
}

// BuildPath expands the template tokens and appends the .xml suffix.
// Title and provider are sanitized so they cannot introduce extra path
// segments.
func BuildPath(template string, vars PathVars) string {
	replacer := strings.NewReplacer(
		"${title}", sanitizeSegment(vars.Title),
		"${season}", strconv.Itoa(vars.Season),
		"${episode}", strconv.Itoa(vars.Episode),
		"${year}", strconv.Itoa(vars.Year),
		"${provider}", sanitizeSegment(vars.Provider),
		"${animeId}", strconv.FormatInt(vars.AnimeID, 10),
		"${sourceId}", strconv.FormatInt(vars.SourceID, 10),
		"${episodeId}", strconv.FormatInt(vars.EpisodeID, 10),
	)
	return replacer.Replace(template) + ".xml"
}

// sanitizeSegment keeps user-controlled values inside a single path
// segment.
func sanitizeSegment(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", "\x00", "")
	return replacer.Replace(s)
}

// Mirror writes episode danmaku to disk alongside the database when
// the file mirror is enabled in settings.
type Mirror struct {
	settings *settings.Service
}

// NewMirror builds the file mirror.
func NewMirror(svc *settings.Service) *Mirror {
	return &Mirror{settings: svc}
}

// Write persists the comments as an interchange-format XML file. It is
// a no-op when the mirror is disabled or the media type has no
// template configured. Mirror failures are logged, not fatal; the
// database stays the source of truth.
func (m *Mirror) Write(ctx context.Context, mediaType models.MediaType, vars PathVars, comments []models.Comment) error {
	enabled, err := m.settings.GetBool(ctx, "danmakuFileMirrorEnabled", false)
	if err != nil || !enabled {
		return err
	}

	key := "customDanmakuPathTemplate"
	if mediaType == models.MediaTypeMovie {
		key = "customDanmakuPathTemplateMovie"
	}
	template, err := m.settings.Get(ctx, key)
	if err != nil {
		return err
	}
	if template == "" {
		return nil
	}

	path := BuildPath(template, vars)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create danmaku mirror directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create danmaku mirror file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Warn().Err(cerr).Str("path", path).Msg("failed to close danmaku mirror file")
		}
	}()

	if err := WriteXML(f, comments); err != nil {
		return fmt.Errorf("failed to write danmaku mirror file: %w", err)
	}
	logging.Debug().Str("path", path).Int("comments", len(comments)).Msg("wrote danmaku mirror file")
	return nil
}
