// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package settings provides the dynamic configuration store: persistent
// key/value pairs with a lazy read-through in-process map. All runtime
// tunables live here so they can change without a restart.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
)

// defaultSettings seeds unknown keys on first read. Booleans and
// integers are stored as lowercase strings.
var defaultSettings = map[string]string{
	// Search pipeline.
	"searchCacheTtlSeconds":  "10800",
	"episodeCacheTtlSeconds": "3600",
	"searchFallbackEnabled":  "true",
	"searchResultLimit":      "50",
	"metadataAliasEnabled":   "true",

	// Provider HTTP behavior.
	"proxyUrl":               "",
	"proxyEnabled":           "false",
	"providerRetryCount":     "3",
	"providerTimeoutSeconds": "20",

	// Global junk-title filtering; per-provider regexes live under
	// <provider>EpisodeBlacklistRegex and default from the adapter.
	"globalEpisodeBlacklistRegex": "",

	// Download tasks.
	"downloadFallbackSegmentLimit": "100",
	"incrementalRefreshEnabled":    "true",

	// Webhook ingress.
	"webhookApiKey":          "",
	"webhookDelaySeconds":    "300",
	"webhookFallbackEnabled": "true",
	"webhookFilterMode":      "blacklist",
	"webhookFilterRegex":     "",

	// Danmaku output.
	"danmakuOutputLimitPerSource": "-1",
	"danmakuAggregationEnabled":   "true",
	"danmakuFileMirrorEnabled":    "false",

	// File mirror templates; ".xml" is appended when building paths.
	"customDanmakuPathTemplate":      "/data/danmaku/tv/${animeId}/${episodeId}",
	"customDanmakuPathTemplateMovie": "/data/danmaku/movie/${animeId}/${episodeId}",

	// Token endpoint.
	"tokenCustomDomain": "",
}

// Service is the dynamic configuration store. Reads go through an
// in-process map; misses fall through to the database and then to
// defaultSettings, which is persisted on first read.
type Service struct {
	db *database.DB

	mu    sync.RWMutex
	cache map[string]string
}

// NewService creates a settings service over the store.
func NewService(db *database.DB) *Service {
	return &Service{
		db:    db,
		cache: make(map[string]string),
	}
}

// Get returns the value for key, seeding the default when the key has
// never been written. Unknown keys without a default return "".
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	value, found, err := s.db.GetSetting(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if !found {
		def, hasDefault := defaultSettings[key]
		if !hasDefault {
			return "", nil
		}
		if err := s.db.SetSetting(ctx, key, def); err != nil {
			return "", fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
		value = def
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return value, nil
}

// GetBool reads a boolean setting. Unparseable values fall back to the
// provided default.
func (s *Service) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean setting, using fallback")
		return fallback, nil
	}
	return parsed, nil
}

// GetInt reads an integer setting. Unparseable values fall back to the
// provided default.
func (s *Service) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", value).Msg("Invalid integer setting, using fallback")
		return fallback, nil
	}
	return parsed, nil
}

// GetFloat reads a float setting. Unparseable values fall back to the
// provided default.
func (s *Service) GetFloat(ctx context.Context, key string, fallback float64) (float64, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn().Str("key", key).Str("value", value).Msg("Invalid float setting, using fallback")
		return fallback, nil
	}
	return parsed, nil
}

// Set persists a setting and updates the in-process map.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.db.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("failed to persist setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// Invalidate drops a key from the in-process map so the next read hits
// the database. Used when another process may have written the store.
func (s *Service) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

// All returns every persisted setting merged over the defaults, for the
// admin settings endpoint.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	stored, err := s.db.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	merged := make(map[string]string, len(defaultSettings)+len(stored))
	for key, value := range defaultSettings {
		merged[key] = value
	}
	for key, value := range stored {
		merged[key] = value
	}
	return merged, nil
}
