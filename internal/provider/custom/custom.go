// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package custom is the pseudo-provider backing manual imports. It
// owns sources created from uploaded danmaku files and never touches
// the network, so every fetch-style operation is a no-op or an error.
package custom

import (
	"context"
	"errors"

	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
)

// Name is the registry key for manually imported sources.
const Name = "custom"

// ErrManualOnly marks operations that only make sense for network
// providers.
var ErrManualOnly = errors.New("custom provider holds manually imported data only")

// Adapter implements provider.Provider for manually imported sources.
type Adapter struct{}

// New builds the custom pseudo-provider.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return Name }

func (a *Adapter) HandledDomains() []string { return nil }

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return false }

func (a *Adapter) ConfigurableFields() map[string]string { return nil }

func (a *Adapter) TestURL() string { return "" }

func (a *Adapter) DefaultBlacklist() string { return "" }

// Search never matches; manual sources are attached explicitly.
func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	return nil, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	return nil, ErrManualOnly
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	return "", ErrManualOnly
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	return nil, ErrManualOnly
}

// GetComments errors by contract: stored comments are read from the
// database, never re-fetched.
func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	return nil, ErrManualOnly
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, ErrManualOnly
}
