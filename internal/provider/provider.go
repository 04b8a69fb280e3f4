// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package provider defines the upstream platform adapter contract and
// the shared machinery every adapter builds on: the registry, the
// junk-title filter, the renumbering pass and the resilient HTTP
// client.
package provider

import (
	"context"

	"github.com/okanami/barrage/internal/models"
)

// EpisodeHint narrows a search to a specific season or episode.
type EpisodeHint struct {
	Season  int
	Episode int
}

// Provider is the contract every upstream platform adapter implements.
// Operations return empty results rather than errors when the platform
// simply has nothing.
type Provider interface {
	// Name is the stable provider identifier, e.g. "bilibili".
	Name() string

	// HandledDomains routes provider URLs to this adapter.
	HandledDomains() []string

	// RateLimitQuota is the per-provider fetch cap per window;
	// ratelimit.UnlimitedQuota when the platform imposes none.
	RateLimitQuota() int

	// Loggable reports whether raw upstream responses may be logged.
	Loggable() bool

	// ConfigurableFields maps settings keys to human labels for the
	// admin UI, e.g. cookie and blacklist fields.
	ConfigurableFields() map[string]string

	// TestURL is the connectivity probe target.
	TestURL() string

	// DefaultBlacklist is the provider's built-in junk-episode regex,
	// overridable via settings.
	DefaultBlacklist() string

	// Search finds works matching the keyword.
	Search(ctx context.Context, keyword string, hint *EpisodeHint) ([]models.ProviderSearchInfo, error)

	// GetInfoFromURL resolves a provider URL to a search hit. Returns
	// nil when the URL holds no recognizable media.
	GetInfoFromURL(ctx context.Context, url string) (*models.ProviderSearchInfo, error)

	// GetIDFromURL extracts the provider-local episode ID from a URL.
	GetIDFromURL(ctx context.Context, url string) (string, error)

	// GetEpisodes lists a media's episodes, junk-filtered and
	// renumbered contiguously from 1. targetIndex limits the fetch to
	// one episode when the platform supports it; 0 means all.
	GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error)

	// GetComments fetches the raw danmaku for one episode. Callers
	// must pass the rate limiter's Check first and Increment after
	// success.
	GetComments(ctx context.Context, episodeID string, progress func(percent int, message string)) ([]models.RawComment, error)

	// FormatEpisodeIDForComments canonicalizes the value returned by
	// GetIDFromURL for storage. Identity for most providers.
	FormatEpisodeIDForComments(raw string) string

	// ExecuteAction runs a provider-specific admin action by name with
	// a JSON payload, e.g. a login QR flow.
	ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error)
}
