// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package models

// ProviderSearchInfo is one search hit from a provider adapter.
type ProviderSearchInfo struct {
	Provider string    `json:"provider"`
	MediaID  string    `json:"mediaId"`
	Title    string    `json:"title"`
	Type     MediaType `json:"type"`
	Season   int       `json:"season"`
	Year     *int      `json:"year,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`

	// EpisodeCount is the number of episodes upstream reports, when known.
	EpisodeCount *int `json:"episodeCount,omitempty"`

	// CurrentEpisodeIndex carries the episode number parsed from the
	// current search request. Blanked before the result list is cached.
	CurrentEpisodeIndex *int `json:"currentEpisodeIndex,omitempty"`

	URL string `json:"url,omitempty"`
}

// ProviderEpisodeInfo is one playable episode listed by a provider
// adapter. EpisodeIndex is contiguous from 1 after junk filtering.
type ProviderEpisodeInfo struct {
	Provider     string `json:"provider"`
	EpisodeID    string `json:"episodeId"`
	Title        string `json:"title"`
	EpisodeIndex int    `json:"episodeIndex"`
	URL          string `json:"url,omitempty"`
}

// SearchResponse is the payload of the provider search endpoint. The
// parsed season and episode accompany the results so the caller can
// drive a single-episode import.
type SearchResponse struct {
	Results       []ProviderSearchInfo `json:"results"`
	SearchSeason  *int                 `json:"searchSeason,omitempty"`
	SearchEpisode *int                 `json:"searchEpisode,omitempty"`
}
