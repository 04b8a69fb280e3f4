// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package models defines the shared data structures for the Barrage
// application: the Work/Source/Episode/Comment library graph, provider
// result shapes, task records, and administrative entities.
package models

import "time"

// MediaType classifies a work.
type MediaType string

const (
	// MediaTypeMovie is a single-feature work.
	MediaTypeMovie MediaType = "movie"

	// MediaTypeTVSeries is an episodic work (includes variety shows).
	MediaTypeTVSeries MediaType = "tv_series"
)

// Anime is the canonical record for a title+season pair. Every imported
// source binds to exactly one Anime; (Title, Season) is unique.
type Anime struct {
	ID             int64     `json:"animeId"`
	Title          string    `json:"title"`
	Type           MediaType `json:"type"`
	Season         int       `json:"season"`
	Year           *int      `json:"year,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	LocalImagePath string    `json:"localImagePath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`

	// External metadata identifiers, filled lazily and never overwritten
	// once set.
	TMDBID             string `json:"tmdbId,omitempty"`
	IMDBID             string `json:"imdbId,omitempty"`
	TVDBID             string `json:"tvdbId,omitempty"`
	DoubanID           string `json:"doubanId,omitempty"`
	BangumiID          string `json:"bangumiId,omitempty"`
	TMDBEpisodeGroupID string `json:"tmdbEpisodeGroupId,omitempty"`
}

// Source binds one upstream platform's media to an Anime.
// (ProviderName, MediaID) is globally unique; at most one source per
// Anime carries IsFavorited.
type Source struct {
	ID                 int64     `json:"sourceId"`
	AnimeID            int64     `json:"animeId"`
	ProviderName       string    `json:"providerName"`
	MediaID            string    `json:"mediaId"`
	IsFavorited        bool      `json:"isFavorited"`
	IncrementalRefresh bool      `json:"incrementalRefreshEnabled"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Episode is a numbered unit of a Source; it owns comments.
// (SourceID, EpisodeIndex) is unique.
type Episode struct {
	ID                int64      `json:"episodeId"`
	SourceID          int64      `json:"sourceId"`
	EpisodeIndex      int        `json:"episodeIndex"`
	Title             string     `json:"title"`
	SourceURL         string     `json:"sourceUrl,omitempty"`
	ProviderEpisodeID string     `json:"providerEpisodeId"`
	FetchedAt         *time.Time `json:"fetchedAt,omitempty"`

	// CommentCount is populated by listing queries only.
	CommentCount int64 `json:"commentCount,omitempty"`
}

// Comment is one danmaku entry in the canonical wire shape.
// (EpisodeID, CID) is unique; inserts are idempotent.
//
// P is a CSV of five fields:
//
//	time_seconds(2dp),mode,font_size,color,[provider_tag]
//
// with mode 1=scroll, 4=bottom, 5=top. T mirrors the first field of P
// for indexed range queries.
type Comment struct {
	CID       string  `json:"cid"`
	EpisodeID int64   `json:"-"`
	P         string  `json:"p"`
	M         string  `json:"m"`
	T         float64 `json:"t"`
}

// RawComment is a provider-shaped comment before normalization.
// Adapters map their native payloads into this shape; the normalizer
// produces canonical Comments from it.
type RawComment struct {
	// CID is the provider-local comment identifier.
	CID string

	// TimeSec is the playback offset in seconds.
	TimeSec float64

	// Mode is the display mode in canonical numbering (1, 4, 5).
	Mode int

	// FontSize is the upstream font size; 0 means unknown.
	FontSize int

	// Color is the 24-bit RGB color.
	Color int

	// Text is the comment body as received.
	Text string
}
