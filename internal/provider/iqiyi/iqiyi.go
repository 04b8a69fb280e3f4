// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package iqiyi adapts iQIYI: suggest-based search, album episode
// listing, and the zlib-compressed bullet XML served in 300-second
// segments.
package iqiyi

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/settings"
)

const (
	searchURL      = "https://suggest.video.iqiyi.com/?if=mobile&key=%s"
	episodeListURL = "https://pcw-api.iqiyi.com/albums/album/avlistinfo?aid=%s&page=1&size=500"
	bulletURL      = "https://cmts.iqiyi.com/bullet/%s/%s/%s_300_%d.z"

	segmentSeconds = 300
	// maxSegments bounds the fetch when the episode duration is not
	// reported upstream.
	maxSegments = 60
)

// Adapter implements provider.Provider for iQIYI.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the iQIYI adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("iqiyi", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "iqiyi" }

func (a *Adapter) HandledDomains() []string { return []string{"iqiyi.com", "iq.com"} }

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"iqiyiCookie":                "Cookie",
		"iqiyiEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://www.iqiyi.com" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(加更|纯享版|独家直拍)` }

type suggestResponse struct {
	Data []struct {
		AlbumID   int64  `json:"aid"`
		Name      string `json:"name"`
		Cid       int    `json:"cid"`
		Year      string `json:"year"`
		ImageURL  string `json:"apic"`
		ItemTotal int    `json:"itemTotalNumber"`
		PlayURL   string `json:"playUrl"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(searchURL, url.QueryEscape(keyword)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("iqiyi search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("iqiyi search returned %d", status)
	}

	var resp suggestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode iqiyi search response: %w", err)
	}

	infos := make([]models.ProviderSearchInfo, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.AlbumID == 0 {
			continue
		}
		mediaType := models.MediaTypeTVSeries
		// channel 1 is the movie channel.
		if item.Cid == 1 {
			mediaType = models.MediaTypeMovie
		}
		info := models.ProviderSearchInfo{
			Provider: "iqiyi",
			MediaID:  strconv.FormatInt(item.AlbumID, 10),
			Title:    item.Name,
			Type:     mediaType,
			Season:   1,
			ImageURL: item.ImageURL,
			URL:      item.PlayURL,
		}
		if year, err := strconv.Atoi(item.Year); err == nil && year > 0 {
			info.Year = &year
		}
		if item.ItemTotal > 0 {
			count := item.ItemTotal
			info.EpisodeCount = &count
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	// iQIYI watch URLs do not expose the album id; resolve via the
	// episode's tvid is out of scope for URL import.
	return nil, nil
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	// v_{vid}.html carries the video token; the comment endpoint needs
	// the numeric tvid which adapters resolve at fetch time.
	idx := strings.Index(rawURL, "v_")
	if idx < 0 {
		return "", fmt.Errorf("no video token in iqiyi URL %q", rawURL)
	}
	rest := rawURL[idx+2:]
	if dot := strings.IndexByte(rest, '.'); dot > 0 {
		rest = rest[:dot]
	}
	return rest, nil
}

type albumListResponse struct {
	Data struct {
		EpsodeList []struct {
			TvID     int64  `json:"tvId"`
			Name     string `json:"name"`
			PlayURL  string `json:"playUrl"`
			Duration string `json:"duration"`
		} `json:"epsodelist"`
	} `json:"data"`
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(episodeListURL, url.QueryEscape(mediaID)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("iqiyi episode list failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("iqiyi episode list returned %d", status)
	}

	var resp albumListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode iqiyi episode list: %w", err)
	}

	raw := make([]models.ProviderEpisodeInfo, 0, len(resp.Data.EpsodeList))
	for _, item := range resp.Data.EpsodeList {
		if item.TvID == 0 {
			continue
		}
		raw = append(raw, models.ProviderEpisodeInfo{
			Provider:  "iqiyi",
			EpisodeID: strconv.FormatInt(item.TvID, 10),
			Title:     item.Name,
			URL:       item.PlayURL,
		})
	}

	filtered := a.filter.Apply(ctx, "iqiyi", a.DefaultBlacklist(), mediaType, raw)
	if targetIndex > 0 {
		for _, ep := range filtered {
			if ep.EpisodeIndex == targetIndex {
				return []models.ProviderEpisodeInfo{ep}, nil
			}
		}
		return nil, nil
	}
	return filtered, nil
}

// bulletDoc is one decompressed 300-second bullet segment.
type bulletDoc struct {
	Entries []struct {
		ContentID string `xml:"contentId"`
		Content   string `xml:"content"`
		ShowTime  string `xml:"showTime"`
		Color     string `xml:"color"`
		Position  int    `xml:"position"`
	} `xml:"data>entry>list>bulletInfo"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	if len(episodeID) < 4 {
		return nil, fmt.Errorf("iqiyi tvid %q too short", episodeID)
	}
	// Bullet path shards by tvid digits: .../{tvid[-4:-2]}/{tvid[-2:]}/{tvid}_300_{n}.z
	dir1 := episodeID[len(episodeID)-4 : len(episodeID)-2]
	dir2 := episodeID[len(episodeID)-2:]

	comments := []models.RawComment{}
	for segment := 1; segment <= maxSegments; segment++ {
		body, status, err := a.client.Get(ctx,
			fmt.Sprintf(bulletURL, dir1, dir2, episodeID, segment), a.headers(ctx))
		if err != nil {
			return nil, fmt.Errorf("iqiyi bullet fetch failed: %w", err)
		}
		if status == 404 {
			// Past the end of the video.
			break
		}
		if status != 200 {
			continue
		}

		doc, err := decodeBulletSegment(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode iqiyi bullet segment %d: %w", segment, err)
		}
		if len(doc.Entries) == 0 {
			break
		}
		for _, entry := range doc.Entries {
			showTime, err := strconv.ParseFloat(entry.ShowTime, 64)
			if err != nil {
				continue
			}
			comments = append(comments, models.RawComment{
				CID:     entry.ContentID,
				TimeSec: showTime,
				Mode:    positionToMode(entry.Position),
				Color:   parseHexColor(entry.Color),
				Text:    entry.Content,
			})
		}

		if progress != nil {
			progress(segment*100/maxSegments,
				fmt.Sprintf("Fetched bullet segment %d", segment))
		}
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("iqiyi has no action %q", name)
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://www.iqiyi.com/",
	}
	if cookie, err := a.settings.Get(ctx, "iqiyiCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// decodeBulletSegment zlib-inflates and XML-decodes one segment.
func decodeBulletSegment(compressed []byte) (*bulletDoc, error) {
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer func() { _ = reader.Close() }()

	raw, err := io.ReadAll(io.LimitReader(reader, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate bullet segment: %w", err)
	}

	var doc bulletDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bullet XML: %w", err)
	}
	return &doc, nil
}

func positionToMode(position int) int {
	switch position {
	case 1:
		return 5
	case 2:
		return 4
	}
	return 1
}

func parseHexColor(color string) int {
	if color == "" {
		return 0xFFFFFF
	}
	value, err := strconv.ParseInt(strings.TrimPrefix(color, "#"), 16, 32)
	if err != nil {
		return 0xFFFFFF
	}
	return int(value)
}
