// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package mgtv adapts Mango TV. The barrage endpoint pages by
// millisecond time ticks in 60-second steps, keyed by collection id
// and video id, so episode ids here are "cid,vid" pairs.
package mgtv

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/settings"
)

const (
	searchURL      = "https://mobileso.bz.mgtv.com/msite/search/v2?q=%s&pc=30&pn=1"
	episodeListURL = "https://pcweb.api.mgtv.com/episode/list?collection_id=%s&page=1&size=100"
	barrageURL     = "https://galaxy.bz.mgtv.com/rdbarrage?vid=%s&cid=%s&time=%d"

	tickMillis = 60_000
	// maxTicks bounds the walk for videos with no reported duration.
	maxTicks = 360
	// emptyTickStop ends the walk after this many consecutive empty
	// ticks.
	emptyTickStop = 5
)

// Adapter implements provider.Provider for Mango TV.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the Mango TV adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("mgtv", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "mgtv" }

func (a *Adapter) HandledDomains() []string { return []string{"mgtv.com"} }

// Mango TV throttles aggressively; cap requests within the shared
// window.
func (a *Adapter) RateLimitQuota() int { return 50 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"mgtvCookie":                "Cookie",
		"mgtvEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://www.mgtv.com" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(会员版|花絮集锦|超前点播预告)` }

type searchResponse struct {
	Data struct {
		Contents []struct {
			Type string `json:"type"`
			Data []struct {
				ClipID string   `json:"clipId"`
				Title  string   `json:"title"`
				Desc   []string `json:"desc"`
				Image  string   `json:"img"`
				URL    string   `json:"url"`
				Source string   `json:"source"`
			} `json:"data"`
		} `json:"contents"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(searchURL, url.QueryEscape(keyword)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("mgtv search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("mgtv search returned %d", status)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode mgtv search response: %w", err)
	}

	infos := []models.ProviderSearchInfo{}
	for _, block := range resp.Data.Contents {
		if block.Type != "media" {
			continue
		}
		for _, item := range block.Data {
			if item.ClipID == "" || item.Source != "imgo" {
				continue
			}
			mediaType := models.MediaTypeTVSeries
			for _, line := range item.Desc {
				if strings.Contains(line, "类型/电影") || strings.HasPrefix(line, "电影") {
					mediaType = models.MediaTypeMovie
					break
				}
			}
			infos = append(infos, models.ProviderSearchInfo{
				Provider: "mgtv",
				MediaID:  item.ClipID,
				Title:    stripHighlightTags(item.Title),
				Type:     mediaType,
				Season:   1,
				ImageURL: item.Image,
				URL:      item.URL,
			})
		}
	}
	return infos, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	return nil, nil
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	cid, vid := idsFromURL(rawURL)
	if cid == "" || vid == "" {
		return "", fmt.Errorf("no collection/video ids in mgtv URL %q", rawURL)
	}
	return cid + "," + vid, nil
}

type episodeListResponse struct {
	Data struct {
		List []struct {
			VideoID string `json:"video_id"`
			Title   string `json:"t1"`
			SubDesc string `json:"t2"`
			URL     string `json:"url"`
		} `json:"list"`
	} `json:"data"`
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(episodeListURL, url.QueryEscape(mediaID)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("mgtv episode list failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("mgtv episode list returned %d", status)
	}

	var resp episodeListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode mgtv episode list: %w", err)
	}

	raw := make([]models.ProviderEpisodeInfo, 0, len(resp.Data.List))
	for _, item := range resp.Data.List {
		if item.VideoID == "" {
			continue
		}
		title := item.Title
		if title == "" {
			title = item.SubDesc
		}
		raw = append(raw, models.ProviderEpisodeInfo{
			Provider:  "mgtv",
			EpisodeID: mediaID + "," + item.VideoID,
			Title:     title,
			URL:       item.URL,
		})
	}

	filtered := a.filter.Apply(ctx, "mgtv", a.DefaultBlacklist(), mediaType, raw)
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

type barrageResponse struct {
	Data struct {
		Items []struct {
			ID      int64  `json:"id"`
			Time    int64  `json:"time"`
			Type    int    `json:"type"`
			Content string `json:"content"`
			Color   struct {
				ColorLeft struct {
					R int `json:"r"`
					G int `json:"g"`
					B int `json:"b"`
				} `json:"color_left"`
			} `json:"v2_color"`
		} `json:"items"`
	} `json:"data"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	cid, vid, err := splitEpisodeID(episodeID)
	if err != nil {
		return nil, err
	}

	comments := []models.RawComment{}
	empty := 0
	for tick := 0; tick < maxTicks; tick++ {
		body, status, err := a.client.Get(ctx,
			fmt.Sprintf(barrageURL, vid, cid, tick*tickMillis), a.headers(ctx))
		if err != nil {
			return nil, fmt.Errorf("mgtv barrage fetch failed: %w", err)
		}
		if status != 200 {
			break
		}

		var resp barrageResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode mgtv barrage tick %d: %w", tick, err)
		}
		if len(resp.Data.Items) == 0 {
			empty++
			if empty >= emptyTickStop {
				break
			}
			continue
		}
		empty = 0

		for _, item := range resp.Data.Items {
			left := item.Color.ColorLeft
			color := left.R<<16 | left.G<<8 | left.B
			if color == 0 {
				color = 0xFFFFFF
			}
			comments = append(comments, models.RawComment{
				CID:     strconv.FormatInt(item.ID, 10),
				TimeSec: float64(item.Time) / 1000,
				Mode:    modeFromType(item.Type),
				Color:   color,
				Text:    item.Content,
			})
		}

		if progress != nil {
			progress(tick*100/maxTicks,
				fmt.Sprintf("Fetched barrage tick %d", tick))
		}
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("mgtv has no action %q", name)
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://www.mgtv.com/",
	}
	if cookie, err := a.settings.Get(ctx, "mgtvCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// idsFromURL parses watch URLs shaped like
// https://www.mgtv.com/b/{cid}/{vid}.html.
func idsFromURL(rawURL string) (cid, vid string) {
	marker := "/b/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return "", ""
	}
	rest := rawURL[idx+len(marker):]
	if cut := strings.IndexAny(rest, "?#"); cut >= 0 {
		rest = rest[:cut]
	}
	rest = strings.TrimSuffix(rest, ".html")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

func splitEpisodeID(episodeID string) (cid, vid string, err error) {
	parts := strings.Split(episodeID, ",")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed mgtv episode id %q", episodeID)
	}
	return parts[0], parts[1], nil
}

// stripHighlightTags removes the <B>...</B> markers the search API
// wraps around matched keywords.
func stripHighlightTags(title string) string {
	replacer := strings.NewReplacer("<B>", "", "</B>", "", "<b>", "", "</b>", "")
	return replacer.Replace(title)
}

func modeFromType(barrageType int) int {
	switch barrageType {
	case 1:
		return 5
	case 2:
		return 4
	}
	return 1
}
