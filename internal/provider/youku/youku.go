// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package youku adapts Youku. Danmaku is served in one-minute pages
// keyed by the numeric video id, which is base64-encoded inside the
// public "X..." video token.
package youku

import (
	"context"
	"encoding/base64"
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
	searchURL      = "https://search.youku.com/api/search?keyword=%s"
	episodeListURL = "https://openapi.youku.com/v2/shows/videos.json?show_id=%s&page=1&count=200"
	danmakuURL     = "https://service.danmu.youku.com/list?mat=%d&mcount=1&ct=1001&iid=%d"

	// maxMinutes bounds the page walk for videos with no reported
	// duration.
	maxMinutes = 360
	// emptyPageStop ends the walk after this many consecutive empty
	// pages, tolerating silent minutes mid-video.
	emptyPageStop = 10
)

// Adapter implements provider.Provider for Youku.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the Youku adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("youku", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "youku" }

func (a *Adapter) HandledDomains() []string { return []string{"youku.com"} }

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"youkuCookie":                "Cookie",
		"youkuEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://www.youku.com" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(预告|速看版|会员专享)` }

type searchResponse struct {
	PageComponentList []struct {
		CommonData struct {
			ShowID       string `json:"showId"`
			EpisodeTotal int    `json:"episodeTotal"`
			Feature      string `json:"feature"`
			TitleDTO     struct {
				DisplayName string `json:"displayName"`
			} `json:"titleDTO"`
			PosterDTO struct {
				VThumbURL string `json:"vThumbUrl"`
			} `json:"posterDTO"`
		} `json:"commonData"`
	} `json:"pageComponentList"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(searchURL, url.QueryEscape(keyword)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("youku search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("youku search returned %d", status)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode youku search response: %w", err)
	}

	infos := make([]models.ProviderSearchInfo, 0, len(resp.PageComponentList))
	for _, item := range resp.PageComponentList {
		data := item.CommonData
		if data.ShowID == "" || data.TitleDTO.DisplayName == "" {
			continue
		}
		mediaType := models.MediaTypeTVSeries
		if strings.Contains(data.Feature, "电影") {
			mediaType = models.MediaTypeMovie
		}
		info := models.ProviderSearchInfo{
			Provider: "youku",
			MediaID:  data.ShowID,
			Title:    data.TitleDTO.DisplayName,
			Type:     mediaType,
			Season:   1,
			ImageURL: data.PosterDTO.VThumbURL,
		}
		if data.EpisodeTotal > 0 {
			count := data.EpisodeTotal
			info.EpisodeCount = &count
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	return nil, nil
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	vid := videoTokenFromURL(rawURL)
	if vid == "" {
		return "", fmt.Errorf("no video token in youku URL %q", rawURL)
	}
	return vid, nil
}

type videosResponse struct {
	Videos []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Duration string `json:"duration"`
	} `json:"videos"`
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(episodeListURL, url.QueryEscape(mediaID)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("youku episode list failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("youku episode list returned %d", status)
	}

	var resp videosResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode youku episode list: %w", err)
	}

	raw := make([]models.ProviderEpisodeInfo, 0, len(resp.Videos))
	for _, item := range resp.Videos {
		if item.ID == "" {
			continue
		}
		raw = append(raw, models.ProviderEpisodeInfo{
			Provider:  "youku",
			EpisodeID: item.ID,
			Title:     item.Title,
			URL:       item.Link,
		})
	}

	filtered := a.filter.Apply(ctx, "youku", a.DefaultBlacklist(), mediaType, raw)
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

type danmakuPage struct {
	Result []struct {
		ID        int64   `json:"id"`
		Playat    float64 `json:"playat"`
		Content   string  `json:"content"`
		Propertis string  `json:"propertis"`
	} `json:"result"`
}

// danmakuProps is the JSON blob inside each comment's propertis field.
type danmakuProps struct {
	Color int `json:"color"`
	Pos   int `json:"pos"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	iid, err := videoNumericID(episodeID)
	if err != nil {
		return nil, err
	}

	comments := []models.RawComment{}
	empty := 0
	for minute := 0; minute < maxMinutes; minute++ {
		body, status, err := a.client.Get(ctx,
			fmt.Sprintf(danmakuURL, minute, iid), a.headers(ctx))
		if err != nil {
			return nil, fmt.Errorf("youku danmaku fetch failed: %w", err)
		}
		if status != 200 {
			break
		}

		var page danmakuPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode youku danmaku page %d: %w", minute, err)
		}
		if len(page.Result) == 0 {
			empty++
			if empty >= emptyPageStop {
				break
			}
			continue
		}
		empty = 0

		for _, item := range page.Result {
			comments = append(comments, models.RawComment{
				CID:     strconv.FormatInt(item.ID, 10),
				TimeSec: item.Playat / 1000,
				Mode:    modeFromProps(item.Propertis),
				Color:   colorFromProps(item.Propertis),
				Text:    item.Content,
			})
		}

		if progress != nil {
			progress(minute*100/maxMinutes,
				fmt.Sprintf("Fetched danmaku minute %d", minute))
		}
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("youku has no action %q", name)
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://v.youku.com/",
	}
	if cookie, err := a.settings.Get(ctx, "youkuCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// videoTokenFromURL pulls the public "X..." token out of a watch URL
// such as https://v.youku.com/v_show/id_XNDU0MjQ4NzY4NA==.html.
func videoTokenFromURL(rawURL string) string {
	marker := "id_"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+len(marker):]
	for _, stop := range []string{".html", "?", "&"} {
		if cut := strings.Index(rest, stop); cut >= 0 {
			rest = rest[:cut]
		}
	}
	return rest
}

// videoNumericID decodes the public token into the numeric id the
// danmaku service expects. The token is "X" plus the base64 of the
// decimal id.
func videoNumericID(token string) (int64, error) {
	trimmed := strings.TrimPrefix(token, "X")
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid youku video token %q: %w", token, err)
	}
	id, err := strconv.ParseInt(string(decoded), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("youku video token %q is not numeric: %w", token, err)
	}
	return id, nil
}

func modeFromProps(props string) int {
	if props == "" {
		return 1
	}
	var p danmakuProps
	if err := json.Unmarshal([]byte(props), &p); err != nil {
		return 1
	}
	switch p.Pos {
	case 1:
		return 5
	case 2:
		return 4
	}
	return 1
}

func colorFromProps(props string) int {
	if props == "" {
		return 0xFFFFFF
	}
	var p danmakuProps
	if err := json.Unmarshal([]byte(props), &p); err != nil || p.Color == 0 {
		return 0xFFFFFF
	}
	return p.Color
}
