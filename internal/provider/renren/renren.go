// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package renren adapts Renren Video. Danmaku comes back as a single
// JSON list per episode whose entries carry a comma-joined "p"
// attribute in the same shape bilibili uses.
package renren

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
	searchURL      = "https://api.rrmj.plus/m-station/search/drama?keywords=%s&size=20&order=MATCH&search_after=&isExecuteVipActivity=true"
	dramaPageURL   = "https://api.rrmj.plus/m-station/drama/page?hsdrOpen=0&isAgeLimit=0&dramaId=%s&hevcOpen=1"
	danmakuListURL = "https://static.rrmj.plus/barrage/%s.json"
)

// Adapter implements provider.Provider for Renren Video.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the Renren adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("renren", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "renren" }

func (a *Adapter) HandledDomains() []string { return []string{"rrmj.plus", "rrsp.com.cn"} }

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"renrenCookie":                "Cookie",
		"renrenEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://rrsp.com.cn" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(抢先看|精彩片段)` }

type searchResponse struct {
	Data struct {
		SearchDramaList []struct {
			ID           int64  `json:"id"`
			Title        string `json:"title"`
			Year         int    `json:"year"`
			Cover        string `json:"cover"`
			EpisodeTotal int    `json:"episodeTotal"`
			ClassifyList []struct {
				ClassifyName string `json:"classifyName"`
			} `json:"classifyList"`
		} `json:"searchDramaList"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(searchURL, url.QueryEscape(keyword)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("renren search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("renren search returned %d", status)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode renren search response: %w", err)
	}

	infos := make([]models.ProviderSearchInfo, 0, len(resp.Data.SearchDramaList))
	for _, item := range resp.Data.SearchDramaList {
		if item.ID == 0 {
			continue
		}
		mediaType := models.MediaTypeTVSeries
		for _, classify := range item.ClassifyList {
			if classify.ClassifyName == "电影" {
				mediaType = models.MediaTypeMovie
				break
			}
		}
		info := models.ProviderSearchInfo{
			Provider: "renren",
			MediaID:  strconv.FormatInt(item.ID, 10),
			Title:    stripHighlightTags(item.Title),
			Type:     mediaType,
			Season:   1,
			ImageURL: item.Cover,
		}
		if item.Year > 0 {
			year := item.Year
			info.Year = &year
		}
		if item.EpisodeTotal > 0 {
			count := item.EpisodeTotal
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
	id := dramaIDFromURL(rawURL)
	if id == "" {
		return "", fmt.Errorf("no drama id in renren URL %q", rawURL)
	}
	return id, nil
}

type dramaPageResponse struct {
	Data struct {
		EpisodeList []struct {
			Sid     string `json:"sid"`
			Title   string `json:"title"`
			Episode string `json:"episodeNo"`
		} `json:"episodeList"`
	} `json:"data"`
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(dramaPageURL, url.QueryEscape(mediaID)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("renren episode list failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("renren episode list returned %d", status)
	}

	var resp dramaPageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode renren drama page: %w", err)
	}

	raw := make([]models.ProviderEpisodeInfo, 0, len(resp.Data.EpisodeList))
	for _, item := range resp.Data.EpisodeList {
		if item.Sid == "" {
			continue
		}
		title := item.Title
		if title == "" && item.Episode != "" {
			title = "第" + item.Episode + "集"
		}
		raw = append(raw, models.ProviderEpisodeInfo{
			Provider:  "renren",
			EpisodeID: item.Sid,
			Title:     title,
		})
	}

	filtered := a.filter.Apply(ctx, "renren", a.DefaultBlacklist(), mediaType, raw)
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

type barrageItem struct {
	D string `json:"d"`
	P string `json:"p"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf(danmakuListURL, url.PathEscape(episodeID)), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("renren danmaku fetch failed: %w", err)
	}
	if status == 404 {
		return nil, nil
	}
	if status != 200 {
		return nil, fmt.Errorf("renren danmaku returned %d", status)
	}

	var items []barrageItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to decode renren danmaku list: %w", err)
	}

	comments := make([]models.RawComment, 0, len(items))
	for _, item := range items {
		raw, ok := parseBarrageAttr(item.P, item.D)
		if !ok {
			continue
		}
		comments = append(comments, raw)
	}
	if progress != nil {
		progress(100, fmt.Sprintf("Fetched %d comments", len(comments)))
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("renren has no action %q", name)
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://rrsp.com.cn/",
	}
	if cookie, err := a.settings.Get(ctx, "renrenCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// parseBarrageAttr decodes "time,mode,size,color[,uid[,cid]]". Scroll
// variants collapse to mode 1; entries without a cid get a synthetic
// one from time and text.
func parseBarrageAttr(p, text string) (models.RawComment, bool) {
	fields := strings.Split(p, ",")
	if len(fields) < 4 {
		return models.RawComment{}, false
	}
	timeSec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return models.RawComment{}, false
	}
	mode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return models.RawComment{}, false
	}
	if mode >= 1 && mode <= 3 {
		mode = 1
	}
	color, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil || color <= 0 {
		color = 0xFFFFFF
	}

	cid := ""
	if len(fields) >= 6 {
		cid = strings.TrimSpace(fields[5])
	}
	if cid == "" {
		cid = fields[0] + ":" + text
	}

	return models.RawComment{
		CID:     cid,
		TimeSec: timeSec,
		Mode:    mode,
		Color:   color,
		Text:    text,
	}, true
}

// dramaIDFromURL parses watch URLs shaped like
// https://rrsp.com.cn/v/{dramaId} or .../detail/{dramaId}.
func dramaIDFromURL(rawURL string) string {
	for _, marker := range []string{"/v/", "/detail/"} {
		idx := strings.Index(rawURL, marker)
		if idx < 0 {
			continue
		}
		rest := rawURL[idx+len(marker):]
		if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
			rest = rest[:cut]
		}
		if rest != "" {
			return rest
		}
	}
	return ""
}

func stripHighlightTags(title string) string {
	replacer := strings.NewReplacer("<em>", "", "</em>", "")
	return replacer.Replace(title)
}
