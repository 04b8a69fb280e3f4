// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package tencent adapts Tencent Video: cover-based search and episode
// listing, and the segmented barrage endpoint (one index document, then
// one fetch per 30-second segment).
package tencent

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
	searchURL       = "https://pbaccess.video.qq.com/trpc.videosearch.smartboxServer.HttpRpc/SmartboxHttp"
	episodeListURL  = "https://pbaccess.video.qq.com/trpc.universal_backend_service.page_server_rpc.PageServer/GetPageData"
	barrageIndexURL = "https://dm.video.qq.com/barrage/base/%s"
	barrageSegURL   = "https://dm.video.qq.com/barrage/segment/%s/%s"
)

// Adapter implements provider.Provider for Tencent Video.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the Tencent Video adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("tencent", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "tencent" }

func (a *Adapter) HandledDomains() []string { return []string{"v.qq.com"} }

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"tencentCookie":                "Cookie",
		"tencentEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://v.qq.com" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(vip片花|精彩片段|会员抢先)` }

type smartboxResponse struct {
	Data struct {
		SmartboxItemList []struct {
			DataBoxV2 struct {
				ID         string `json:"id"`
				Title      string `json:"title"`
				TypeName   string `json:"typeName"`
				Year       string `json:"year"`
				ImageURL   string `json:"imgUrl"`
				VideoNum   string `json:"videoNum"`
				WebPlayURL string `json:"webPlayUrl"`
			} `json:"dataBoxV2"`
		} `json:"smartboxItemListAll"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		searchURL+"?query="+url.QueryEscape(keyword), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("tencent search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("tencent search returned %d", status)
	}

	var resp smartboxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode tencent search response: %w", err)
	}

	infos := make([]models.ProviderSearchInfo, 0, len(resp.Data.SmartboxItemList))
	for _, item := range resp.Data.SmartboxItemList {
		box := item.DataBoxV2
		if box.ID == "" {
			continue
		}
		mediaType := models.MediaTypeTVSeries
		if box.TypeName == "电影" {
			mediaType = models.MediaTypeMovie
		}
		info := models.ProviderSearchInfo{
			Provider: "tencent",
			MediaID:  box.ID,
			Title:    box.Title,
			Type:     mediaType,
			Season:   1,
			ImageURL: box.ImageURL,
			URL:      box.WebPlayURL,
		}
		if year, err := strconv.Atoi(box.Year); err == nil && year > 0 {
			info.Year = &year
		}
		if num, err := strconv.Atoi(box.VideoNum); err == nil && num > 0 {
			info.EpisodeCount = &num
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	cid := coverIDFromURL(rawURL)
	if cid == "" {
		return nil, nil
	}
	episodes, err := a.GetEpisodes(ctx, cid, 0, models.MediaTypeTVSeries)
	if err != nil {
		return nil, err
	}
	count := len(episodes)
	return &models.ProviderSearchInfo{
		Provider:     "tencent",
		MediaID:      cid,
		Title:        cid,
		Type:         models.MediaTypeTVSeries,
		Season:       1,
		EpisodeCount: &count,
	}, nil
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	vid := videoIDFromURL(rawURL)
	if vid == "" {
		return "", fmt.Errorf("no video id in tencent URL %q", rawURL)
	}
	return vid, nil
}

type pageDataResponse struct {
	Data struct {
		ModuleListDatas []struct {
			ModuleDatas []struct {
				ItemDataLists struct {
					ItemDatas []struct {
						ItemParams struct {
							VID     string `json:"vid"`
							Title   string `json:"title"`
							PlayURL string `json:"playUrl"`
						} `json:"itemParams"`
					} `json:"itemDatas"`
				} `json:"itemDataLists"`
			} `json:"moduleDatas"`
		} `json:"moduleListDatas"`
	} `json:"data"`
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	body, status, err := a.client.Get(ctx,
		episodeListURL+"?page_type=detail_operation&cid="+url.QueryEscape(mediaID),
		a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("tencent episode list failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("tencent episode list returned %d", status)
	}

	var resp pageDataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode tencent episode list: %w", err)
	}

	raw := []models.ProviderEpisodeInfo{}
	for _, moduleList := range resp.Data.ModuleListDatas {
		for _, module := range moduleList.ModuleDatas {
			for _, item := range module.ItemDataLists.ItemDatas {
				if item.ItemParams.VID == "" {
					continue
				}
				raw = append(raw, models.ProviderEpisodeInfo{
					Provider:  "tencent",
					EpisodeID: item.ItemParams.VID,
					Title:     item.ItemParams.Title,
					URL:       item.ItemParams.PlayURL,
				})
			}
		}
	}

	filtered := a.filter.Apply(ctx, "tencent", a.DefaultBlacklist(), mediaType, raw)
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

type barrageIndex struct {
	SegmentIndex map[string]struct {
		SegmentName string `json:"segment_name"`
	} `json:"segment_index"`
}

type barrageSegment struct {
	BarrageList []struct {
		ID           string `json:"id"`
		Content      string `json:"content"`
		TimeOffset   string `json:"time_offset"`
		ContentStyle string `json:"content_style"`
	} `json:"barrage_list"`
}

// contentStyle carries optional color/position overrides as nested JSON.
type contentStyle struct {
	Color    string `json:"color"`
	Position int    `json:"position"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	body, status, err := a.client.Get(ctx, fmt.Sprintf(barrageIndexURL, episodeID), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("tencent barrage index failed: %w", err)
	}
	if status != 200 {
		return nil, nil
	}

	var index barrageIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("failed to decode tencent barrage index: %w", err)
	}
	if len(index.SegmentIndex) == 0 {
		return nil, nil
	}

	// Segment keys are numeric offsets; fetch in any order, the
	// normalizer sorts by time.
	comments := []models.RawComment{}
	fetched := 0
	for _, seg := range index.SegmentIndex {
		segBody, segStatus, err := a.client.Get(ctx,
			fmt.Sprintf(barrageSegURL, episodeID, seg.SegmentName), a.headers(ctx))
		if err != nil {
			return nil, fmt.Errorf("tencent barrage segment failed: %w", err)
		}
		if segStatus != 200 {
			continue
		}

		var segment barrageSegment
		if err := json.Unmarshal(segBody, &segment); err != nil {
			return nil, fmt.Errorf("failed to decode tencent barrage segment: %w", err)
		}
		for _, item := range segment.BarrageList {
			offsetMs, err := strconv.ParseFloat(item.TimeOffset, 64)
			if err != nil {
				continue
			}
			comments = append(comments, models.RawComment{
				CID:     item.ID,
				TimeSec: offsetMs / 1000,
				Mode:    modeFromStyle(item.ContentStyle),
				Color:   colorFromStyle(item.ContentStyle),
				Text:    item.Content,
			})
		}

		fetched++
		if progress != nil {
			progress(fetched*100/len(index.SegmentIndex),
				fmt.Sprintf("Fetched segment %d/%d", fetched, len(index.SegmentIndex)))
		}
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("tencent has no action %q", name)
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://v.qq.com/",
	}
	if cookie, err := a.settings.Get(ctx, "tencentCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// modeFromStyle maps the style position to canonical modes: 2 top,
// 3 bottom, everything else scroll.
func modeFromStyle(style string) int {
	var cs contentStyle
	if style == "" || json.Unmarshal([]byte(style), &cs) != nil {
		return 1
	}
	switch cs.Position {
	case 2:
		return 5
	case 3:
		return 4
	}
	return 1
}

func colorFromStyle(style string) int {
	var cs contentStyle
	if style == "" || json.Unmarshal([]byte(style), &cs) != nil {
		return 0xFFFFFF
	}
	if cs.Color == "" {
		return 0xFFFFFF
	}
	color, err := strconv.ParseInt(strings.TrimPrefix(cs.Color, "#"), 16, 32)
	if err != nil {
		return 0xFFFFFF
	}
	return int(color)
}

// coverIDFromURL extracts the cover id from /x/cover/{cid}.html or
// /x/cover/{cid}/{vid}.html URLs.
func coverIDFromURL(rawURL string) string {
	idx := strings.Index(rawURL, "/cover/")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+len("/cover/"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' || rest[i] == '.' {
			return rest[:i]
		}
	}
	return rest
}

// videoIDFromURL extracts the vid from /x/cover/{cid}/{vid}.html or
// /x/page/{vid}.html URLs.
func videoIDFromURL(rawURL string) string {
	for _, marker := range []string{"/page/"} {
		if idx := strings.Index(rawURL, marker); idx >= 0 {
			rest := rawURL[idx+len(marker):]
			if dot := strings.IndexByte(rest, '.'); dot > 0 {
				return rest[:dot]
			}
			return rest
		}
	}
	if idx := strings.Index(rawURL, "/cover/"); idx >= 0 {
		rest := rawURL[idx+len("/cover/"):]
		if slash := strings.IndexByte(rest, '/'); slash > 0 {
			rest = rest[slash+1:]
			if dot := strings.IndexByte(rest, '.'); dot > 0 {
				return rest[:dot]
			}
			return rest
		}
	}
	return ""
}
