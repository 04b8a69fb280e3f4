// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package bilibili adapts the bilibili platform: bangumi season search,
// episode listing via the season API, and the XML danmaku endpoint.
package bilibili

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/settings"
)

const (
	searchURL  = "https://api.bilibili.com/x/web-interface/search/type"
	seasonURL  = "https://api.bilibili.com/pgc/view/web/season"
	danmakuURL = "https://comment.bilibili.com/%s.xml"
)

// Adapter implements provider.Provider for bilibili.
type Adapter struct {
	client   *provider.Client
	settings *settings.Service
	filter   *provider.EpisodeFilter
}

// New builds the bilibili adapter.
func New(svc *settings.Service) *Adapter {
	return &Adapter{
		client:   provider.NewClient("bilibili", svc, 2),
		settings: svc,
		filter:   provider.NewEpisodeFilter(svc),
	}
}

func (a *Adapter) Name() string { return "bilibili" }

func (a *Adapter) HandledDomains() []string {
	return []string{"bilibili.com", "b23.tv"}
}

func (a *Adapter) RateLimitQuota() int { return -1 }

func (a *Adapter) Loggable() bool { return true }

func (a *Adapter) ConfigurableFields() map[string]string {
	return map[string]string{
		"bilibiliCookie":                "Cookie",
		"bilibiliEpisodeBlacklistRegex": "Episode blacklist regex",
	}
}

func (a *Adapter) TestURL() string { return "https://api.bilibili.com/x/web-interface/nav" }

func (a *Adapter) DefaultBlacklist() string { return `(?i)(中配|预告|特别篇SP)` }

// searchResult is the subset of the search response the adapter reads.
type searchResult struct {
	Code int `json:"code"`
	Data struct {
		Result []struct {
			Title      string `json:"title"`
			SeasonID   int64  `json:"season_id"`
			SeasonType int    `json:"season_type"`
			Cover      string `json:"cover"`
			EpSize     int    `json:"ep_size"`
			PubTime    int64  `json:"pubtime"`
			URL        string `json:"url"`
		} `json:"result"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, keyword string, hint *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	body, status, err := a.client.Get(ctx,
		fmt.Sprintf("%s?search_type=media_bangumi&keyword=%s", searchURL, url.QueryEscape(keyword)),
		a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("bilibili search failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("bilibili search returned %d", status)
	}

	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode bilibili search response: %w", err)
	}
	if result.Code != 0 {
		logging.Debug().Int("code", result.Code).Msg("bilibili search returned no results")
		return nil, nil
	}

	infos := make([]models.ProviderSearchInfo, 0, len(result.Data.Result))
	for _, item := range result.Data.Result {
		mediaType := models.MediaTypeTVSeries
		// season_type 2 is a theatrical release.
		if item.SeasonType == 2 {
			mediaType = models.MediaTypeMovie
		}
		epSize := item.EpSize
		infos = append(infos, models.ProviderSearchInfo{
			Provider:     "bilibili",
			MediaID:      strconv.FormatInt(item.SeasonID, 10),
			Title:        stripEmTags(item.Title),
			Type:         mediaType,
			Season:       1,
			ImageURL:     item.Cover,
			EpisodeCount: &epSize,
			URL:          item.URL,
		})
	}
	return infos, nil
}

func (a *Adapter) GetInfoFromURL(ctx context.Context, rawURL string) (*models.ProviderSearchInfo, error) {
	seasonID := extractToken(rawURL, "ss")
	if seasonID == "" {
		if ep := extractToken(rawURL, "ep"); ep != "" {
			return a.infoFromEpisode(ctx, ep)
		}
		return nil, nil
	}

	season, err := a.fetchSeason(ctx, "season_id="+seasonID)
	if err != nil {
		return nil, err
	}
	if season == nil {
		return nil, nil
	}
	info := season.toSearchInfo()
	return &info, nil
}

func (a *Adapter) GetIDFromURL(ctx context.Context, rawURL string) (string, error) {
	epID := extractToken(rawURL, "ep")
	if epID == "" {
		return "", fmt.Errorf("no episode id in bilibili URL %q", rawURL)
	}

	season, err := a.fetchSeason(ctx, "ep_id="+epID)
	if err != nil {
		return "", err
	}
	if season == nil {
		return "", fmt.Errorf("bilibili episode %s not found", epID)
	}
	for _, ep := range season.Episodes {
		if strconv.FormatInt(ep.ID, 10) == epID {
			return fmt.Sprintf("%d,%d", ep.AID, ep.CID), nil
		}
	}
	return "", fmt.Errorf("bilibili episode %s not in season listing", epID)
}

func (a *Adapter) GetEpisodes(ctx context.Context, mediaID string, targetIndex int, mediaType models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	season, err := a.fetchSeason(ctx, "season_id="+mediaID)
	if err != nil {
		return nil, err
	}
	if season == nil {
		return nil, nil
	}

	raw := make([]models.ProviderEpisodeInfo, 0, len(season.Episodes))
	for _, ep := range season.Episodes {
		title := ep.LongTitle
		if title == "" {
			title = ep.Title
		}
		raw = append(raw, models.ProviderEpisodeInfo{
			Provider:  "bilibili",
			EpisodeID: fmt.Sprintf("%d,%d", ep.AID, ep.CID),
			Title:     title,
			URL:       ep.ShareURL,
		})
	}

	filtered := a.filter.Apply(ctx, "bilibili", a.DefaultBlacklist(), mediaType, raw)
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

// danmakuDoc is the XML danmaku payload: <i><d p="...">text</d>...</i>.
// The p attribute is time,mode,size,color,timestamp,pool,uid,rowid.
type danmakuDoc struct {
	Entries []danmakuEntry `xml:"d"`
}

type danmakuEntry struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

func (a *Adapter) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	parts := strings.SplitN(episodeID, ",", 2)
	cid := parts[len(parts)-1]

	if progress != nil {
		progress(10, "Fetching danmaku")
	}
	body, status, err := a.client.Get(ctx, fmt.Sprintf(danmakuURL, cid), a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("bilibili danmaku fetch failed: %w", err)
	}
	if status == 404 {
		return nil, nil
	}
	if status != 200 {
		return nil, fmt.Errorf("bilibili danmaku endpoint returned %d", status)
	}

	var doc danmakuDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bilibili danmaku XML: %w", err)
	}
	if progress != nil {
		progress(80, fmt.Sprintf("Parsed %d danmaku", len(doc.Entries)))
	}

	comments := make([]models.RawComment, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		raw, ok := parseDanmakuAttr(entry.P, entry.Text)
		if !ok {
			continue
		}
		comments = append(comments, raw)
	}
	return comments, nil
}

func (a *Adapter) FormatEpisodeIDForComments(raw string) string { return raw }

func (a *Adapter) ExecuteAction(ctx context.Context, name string, payload []byte) (interface{}, error) {
	return nil, fmt.Errorf("bilibili has no action %q", name)
}

// parseDanmakuAttr maps one XML entry's p attribute into a RawComment.
// bilibili modes: 1-3 scroll, 4 bottom, 5 top; others are dropped by
// the normalizer.
func parseDanmakuAttr(p, text string) (models.RawComment, bool) {
	fields := strings.Split(p, ",")
	if len(fields) < 4 {
		return models.RawComment{}, false
	}

	timeSec, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return models.RawComment{}, false
	}
	mode, _ := strconv.Atoi(fields[1])
	if mode >= 1 && mode <= 3 {
		mode = 1
	}
	fontSize, _ := strconv.Atoi(fields[2])
	color, _ := strconv.Atoi(fields[3])

	cid := ""
	if len(fields) >= 8 {
		cid = fields[7]
	}
	if cid == "" {
		cid = fmt.Sprintf("%s:%s", fields[0], text)
	}

	return models.RawComment{
		CID:      cid,
		TimeSec:  timeSec,
		Mode:     mode,
		FontSize: fontSize,
		Color:    color,
		Text:     text,
	}, true
}

// seasonResult is the subset of the season API response the adapter
// reads.
type seasonResult struct {
	Title      string `json:"title"`
	SeasonID   int64  `json:"season_id"`
	SeasonType int    `json:"type"`
	Cover      string `json:"cover"`
	Episodes   []struct {
		ID        int64  `json:"id"`
		AID       int64  `json:"aid"`
		CID       int64  `json:"cid"`
		Title     string `json:"title"`
		LongTitle string `json:"long_title"`
		ShareURL  string `json:"share_url"`
	} `json:"episodes"`
}

func (s *seasonResult) toSearchInfo() models.ProviderSearchInfo {
	mediaType := models.MediaTypeTVSeries
	if s.SeasonType == 2 {
		mediaType = models.MediaTypeMovie
	}
	count := len(s.Episodes)
	return models.ProviderSearchInfo{
		Provider:     "bilibili",
		MediaID:      strconv.FormatInt(s.SeasonID, 10),
		Title:        s.Title,
		Type:         mediaType,
		Season:       1,
		ImageURL:     s.Cover,
		EpisodeCount: &count,
	}
}

func (a *Adapter) fetchSeason(ctx context.Context, query string) (*seasonResult, error) {
	body, status, err := a.client.Get(ctx, seasonURL+"?"+query, a.headers(ctx))
	if err != nil {
		return nil, fmt.Errorf("bilibili season fetch failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("bilibili season endpoint returned %d", status)
	}

	var envelope struct {
		Code   int          `json:"code"`
		Result seasonResult `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode bilibili season response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, nil
	}
	return &envelope.Result, nil
}

func (a *Adapter) infoFromEpisode(ctx context.Context, epID string) (*models.ProviderSearchInfo, error) {
	season, err := a.fetchSeason(ctx, "ep_id="+epID)
	if err != nil || season == nil {
		return nil, err
	}
	info := season.toSearchInfo()
	return &info, nil
}

func (a *Adapter) headers(ctx context.Context) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Referer":    "https://www.bilibili.com/",
	}
	if cookie, err := a.settings.Get(ctx, "bilibiliCookie"); err == nil && cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers
}

// extractToken pulls the numeric part of ssNNN / epNNN path tokens.
func extractToken(rawURL, prefix string) string {
	idx := strings.Index(rawURL, "/"+prefix)
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+1+len(prefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	return rest[:end]
}

// stripEmTags removes the search API's <em> highlight markup.
func stripEmTags(title string) string {
	title = strings.ReplaceAll(title, `<em class="keyword">`, "")
	return strings.ReplaceAll(title, "</em>", "")
}
