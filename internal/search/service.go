// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/metadata"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/settings"
)

const (
	aliasAcceptRatio  = 70
	resultAcceptRatio = 85

	defaultCacheTTL    = 3 * time.Hour
	defaultResultLimit = 50
)

var (
	moviePattern     = regexp.MustCompile(`剧场版|劇場版|(?i)movie|映画`)
	bracketedPattern = regexp.MustCompile(`[(（\[【][^)）\]】]*[)）\]】]`)
)

// ErrNoProvidersEnabled is returned when a search is attempted while
// every registered provider is disabled.
var ErrNoProvidersEnabled = errors.New("no providers are enabled")

// Service runs the search pipeline over the registered providers.
type Service struct {
	db       *database.DB
	settings *settings.Service
	registry *provider.Registry
	metadata *metadata.Registry
}

// New builds the search service.
func New(db *database.DB, svc *settings.Service, reg *provider.Registry, meta *metadata.Registry) *Service {
	return &Service{db: db, settings: svc, registry: reg, metadata: meta}
}

// Search parses the keyword, serves from the base cache when
// possible, and otherwise fans out to every enabled provider in
// parallel, filters by alias match, and caches the sorted result.
func (s *Service) Search(ctx context.Context, keyword string) (*models.SearchResponse, error) {
	parsed := ParseKeyword(keyword)
	if parsed.Title == "" {
		return &models.SearchResponse{Results: []models.ProviderSearchInfo{}}, nil
	}

	providers := s.registry.Enabled(ctx)
	if len(providers) == 0 {
		return nil, ErrNoProvidersEnabled
	}

	cacheKey := baseCacheKey(parsed)
	if cached, hit := s.fromCache(ctx, cacheKey); hit {
		annotateEpisode(cached, parsed.Episode)
		return s.respond(cached, parsed), nil
	}

	aliases := s.expandAliases(ctx, parsed.Title)
	results := s.fanOut(ctx, providers, parsed)

	results = filterByAliases(results, aliases)
	coerceMovieType(results)
	results = filterBySeason(results, parsed.Season)
	s.sortResults(ctx, parsed.Title, results)

	limit, err := s.settings.GetInt(ctx, "searchResultLimit", defaultResultLimit)
	if err == nil && limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.toCache(ctx, cacheKey, results)
	annotateEpisode(results, parsed.Episode)
	return s.respond(results, parsed), nil
}

func (s *Service) respond(results []models.ProviderSearchInfo, parsed ParsedKeyword) *models.SearchResponse {
	return &models.SearchResponse{
		Results:       results,
		SearchSeason:  parsed.Season,
		SearchEpisode: parsed.Episode,
	}
}

func baseCacheKey(parsed ParsedKeyword) string {
	season := "all"
	if parsed.Season != nil {
		season = fmt.Sprintf("%d", *parsed.Season)
	}
	return fmt.Sprintf("search_base_%s_%s", parsed.Title, season)
}

func (s *Service) fromCache(ctx context.Context, key string) ([]models.ProviderSearchInfo, bool) {
	raw, hit, err := s.db.GetCache(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	var results []models.ProviderSearchInfo
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("discarding unreadable search cache entry")
		return nil, false
	}
	return results, true
}

func (s *Service) toCache(ctx context.Context, key string, results []models.ProviderSearchInfo) {
	// CurrentEpisodeIndex is request-scoped and never cached.
	for i := range results {
		results[i].CurrentEpisodeIndex = nil
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}

	ttl := defaultCacheTTL
	if seconds, err := s.settings.GetInt(ctx, "searchCacheTtlSeconds", int(defaultCacheTTL.Seconds())); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if err := s.db.SetCache(ctx, key, string(raw), ttl, ""); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("failed to write search cache")
	}
}

func annotateEpisode(results []models.ProviderSearchInfo, episode *int) {
	if episode == nil {
		return
	}
	for i := range results {
		value := *episode
		results[i].CurrentEpisodeIndex = &value
	}
}

// expandAliases unions the title with metadata-source aliases that
// fuzzy-match the query closely enough to trust.
func (s *Service) expandAliases(ctx context.Context, title string) []string {
	aliases := []string{title}
	if s.metadata == nil {
		return aliases
	}
	for _, alias := range s.metadata.CollectAliases(ctx, title) {
		if fuzzy.TokenSetRatio(title, alias) > aliasAcceptRatio {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// fanOut queries the enabled providers concurrently with the
// original title. A failing provider logs and contributes nothing.
func (s *Service) fanOut(ctx context.Context, providers []provider.Provider, parsed ParsedKeyword) []models.ProviderSearchInfo {
	hint := &provider.EpisodeHint{}
	if parsed.Season != nil {
		hint.Season = *parsed.Season
	}
	if parsed.Episode != nil {
		hint.Episode = *parsed.Episode
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.ProviderSearchInfo
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			hits, err := p.Search(ctx, parsed.Title, hint)
			if err != nil {
				logging.Warn().Err(err).Str("provider", p.Name()).Msg("provider search failed")
				return
			}
			mu.Lock()
			results = append(results, hits...)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

// normalizeForMatch strips bracketed annotations, case-folds, removes
// spaces, and unifies the fullwidth colon.
func normalizeForMatch(title string) string {
	title = bracketedPattern.ReplaceAllString(title, "")
	title = strings.ToLower(title)
	title = strings.ReplaceAll(title, " ", "")
	title = strings.ReplaceAll(title, "：", ":")
	return title
}

func filterByAliases(results []models.ProviderSearchInfo, aliases []string) []models.ProviderSearchInfo {
	normalized := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		normalized = append(normalized, normalizeForMatch(alias))
	}

	kept := make([]models.ProviderSearchInfo, 0, len(results))
	for _, r := range results {
		title := normalizeForMatch(r.Title)
		for _, alias := range normalized {
			if fuzzy.PartialRatio(alias, title) > resultAcceptRatio {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

func coerceMovieType(results []models.ProviderSearchInfo) {
	for i := range results {
		if moviePattern.MatchString(results[i].Title) {
			results[i].Type = models.MediaTypeMovie
		}
	}
}

// filterBySeason applies the parsed season constraint. A season query
// only makes sense against series results.
func filterBySeason(results []models.ProviderSearchInfo, season *int) []models.ProviderSearchInfo {
	if season == nil {
		return results
	}
	kept := make([]models.ProviderSearchInfo, 0, len(results))
	for _, r := range results {
		if r.Type != models.MediaTypeTVSeries {
			continue
		}
		if r.Season == *season {
			kept = append(kept, r)
		}
	}
	return kept
}

func (s *Service) sortResults(ctx context.Context, title string, results []models.ProviderSearchInfo) {
	type ranked struct {
		order int
		ratio int
	}
	orders := make(map[string]int)
	ranks := make([]ranked, len(results))
	for i, r := range results {
		if _, ok := orders[r.Provider]; !ok {
			orders[r.Provider] = s.registry.DisplayOrder(ctx, r.Provider)
		}
		ranks[i] = ranked{order: orders[r.Provider], ratio: fuzzy.TokenSetRatio(title, r.Title)}
	}

	indices := make([]int, len(results))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		ri, rj := ranks[indices[a]], ranks[indices[b]]
		if ri.order != rj.order {
			return ri.order < rj.order
		}
		return ri.ratio > rj.ratio
	})

	sorted := make([]models.ProviderSearchInfo, len(results))
	for pos, idx := range indices {
		sorted[pos] = results[idx]
	}
	copy(results, sorted)
}
