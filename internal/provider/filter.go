// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package provider

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/settings"
)

// globalJunkTitlePattern matches episode titles that are almost
// certainly not main content: previews, behind-the-scenes material,
// trailers, recaps and promotional clips, in both Chinese and English.
var globalJunkTitlePattern = regexp.MustCompile(
	`(?i)(预告|花絮|彩蛋|特辑|专访|幕后|直拍|纯享|未播|抢先|精彩看点|看点|速看|解读|盘点|合集|混剪|` +
		`preview|trailer|teaser|behind.the.scenes|recap|highlight|promo|PV|CM|NG|OP|ED)`)

// mainEpisodePattern protects titles that are likely main episodes from
// the junk filter: pure numbers and anything with the 第 ordinal marker.
var mainEpisodePattern = regexp.MustCompile(`^\s*\d+\s*$|第`)

var (
	cnEpisodeNumPattern = regexp.MustCompile(`第\s*(\d+)\s*[集话話]`)
	sxxExxPattern       = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	bareNumberPattern   = regexp.MustCompile(`(\d+)`)
	varietyIssuePattern = regexp.MustCompile(`第\s*(\d+)\s*期`)
	datePattern         = regexp.MustCompile(`\d{4}[-./]?\d{1,2}[-./]?\d{1,2}|\d{8}`)
)

// EpisodeFilter applies the junk-title filter and renumbering pass
// every adapter must run before returning episode lists.
type EpisodeFilter struct {
	settings *settings.Service
}

// NewEpisodeFilter builds the shared filter.
func NewEpisodeFilter(svc *settings.Service) *EpisodeFilter {
	return &EpisodeFilter{settings: svc}
}

// Apply drops junk entries and renumbers the remainder 1..n according
// to the media-type ordering rules. providerName selects the
// per-provider blacklist setting; defaultBlacklist is the adapter's
// built-in regex used when the operator has not overridden it.
func (f *EpisodeFilter) Apply(ctx context.Context, providerName, defaultBlacklist string, mediaType models.MediaType, episodes []models.ProviderEpisodeInfo) []models.ProviderEpisodeInfo {
	blacklist := f.providerBlacklist(ctx, providerName, defaultBlacklist)

	kept := make([]models.ProviderEpisodeInfo, 0, len(episodes))
	for _, ep := range episodes {
		if isJunkTitle(ep.Title, blacklist) {
			continue
		}
		kept = append(kept, ep)
	}

	switch {
	case mediaType == models.MediaTypeMovie:
		// Movies keep API order; the adapter puts the confirmed main
		// feature first.
	case isVarietyList(kept):
		kept = orderVariety(kept)
	default:
		kept = orderSeries(kept)
	}

	for i := range kept {
		kept[i].EpisodeIndex = i + 1
	}
	return kept
}

func (f *EpisodeFilter) providerBlacklist(ctx context.Context, providerName, defaultBlacklist string) *regexp.Regexp {
	pattern := defaultBlacklist
	if f.settings != nil {
		configured, err := f.settings.Get(ctx, providerName+"EpisodeBlacklistRegex")
		if err == nil && configured != "" {
			pattern = configured
		}
	}
	if pattern == "" {
		return nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		logging.Warn().Str("provider", providerName).Str("pattern", pattern).
			Msg("Invalid episode blacklist regex, ignoring")
		return nil
	}
	return re
}

// isJunkTitle applies the global and per-provider filters, except for
// titles that look like main episodes.
func isJunkTitle(title string, blacklist *regexp.Regexp) bool {
	if mainEpisodePattern.MatchString(title) {
		return false
	}
	if globalJunkTitlePattern.MatchString(title) {
		return true
	}
	return blacklist != nil && blacklist.MatchString(title)
}

// parseEpisodeNumber extracts the episode number from a series title:
// 第N集, SxxExx, or the first bare integer. Returns 0 when none parses.
func parseEpisodeNumber(title string) int {
	if m := cnEpisodeNumPattern.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := sxxExxPattern.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	if m := bareNumberPattern.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// orderSeries sorts TV episodes ascending by their parsed number,
// keeping input order for ties and unparseable titles.
func orderSeries(episodes []models.ProviderEpisodeInfo) []models.ProviderEpisodeInfo {
	sort.SliceStable(episodes, func(i, j int) bool {
		ni, nj := parseEpisodeNumber(episodes[i].Title), parseEpisodeNumber(episodes[j].Title)
		if ni == 0 || nj == 0 {
			return false
		}
		return ni < nj
	})
	return episodes
}

// isVarietyList detects variety shows by the 第N期 issue marker.
func isVarietyList(episodes []models.ProviderEpisodeInfo) bool {
	for _, ep := range episodes {
		if varietyIssuePattern.MatchString(ep.Title) {
			return true
		}
	}
	return false
}

// varietyPartRank orders the 上/中/下 split-issue suffixes.
func varietyPartRank(title string) int {
	switch {
	case strings.Contains(title, "上"):
		return 0
	case strings.Contains(title, "中"):
		return 1
	case strings.Contains(title, "下"):
		return 2
	}
	return 1
}

// orderVariety sorts variety-show entries by issue number with the
// 上/中/下 tiebreaker, and collapses URL duplicates by keeping the
// shorter, date-free title.
func orderVariety(episodes []models.ProviderEpisodeInfo) []models.ProviderEpisodeInfo {
	byURL := map[string]int{}
	deduped := make([]models.ProviderEpisodeInfo, 0, len(episodes))
	for _, ep := range episodes {
		if ep.URL == "" {
			deduped = append(deduped, ep)
			continue
		}
		if at, seen := byURL[ep.URL]; seen {
			if preferVarietyTitle(ep.Title, deduped[at].Title) {
				deduped[at] = ep
			}
			continue
		}
		byURL[ep.URL] = len(deduped)
		deduped = append(deduped, ep)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		ii, ij := varietyIssue(deduped[i].Title), varietyIssue(deduped[j].Title)
		if ii != 0 && ij != 0 {
			if ii != ij {
				return ii < ij
			}
			return varietyPartRank(deduped[i].Title) < varietyPartRank(deduped[j].Title)
		}
		if ii == 0 && ij == 0 {
			// Publish-date fallback for entries without an issue number.
			di, dj := datePattern.FindString(deduped[i].Title), datePattern.FindString(deduped[j].Title)
			if di != "" && dj != "" {
				return normalizeDateKey(di) < normalizeDateKey(dj)
			}
		}
		return false
	})
	return deduped
}

// normalizeDateKey strips separators so 2026-01-02, 2026.1.2 and
// 20260102 compare consistently.
func normalizeDateKey(date string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, date)
}

func varietyIssue(title string) int {
	if m := varietyIssuePattern.FindStringSubmatch(title); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// preferVarietyTitle reports whether candidate should replace current
// for the same URL: date-free beats dated, then shorter beats longer.
func preferVarietyTitle(candidate, current string) bool {
	candDated := datePattern.MatchString(candidate)
	currDated := datePattern.MatchString(current)
	if candDated != currDated {
		return !candDated
	}
	return len(candidate) < len(current)
}
