// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package provider

import (
	"context"
	"testing"

	"github.com/okanami/barrage/internal/models"
)

func episodes(titles ...string) []models.ProviderEpisodeInfo {
	list := make([]models.ProviderEpisodeInfo, len(titles))
	for i, title := range titles {
		list[i] = models.ProviderEpisodeInfo{Provider: "test", EpisodeID: title, Title: title}
	}
	return list
}

func titlesOf(list []models.ProviderEpisodeInfo) []string {
	out := make([]string, len(list))
	for i, ep := range list {
		out[i] = ep.Title
	}
	return out
}

func TestIsJunkTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{name: "chinese preview", title: "第5集预告", want: false}, // 第 protects
		{name: "preview without marker", title: "独家预告片", want: true},
		{name: "behind the scenes", title: "拍摄花絮合集", want: true},
		{name: "english trailer", title: "Official Trailer", want: true},
		{name: "pv", title: "PV第二弹", want: false}, // 第 protects
		{name: "plain episode", title: "第12集", want: false},
		{name: "pure number", title: "07", want: false},
		{name: "normal title", title: "风起陇西", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isJunkTitle(tt.title, nil); got != tt.want {
				t.Errorf("isJunkTitle(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestApplyFiltersAndRenumbersSeries(t *testing.T) {
	f := NewEpisodeFilter(nil)

	got := f.Apply(context.Background(), "test", "", models.MediaTypeTVSeries, episodes(
		"第3集", "Official Trailer", "第1集", "第2集", "幕后特辑",
	))

	want := []string{"第1集", "第2集", "第3集"}
	gotTitles := titlesOf(got)
	if len(gotTitles) != len(want) {
		t.Fatalf("Apply() = %v, want %v", gotTitles, want)
	}
	for i := range want {
		if gotTitles[i] != want[i] {
			t.Errorf("episode %d = %q, want %q", i, gotTitles[i], want[i])
		}
		if got[i].EpisodeIndex != i+1 {
			t.Errorf("episode %d index = %d, want %d", i, got[i].EpisodeIndex, i+1)
		}
	}
}

func TestApplySxxExxOrdering(t *testing.T) {
	f := NewEpisodeFilter(nil)

	got := f.Apply(context.Background(), "test", "", models.MediaTypeTVSeries, episodes(
		"S01E03", "S01E01", "S01E02",
	))
	want := []string{"S01E01", "S01E02", "S01E03"}
	for i, title := range titlesOf(got) {
		if title != want[i] {
			t.Errorf("episode %d = %q, want %q", i, title, want[i])
		}
	}
}

func TestApplyVarietyOrdering(t *testing.T) {
	f := NewEpisodeFilter(nil)

	got := f.Apply(context.Background(), "test", "", models.MediaTypeTVSeries, episodes(
		"第2期下", "第1期", "第2期上",
	))
	want := []string{"第1期", "第2期上", "第2期下"}
	for i, title := range titlesOf(got) {
		if title != want[i] {
			t.Errorf("entry %d = %q, want %q", i, title, want[i])
		}
	}
}

func TestApplyVarietyURLDedup(t *testing.T) {
	f := NewEpisodeFilter(nil)

	list := []models.ProviderEpisodeInfo{
		{Provider: "test", EpisodeID: "a", Title: "第1期 20260110", URL: "https://v/1"},
		{Provider: "test", EpisodeID: "b", Title: "第1期", URL: "https://v/1"},
		{Provider: "test", EpisodeID: "c", Title: "第2期", URL: "https://v/2"},
	}
	got := f.Apply(context.Background(), "test", "", models.MediaTypeTVSeries, list)
	if len(got) != 2 {
		t.Fatalf("Apply() kept %d entries, want 2", len(got))
	}
	if got[0].Title != "第1期" {
		t.Errorf("dedup kept %q, want the date-free title", got[0].Title)
	}
}

func TestApplyMoviePreservesOrder(t *testing.T) {
	f := NewEpisodeFilter(nil)

	got := f.Apply(context.Background(), "test", "", models.MediaTypeMovie, episodes(
		"正片", "蓝光版", "2",
	))
	want := []string{"正片", "蓝光版", "2"}
	for i, title := range titlesOf(got) {
		if title != want[i] {
			t.Errorf("entry %d = %q, want %q (API order)", i, title, want[i])
		}
	}
}

func TestApplyProviderBlacklist(t *testing.T) {
	f := NewEpisodeFilter(nil)

	got := f.Apply(context.Background(), "test", `会员版`, models.MediaTypeTVSeries, episodes(
		"第1集", "会员版特别篇",
	))
	if len(got) != 1 || got[0].Title != "第1集" {
		t.Errorf("Apply() with blacklist = %v, want only 第1集", titlesOf(got))
	}
}

func TestParseEpisodeNumber(t *testing.T) {
	tests := []struct {
		title string
		want  int
	}{
		{title: "第12集", want: 12},
		{title: "第3话", want: 3},
		{title: "S02E07", want: 7},
		{title: "24", want: 24},
		{title: "最终回", want: 0},
	}

	for _, tt := range tests {
		if got := parseEpisodeNumber(tt.title); got != tt.want {
			t.Errorf("parseEpisodeNumber(%q) = %d, want %d", tt.title, got, tt.want)
		}
	}
}
