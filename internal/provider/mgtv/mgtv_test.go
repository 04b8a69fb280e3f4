// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package mgtv

import "testing"

func TestIDsFromURL(t *testing.T) {
	tests := []struct {
		url     string
		wantCID string
		wantVID string
	}{
		{url: "https://www.mgtv.com/b/334727/7752925.html", wantCID: "334727", wantVID: "7752925"},
		{url: "https://www.mgtv.com/b/334727/7752925.html?fpa=se", wantCID: "334727", wantVID: "7752925"},
		{url: "https://www.mgtv.com/h/334727.html", wantCID: "", wantVID: ""},
		{url: "https://www.mgtv.com/b/334727.html", wantCID: "", wantVID: ""},
	}

	for _, tt := range tests {
		cid, vid := idsFromURL(tt.url)
		if cid != tt.wantCID || vid != tt.wantVID {
			t.Errorf("idsFromURL(%q) = (%q, %q), want (%q, %q)",
				tt.url, cid, vid, tt.wantCID, tt.wantVID)
		}
	}
}

func TestSplitEpisodeID(t *testing.T) {
	cid, vid, err := splitEpisodeID("334727,7752925")
	if err != nil {
		t.Fatalf("splitEpisodeID() error = %v", err)
	}
	if cid != "334727" || vid != "7752925" {
		t.Errorf("splitEpisodeID() = (%q, %q)", cid, vid)
	}

	for _, bad := range []string{"", "334727", "a,b,c", ","} {
		if _, _, err := splitEpisodeID(bad); err == nil {
			t.Errorf("splitEpisodeID(%q) expected error", bad)
		}
	}
}

func TestStripHighlightTags(t *testing.T) {
	if got := stripHighlightTags("<B>乘风破浪</B>的姐姐"); got != "乘风破浪的姐姐" {
		t.Errorf("stripHighlightTags() = %q", got)
	}
}

func TestModeFromType(t *testing.T) {
	tests := []struct {
		barrageType int
		want        int
	}{
		{barrageType: 0, want: 1},
		{barrageType: 1, want: 5},
		{barrageType: 2, want: 4},
		{barrageType: 7, want: 1},
	}

	for _, tt := range tests {
		if got := modeFromType(tt.barrageType); got != tt.want {
			t.Errorf("modeFromType(%d) = %d, want %d", tt.barrageType, got, tt.want)
		}
	}
}
