// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package bilibili

import "testing"

func TestParseDanmakuAttr(t *testing.T) {
	tests := []struct {
		name     string
		p        string
		text     string
		wantOK   bool
		wantTime float64
		wantMode int
		wantCID  string
	}{
		{
			name: "full attribute", p: "12.34,1,25,16777215,1700000000,0,abc,987654", text: "hello",
			wantOK: true, wantTime: 12.34, wantMode: 1, wantCID: "987654",
		},
		{
			name: "scroll variants collapse to 1", p: "5.0,2,25,16777215,0,0,u,42", text: "x",
			wantOK: true, wantTime: 5, wantMode: 1, wantCID: "42",
		},
		{
			name: "bottom mode preserved", p: "5.0,4,25,16777215,0,0,u,43", text: "x",
			wantOK: true, wantTime: 5, wantMode: 4, wantCID: "43",
		},
		{
			name: "short attribute synthesizes cid", p: "7.5,5,18,255", text: "top",
			wantOK: true, wantTime: 7.5, wantMode: 5, wantCID: "7.5:top",
		},
		{name: "too few fields", p: "1,2", text: "x", wantOK: false},
		{name: "bad time", p: "abc,1,25,0", text: "x", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := parseDanmakuAttr(tt.p, tt.text)
			if ok != tt.wantOK {
				t.Fatalf("parseDanmakuAttr() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if raw.TimeSec != tt.wantTime || raw.Mode != tt.wantMode || raw.CID != tt.wantCID {
				t.Errorf("parseDanmakuAttr() = %+v, want time %v mode %d cid %s",
					raw, tt.wantTime, tt.wantMode, tt.wantCID)
			}
			if raw.Text != tt.text {
				t.Errorf("Text = %q, want %q", raw.Text, tt.text)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		url    string
		prefix string
		want   string
	}{
		{url: "https://www.bilibili.com/bangumi/play/ss33802", prefix: "ss", want: "33802"},
		{url: "https://www.bilibili.com/bangumi/play/ep330798?from=search", prefix: "ep", want: "330798"},
		{url: "https://www.bilibili.com/video/BV1xx411c7mD", prefix: "ss", want: ""},
	}

	for _, tt := range tests {
		if got := extractToken(tt.url, tt.prefix); got != tt.want {
			t.Errorf("extractToken(%q, %q) = %q, want %q", tt.url, tt.prefix, got, tt.want)
		}
	}
}

func TestStripEmTags(t *testing.T) {
	in := `<em class="keyword">葬送</em>のフリーレン`
	if got := stripEmTags(in); got != "葬送のフリーレン" {
		t.Errorf("stripEmTags() = %q", got)
	}
}
