// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package tencent

import "testing"

func TestCoverIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://v.qq.com/x/cover/mzc00200xyz.html", want: "mzc00200xyz"},
		{url: "https://v.qq.com/x/cover/mzc00200xyz/a0040abc.html", want: "mzc00200xyz"},
		{url: "https://v.qq.com/x/page/a0040abc.html", want: ""},
	}

	for _, tt := range tests {
		if got := coverIDFromURL(tt.url); got != tt.want {
			t.Errorf("coverIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestVideoIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://v.qq.com/x/cover/mzc00200xyz/a0040abc.html", want: "a0040abc"},
		{url: "https://v.qq.com/x/page/a0040abc.html", want: "a0040abc"},
		{url: "https://v.qq.com/x/cover/mzc00200xyz.html", want: ""},
	}

	for _, tt := range tests {
		if got := videoIDFromURL(tt.url); got != tt.want {
			t.Errorf("videoIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestModeFromStyle(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  int
	}{
		{name: "empty defaults to scroll", style: "", want: 1},
		{name: "top", style: `{"position":2}`, want: 5},
		{name: "bottom", style: `{"position":3}`, want: 4},
		{name: "scroll", style: `{"position":0}`, want: 1},
		{name: "garbage defaults to scroll", style: "not-json", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := modeFromStyle(tt.style); got != tt.want {
				t.Errorf("modeFromStyle(%q) = %d, want %d", tt.style, got, tt.want)
			}
		})
	}
}

func TestColorFromStyle(t *testing.T) {
	tests := []struct {
		name  string
		style string
		want  int
	}{
		{name: "default white", style: "", want: 0xFFFFFF},
		{name: "hex with hash", style: `{"color":"#ff0000"}`, want: 0xFF0000},
		{name: "hex without hash", style: `{"color":"00ff00"}`, want: 0x00FF00},
		{name: "invalid falls back", style: `{"color":"zzz"}`, want: 0xFFFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := colorFromStyle(tt.style); got != tt.want {
				t.Errorf("colorFromStyle(%q) = %#x, want %#x", tt.style, got, tt.want)
			}
		})
	}
}
