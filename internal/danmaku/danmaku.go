// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package danmaku normalizes provider-raw comments into the canonical
// wire shape and handles the custom XML interchange format.
package danmaku

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okanami/barrage/internal/models"
)

const (
	defaultFontSize = 25
	defaultColor    = 0xFFFFFF
	maxColor        = 0xFFFFFF
)

// Normalize turns provider-raw comments into canonical Comments:
// NUL-stripped text, mode clamped to {1,4,5}, composed p attribute,
// batch cid dedup, and duplicate-text collapsing that keeps the
// earliest entry and rewrites its text to "{text} X{count}".
// The result is a fixed point: normalizing an already-normalized
// batch changes nothing.
func Normalize(providerName string, raw []models.RawComment) []models.Comment {
	out := make([]models.Comment, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, rc := range raw {
		text := strings.ReplaceAll(rc.Text, "\x00", "")
		if text == "" {
			continue
		}
		if _, dup := seen[rc.CID]; dup {
			continue
		}
		seen[rc.CID] = struct{}{}

		mode := rc.Mode
		if mode != 4 && mode != 5 {
			mode = 1
		}
		fontSize := rc.FontSize
		if fontSize <= 0 {
			fontSize = defaultFontSize
		}
		color := rc.Color
		// 0 is valid black; only out-of-range values fall back.
		if color < 0 || color > maxColor {
			color = defaultColor
		}

		out = append(out, models.Comment{
			CID: rc.CID,
			P: fmt.Sprintf("%.2f,%d,%d,%d,[%s]",
				rc.TimeSec, mode, fontSize, color, providerName),
			M: text,
			T: rc.TimeSec,
		})
	}

	return collapseDuplicateTexts(out)
}

// collapseDuplicateTexts groups comments by identical text, keeps the
// earliest-timestamp entry of each group larger than one, and appends
// the " X{n}" count marker. Texts already carrying the marker are left
// alone so a second pass is a no-op.
func collapseDuplicateTexts(comments []models.Comment) []models.Comment {
	groups := make(map[string][]int, len(comments))
	for i, c := range comments {
		groups[c.M] = append(groups[c.M], i)
	}

	keep := make([]models.Comment, 0, len(comments))
	dropped := make(map[int]struct{})
	for text, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		earliest := idxs[0]
		for _, i := range idxs[1:] {
			if comments[i].T < comments[earliest].T {
				earliest = i
			}
		}
		for _, i := range idxs {
			if i != earliest {
				dropped[i] = struct{}{}
			}
		}
		comments[earliest].M = fmt.Sprintf("%s X%d", text, len(idxs))
	}

	for i, c := range comments {
		if _, gone := dropped[i]; gone {
			continue
		}
		keep = append(keep, c)
	}

	sort.SliceStable(keep, func(i, j int) bool { return keep[i].T < keep[j].T })
	return keep
}
