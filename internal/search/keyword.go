// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package search implements the provider search pipeline: keyword
// parsing, alias expansion, parallel provider fan-out, fuzzy
// filtering, and result caching.
package search

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedKeyword is a user query split into its title and the season
// and episode markers it carried.
type ParsedKeyword struct {
	Title   string
	Season  *int
	Episode *int
}

var (
	sxxExxPattern   = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*E(\d{1,4})\b`)
	seasonPattern   = regexp.MustCompile(`(?i)\b(?:S(\d{1,2})|Season\s+(\d{1,2}))\b`)
	cnSeasonPattern = regexp.MustCompile(`第\s*([0-9一二三四五六七八九十壹贰叁肆伍陆柒捌玖拾]+)\s*[季部幕]`)
	chapterPattern  = regexp.MustCompile(`([0-9一二三四五六七八九十壹贰叁肆伍陆柒捌玖拾]+)之章`)
	// U+2160..U+216B are the dedicated roman numeral codepoints.
	unicodeRomanPattern = regexp.MustCompile(`[Ⅰ-Ⅻ]`)
	asciiRomanPattern   = regexp.MustCompile(`\s(X{0,1}(?:IX|IV|V?I{0,3}))$`)
	trailingIntPattern  = regexp.MustCompile(`^(.*?)[\s._]+(\d{1,2})$`)
	yearTokenPattern    = regexp.MustCompile(`(19|20)\d{2}$`)
)

var unicodeRomanValues = map[rune]int{
	'Ⅰ': 1, 'Ⅱ': 2, 'Ⅲ': 3, 'Ⅳ': 4, 'Ⅴ': 5, 'Ⅵ': 6,
	'Ⅶ': 7, 'Ⅷ': 8, 'Ⅸ': 9, 'Ⅹ': 10, 'Ⅺ': 11, 'Ⅻ': 12,
}

var asciiRomanValues = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6,
	"VII": 7, "VIII": 8, "IX": 9, "X": 10, "XI": 11, "XII": 12,
}

var cnDigitValues = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
	'壹': 1, '贰': 2, '叁': 3, '肆': 4, '伍': 5,
	'陆': 6, '柒': 7, '捌': 8, '玖': 9, '拾': 10,
}

// ParseKeyword splits a query into title plus optional season and
// episode. Markers are tried in priority order; the first match wins.
func ParseKeyword(keyword string) ParsedKeyword {
	keyword = strings.TrimSpace(keyword)

	if m := sxxExxPattern.FindStringSubmatchIndex(keyword); m != nil {
		season, _ := strconv.Atoi(keyword[m[2]:m[3]])
		episode, _ := strconv.Atoi(keyword[m[4]:m[5]])
		return ParsedKeyword{
			Title:   cleanTitle(keyword[:m[0]] + keyword[m[1]:]),
			Season:  &season,
			Episode: &episode,
		}
	}

	if m := seasonPattern.FindStringSubmatchIndex(keyword); m != nil {
		var digits string
		if m[2] >= 0 {
			digits = keyword[m[2]:m[3]]
		} else {
			digits = keyword[m[4]:m[5]]
		}
		season, _ := strconv.Atoi(digits)
		return ParsedKeyword{
			Title:  cleanTitle(keyword[:m[0]] + keyword[m[1]:]),
			Season: &season,
		}
	}

	if m := cnSeasonPattern.FindStringSubmatchIndex(keyword); m != nil {
		if season, ok := parseNumeral(keyword[m[2]:m[3]]); ok {
			return ParsedKeyword{
				Title:  cleanTitle(keyword[:m[0]] + keyword[m[1]:]),
				Season: &season,
			}
		}
	}

	if m := chapterPattern.FindStringSubmatchIndex(keyword); m != nil {
		if season, ok := parseNumeral(keyword[m[2]:m[3]]); ok {
			return ParsedKeyword{
				Title:  cleanTitle(keyword[:m[0]] + keyword[m[1]:]),
				Season: &season,
			}
		}
	}

	if loc := unicodeRomanPattern.FindStringIndex(keyword); loc != nil {
		r := []rune(keyword[loc[0]:loc[1]])[0]
		season := unicodeRomanValues[r]
		return ParsedKeyword{
			Title:  cleanTitle(keyword[:loc[0]] + keyword[loc[1]:]),
			Season: &season,
		}
	}

	if m := asciiRomanPattern.FindStringSubmatch(keyword); m != nil && m[1] != "" {
		if season, ok := asciiRomanValues[m[1]]; ok {
			return ParsedKeyword{
				Title:  cleanTitle(strings.TrimSuffix(keyword, m[0])),
				Season: &season,
			}
		}
	}

	if m := trailingIntPattern.FindStringSubmatch(keyword); m != nil {
		head := strings.TrimSpace(m[1])
		if !yearTokenPattern.MatchString(head) {
			season, _ := strconv.Atoi(m[2])
			return ParsedKeyword{Title: cleanTitle(head), Season: &season}
		}
	}

	return ParsedKeyword{Title: cleanTitle(keyword)}
}

func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -_.")
}

// parseNumeral reads Arabic digits or Chinese numerals up to 99,
// including the formal bank forms.
func parseNumeral(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}

	runes := []rune(s)
	total := 0
	lastDigit := 0
	sawTen := false
	for _, r := range runes {
		v, ok := cnDigitValues[r]
		if !ok {
			return 0, false
		}
		if v == 10 {
			if lastDigit > 0 {
				total += lastDigit * 10
			} else {
				total += 10
			}
			lastDigit = 0
			sawTen = true
		} else {
			lastDigit = v
		}
	}
	total += lastDigit
	if !sawTen && len(runes) > 1 {
		// Strings like 一二 are not positional numerals here.
		return 0, false
	}
	return total, total > 0
}
