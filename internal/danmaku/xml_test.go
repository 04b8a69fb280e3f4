// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package danmaku

import (
	"bytes"
	"strings"
	"testing"

	"github.com/okanami/barrage/internal/models"
)

func TestParseXML(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<i>
  <chatserver>danmu</chatserver>
  <chatid>0</chatid>
  <maxlimit>2</maxlimit>
  <d p="12.34,1,25,16777215,[custom_xml]">hello</d>
  <d p="56.78,5,18,255">top comment</d>
</i>`

	got, err := ParseXML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d comments, want 2", len(got))
	}
	if got[0].TimeSec != 12.34 || got[0].Mode != 1 || got[0].FontSize != 25 ||
		got[0].Color != 16777215 || got[0].Text != "hello" {
		t.Errorf("unexpected first comment: %+v", got[0])
	}
	if got[1].Mode != 5 || got[1].FontSize != 18 || got[1].Color != 255 {
		t.Errorf("unexpected second comment: %+v", got[1])
	}
}

func TestParseXMLRepairsThreeFieldTuple(t *testing.T) {
	input := `<i><d p="1.5,1,16711680">short</d></i>`

	got, err := ParseXML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d comments, want 1", len(got))
	}
	// Three fields decode as time,mode,color with the default size.
	if got[0].FontSize != 25 || got[0].Color != 16711680 {
		t.Errorf("repaired tuple = %+v", got[0])
	}
}

func TestParseXMLSkipsMalformedEntries(t *testing.T) {
	input := `<i>
  <d p="1,2">too short</d>
  <d p="abc,1,25,0">bad time</d>
  <d p="3.0,1,25,0">kept</d>
</i>`

	got, err := ParseXML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "kept" {
		t.Fatalf("got %+v, want only the well-formed entry", got)
	}
}

func TestWriteXMLRoundTrip(t *testing.T) {
	comments := []models.Comment{
		{CID: "a", P: "12.34,1,25,16777215,[custom_xml]", M: "hello <world> & friends", T: 12.34},
		{CID: "b", P: "56.00,5,25,255,[custom_xml]", M: "top", T: 56},
	}

	var buf bytes.Buffer
	if err := WriteXML(&buf, comments); err != nil {
		t.Fatalf("WriteXML() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<maxlimit>2</maxlimit>") {
		t.Errorf("missing maxlimit header in %q", out)
	}

	parsed, err := ParseXML(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseXML(WriteXML output) error = %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("round trip produced %d comments, want 2", len(parsed))
	}
	if parsed[0].Text != "hello <world> & friends" {
		t.Errorf("escaped text round trip = %q", parsed[0].Text)
	}
	if parsed[1].Mode != 5 || parsed[1].Color != 255 {
		t.Errorf("unexpected second comment: %+v", parsed[1])
	}
}

func TestParsePlainText(t *testing.T) {
	input := `
12.34,1,25,16777215 | hello
56.78,5,18,255,extra | top comment
not a comment line
1,2 | too short
`

	got, err := ParsePlainText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParsePlainText() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d comments, want 2", len(got))
	}
	if got[0].TimeSec != 12.34 || got[0].Text != "hello" {
		t.Errorf("unexpected first comment: %+v", got[0])
	}
	if got[1].Mode != 5 || got[1].Text != "top comment" {
		t.Errorf("unexpected second comment: %+v", got[1])
	}
}

func TestBuildPath(t *testing.T) {
	vars := PathVars{
		Title:     "Fate/Zero",
		Season:    2,
		Episode:   3,
		Year:      2012,
		Provider:  "bilibili",
		AnimeID:   7,
		SourceID:  9,
		EpisodeID: 42,
	}

	got := BuildPath("/data/${provider}/${title}/S${season}E${episode}", vars)
	want := "/data/bilibili/Fate_Zero/S2E3.xml"
	if got != want {
		t.Errorf("BuildPath() = %q, want %q", got, want)
	}

	got = BuildPath("/data/${animeId}/${episodeId}", vars)
	if got != "/data/7/42.xml" {
		t.Errorf("BuildPath() = %q", got)
	}
}
