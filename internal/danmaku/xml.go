// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package danmaku

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okanami/barrage/internal/models"
)

// ParseXML reads the custom interchange format with a streaming
// decoder so arbitrarily large files never materialize as a DOM. Only
// <d> elements are consumed; header elements are skipped. Three-field
// p tuples are repaired by inserting the default font size.
func ParseXML(r io.Reader) ([]models.RawComment, error) {
	decoder := xml.NewDecoder(r)

	comments := []models.RawComment{}
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read danmaku XML: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "d" {
			continue
		}

		var attr string
		for _, a := range start.Attr {
			if a.Name.Local == "p" {
				attr = a.Value
				break
			}
		}

		var element struct {
			Text string `xml:",chardata"`
		}
		if err := decoder.DecodeElement(&element, &start); err != nil {
			return nil, fmt.Errorf("failed to decode danmaku entry: %w", err)
		}

		raw, ok := parsePAttr(attr, element.Text)
		if !ok {
			continue
		}
		comments = append(comments, raw)
	}
	return comments, nil
}

// parsePAttr decodes "time,mode[,size],color[,...]". A three-field
// tuple is treated as time,mode,color.
func parsePAttr(p, text string) (models.RawComment, bool) {
	fields := strings.Split(p, ",")
	if len(fields) < 3 {
		return models.RawComment{}, false
	}

	timeSec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return models.RawComment{}, false
	}
	mode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return models.RawComment{}, false
	}

	fontSize := defaultFontSize
	var colorField string
	if len(fields) == 3 {
		colorField = fields[2]
	} else {
		if size, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil && size > 0 {
			fontSize = size
		}
		colorField = fields[3]
	}
	color, err := strconv.Atoi(strings.TrimSpace(colorField))
	if err != nil {
		color = defaultColor
	}

	return models.RawComment{
		CID:      fields[0] + ":" + text,
		TimeSec:  timeSec,
		Mode:     mode,
		FontSize: fontSize,
		Color:    color,
		Text:     text,
	}, true
}

// WriteXML streams comments out in the interchange format. Entries are
// written one element at a time; nothing is buffered beyond the
// writer's own buffer.
func WriteXML(w io.Writer, comments []models.Comment) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(xml.Header); err != nil {
		return err
	}
	header := fmt.Sprintf("<i>\n  <chatserver>danmu</chatserver>\n  <chatid>0</chatid>\n  <mission>0</mission>\n  <maxlimit>%d</maxlimit>\n  <source>kuyun</source>\n", len(comments))
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	for _, c := range comments {
		if _, err := bw.WriteString(`  <d p="`); err != nil {
			return err
		}
		if err := xml.EscapeText(bw, []byte(c.P)); err != nil {
			return err
		}
		if _, err := bw.WriteString(`">`); err != nil {
			return err
		}
		if err := xml.EscapeText(bw, []byte(c.M)); err != nil {
			return err
		}
		if _, err := bw.WriteString("</d>\n"); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("</i>\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// ParsePlainText converts the line-oriented fallback format, one
// comment per line as "time,mode,size,color[,...] | text". Lines
// without a pipe separator or with a malformed tuple are skipped.
func ParsePlainText(r io.Reader) ([]models.RawComment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	comments := []models.RawComment{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		attr, text, found := strings.Cut(line, "|")
		if !found {
			continue
		}
		raw, ok := parsePAttr(strings.TrimSpace(attr), strings.TrimSpace(text))
		if !ok {
			continue
		}
		comments = append(comments, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plain-text danmaku: %w", err)
	}
	return comments, nil
}
