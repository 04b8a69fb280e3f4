// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := Logger()
	SetLogger(NewTestLogger(&buf))
	t.Cleanup(func() { SetLogger(previous) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (raw %q)", err, buf.String())
	}
	return entry
}

func TestSlogForwardsToZerolog(t *testing.T) {
	buf := captureOutput(t)

	Slog().Info("service started", "service", "http-server", "restarts", 3)

	entry := decodeLine(t, buf)
	if entry["message"] != "service started" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["service"] != "http-server" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["restarts"] != float64(3) {
		t.Errorf("restarts = %v", entry["restarts"])
	}
}

func TestSlogCarriesBoundAttrs(t *testing.T) {
	buf := captureOutput(t)

	Slog().With("supervisor", "barrage").Warn("service failed")

	entry := decodeLine(t, buf)
	if entry["level"] != "warn" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["supervisor"] != "barrage" {
		t.Errorf("supervisor = %v", entry["supervisor"])
	}
}

func TestSlogGroupPrefixesKeys(t *testing.T) {
	buf := captureOutput(t)

	Slog().WithGroup("restart").Error("backoff", "count", 2)

	entry := decodeLine(t, buf)
	if entry["restart.count"] != float64(2) {
		t.Errorf("restart.count = %v (entry %v)", entry["restart.count"], entry)
	}
}
