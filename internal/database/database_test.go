// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"testing"

	"github.com/okanami/barrage/internal/models"
)

// testDBSemaphore serializes DuckDB creation across tests. Concurrent
// CGO connections under CI resource pressure can hang, so each test
// holds the slot for its whole lifetime.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates an in-memory database and holds the concurrency
// slot until the test completes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := NewInMemory()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

// seedSource creates an anime with one linked source and returns both IDs.
func seedSource(t *testing.T, db *DB, title, provider, mediaID string) (animeID, sourceID int64) {
	t.Helper()
	ctx := context.Background()

	animeID, err := db.GetOrCreateAnime(ctx, title, models.MediaTypeTVSeries, 1, "", "", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAnime() error = %v", err)
	}
	sourceID, err = db.LinkSourceToAnime(ctx, animeID, provider, mediaID)
	if err != nil {
		t.Fatalf("LinkSourceToAnime() error = %v", err)
	}
	return animeID, sourceID
}

func TestNewInMemory(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ascii colon replaced", input: "Fate:Zero", want: "Fate：Zero"},
		{name: "already fullwidth", input: "Fate：Zero", want: "Fate：Zero"},
		{name: "whitespace trimmed", input: "  Frieren  ", want: "Frieren"},
		{name: "multiple colons", input: "a:b:c", want: "a：b：c"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
