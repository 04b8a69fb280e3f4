// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/settings"
)

type fakeSource struct {
	name    string
	aliases []string
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Aliases(context.Context, string) ([]string, error) {
	return f.aliases, f.err
}

func TestCollectAliasesDedupAndOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: "a", aliases: []string{"葬送のフリーレン", "Frieren: Beyond Journey's End"}})
	r.Register(&fakeSource{name: "b", aliases: []string{"葬送のフリーレン", "Sousou no Frieren"}})

	got := r.CollectAliases(context.Background(), "Frieren")
	want := []string{"葬送のフリーレン", "Frieren: Beyond Journey's End", "Sousou no Frieren"}
	if len(got) != len(want) {
		t.Fatalf("CollectAliases() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alias %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollectAliasesSkipsFailingSource(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: "broken", err: errors.New("upstream down")})
	r.Register(&fakeSource{name: "ok", aliases: []string{"alias"}})

	got := r.CollectAliases(context.Background(), "Frieren")
	if len(got) != 1 || got[0] != "alias" {
		t.Errorf("CollectAliases() = %v, want [alias]", got)
	}
}

func TestCollectAliasesDropsKeywordItself(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: "a", aliases: []string{"frieren", "  ", "Other"}})

	got := r.CollectAliases(context.Background(), "Frieren")
	if len(got) != 1 || got[0] != "Other" {
		t.Errorf("CollectAliases() = %v, want [Other]", got)
	}
}

func TestStaticSource(t *testing.T) {
	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	svc := settings.NewService(db)
	ctx := context.Background()

	src := NewStaticSource(svc)
	src.SetAliases(map[string][]string{
		"Frieren": {"葬送のフリーレン", "Sousou no Frieren"},
	})

	// Case-insensitive lookup.
	got, err := src.Aliases(ctx, "frieren")
	if err != nil {
		t.Fatalf("Aliases() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Aliases() = %v, want 2 entries", got)
	}

	// Disabled via settings.
	if err := svc.Set(ctx, "metadataAliasEnabled", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err = src.Aliases(ctx, "frieren")
	if err != nil {
		t.Fatalf("Aliases() disabled error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Aliases() while disabled = %v, want empty", got)
	}
}
