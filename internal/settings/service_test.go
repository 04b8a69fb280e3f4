// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package settings

import (
	"context"
	"testing"

	"github.com/okanami/barrage/internal/database"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return NewService(db)
}

func TestGetSeedsDefault(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	value, err := svc.Get(ctx, "searchCacheTtlSeconds")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "10800" {
		t.Errorf("Get(searchCacheTtlSeconds) = %q, want default 10800", value)
	}

	// The seeded default must now be persisted.
	stored, found, err := svc.db.GetSetting(ctx, "searchCacheTtlSeconds")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if !found || stored != "10800" {
		t.Errorf("seeded default not persisted: (%q, %v)", stored, found)
	}
}

func TestGetUnknownKey(t *testing.T) {
	svc := setupService(t)

	value, err := svc.Get(context.Background(), "noSuchKey")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "" {
		t.Errorf("Get(unknown) = %q, want empty", value)
	}
}

func TestSetUpdatesCacheAndStore(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "proxyUrl", "http://127.0.0.1:7890"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, err := svc.Get(ctx, "proxyUrl")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "http://127.0.0.1:7890" {
		t.Errorf("Get() after Set = %q", value)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "proxyEnabled", "true"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Write behind the cache's back, then invalidate.
	if err := svc.db.SetSetting(ctx, "proxyEnabled", "false"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}

	value, err := svc.Get(ctx, "proxyEnabled")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "true" {
		t.Errorf("cached read = %q, want stale true", value)
	}

	svc.Invalidate("proxyEnabled")
	value, err = svc.Get(ctx, "proxyEnabled")
	if err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if value != "false" {
		t.Errorf("Get() after Invalidate = %q, want false", value)
	}
}

func TestTypedGetters(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bool", key: "danmakuAggregationEnabled", value: "false"},
		{name: "int", key: "downloadFallbackSegmentLimit", value: "42"},
		{name: "garbage", key: "providerRetryCount", value: "banana"},
	}
	for _, tt := range tests {
		if err := svc.Set(ctx, tt.key, tt.value); err != nil {
			t.Fatalf("Set(%s) error = %v", tt.key, err)
		}
	}

	b, err := svc.GetBool(ctx, "danmakuAggregationEnabled", true)
	if err != nil || b {
		t.Errorf("GetBool() = (%v, %v), want (false, nil)", b, err)
	}

	n, err := svc.GetInt(ctx, "downloadFallbackSegmentLimit", 100)
	if err != nil || n != 42 {
		t.Errorf("GetInt() = (%d, %v), want (42, nil)", n, err)
	}

	// Unparseable values fall back.
	n, err = svc.GetInt(ctx, "providerRetryCount", 3)
	if err != nil || n != 3 {
		t.Errorf("GetInt(garbage) = (%d, %v), want fallback (3, nil)", n, err)
	}

	// Keys with neither value nor default fall back.
	b, err = svc.GetBool(ctx, "missingFlag", true)
	if err != nil || !b {
		t.Errorf("GetBool(missing) = (%v, %v), want fallback (true, nil)", b, err)
	}
}
