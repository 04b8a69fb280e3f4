// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okanami/barrage/internal/models"
)

func TestMutateRateLimitStateCreatesRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	state, err := db.MutateRateLimitState(ctx, GlobalRateLimitKey, func(s *models.RateLimitState) error {
		s.RequestCount++
		return nil
	})
	if err != nil {
		t.Fatalf("MutateRateLimitState() error = %v", err)
	}
	if state.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", state.RequestCount)
	}
	if state.LastResetTime.IsZero() {
		t.Error("LastResetTime not initialized for new row")
	}
}

func TestMutateRateLimitStatePersistsAcrossCalls(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.MutateRateLimitState(ctx, "bilibili", func(s *models.RateLimitState) error {
			s.RequestCount++
			return nil
		}); err != nil {
			t.Fatalf("MutateRateLimitState() call %d error = %v", i, err)
		}
	}

	state, err := db.MutateRateLimitState(ctx, "bilibili", func(s *models.RateLimitState) error {
		return nil
	})
	if err != nil {
		t.Fatalf("MutateRateLimitState() readback error = %v", err)
	}
	if state.RequestCount != 3 {
		t.Errorf("RequestCount = %d, want 3", state.RequestCount)
	}
}

func TestMutateRateLimitStateWindowReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Age the window, then let fn reset it the way the limiter does.
	old := time.Now().Add(-2 * time.Hour)
	if _, err := db.MutateRateLimitState(ctx, "tencent", func(s *models.RateLimitState) error {
		s.RequestCount = 50
		s.LastResetTime = old
		return nil
	}); err != nil {
		t.Fatalf("MutateRateLimitState() seed error = %v", err)
	}

	state, err := db.MutateRateLimitState(ctx, "tencent", func(s *models.RateLimitState) error {
		if time.Since(s.LastResetTime) > time.Hour {
			s.RequestCount = 0
			s.LastResetTime = time.Now()
		}
		s.RequestCount++
		return nil
	})
	if err != nil {
		t.Fatalf("MutateRateLimitState() error = %v", err)
	}
	if state.RequestCount != 1 {
		t.Errorf("RequestCount after window reset = %d, want 1", state.RequestCount)
	}
}

func TestMutateRateLimitStateFnErrorAborts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.MutateRateLimitState(ctx, "iqiyi", func(s *models.RateLimitState) error {
		s.RequestCount = 5
		return nil
	}); err != nil {
		t.Fatalf("MutateRateLimitState() seed error = %v", err)
	}

	wantErr := errors.New("limit exceeded")
	_, err := db.MutateRateLimitState(ctx, "iqiyi", func(s *models.RateLimitState) error {
		s.RequestCount = 999
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("MutateRateLimitState() error = %v, want %v", err, wantErr)
	}

	// The failed mutation must not have been persisted.
	state, err := db.MutateRateLimitState(ctx, "iqiyi", func(s *models.RateLimitState) error {
		return nil
	})
	if err != nil {
		t.Fatalf("MutateRateLimitState() readback error = %v", err)
	}
	if state.RequestCount != 5 {
		t.Errorf("RequestCount = %d, want 5 (aborted write leaked)", state.RequestCount)
	}
}

func TestListRateLimitStatesGlobalFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"bilibili", GlobalRateLimitKey, "tencent"} {
		if _, err := db.MutateRateLimitState(ctx, name, func(s *models.RateLimitState) error {
			s.RequestCount++
			return nil
		}); err != nil {
			t.Fatalf("MutateRateLimitState(%s) error = %v", name, err)
		}
	}

	states, err := db.ListRateLimitStates(ctx)
	if err != nil {
		t.Fatalf("ListRateLimitStates() error = %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("got %d states, want 3", len(states))
	}
	if states[0].ProviderName != GlobalRateLimitKey {
		t.Errorf("first state = %s, want %s", states[0].ProviderName, GlobalRateLimitKey)
	}
}

func TestResetRateLimitStates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.MutateRateLimitState(ctx, "bilibili", func(s *models.RateLimitState) error {
		s.RequestCount = 42
		return nil
	}); err != nil {
		t.Fatalf("MutateRateLimitState() error = %v", err)
	}

	if err := db.ResetRateLimitStates(ctx); err != nil {
		t.Fatalf("ResetRateLimitStates() error = %v", err)
	}

	states, err := db.ListRateLimitStates(ctx)
	if err != nil {
		t.Fatalf("ListRateLimitStates() error = %v", err)
	}
	for _, s := range states {
		if s.RequestCount != 0 {
			t.Errorf("state %s count = %d after reset, want 0", s.ProviderName, s.RequestCount)
		}
	}
}
