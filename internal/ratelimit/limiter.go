// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package ratelimit enforces the global and per-provider outbound fetch
// quotas. Counters are fixed-window and live in the database so limits
// survive restarts; quota configuration arrives as a signed operator
// artifact.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
)

// UIStatusCheck is the synthetic provider used by the status endpoint.
// A Check against it advances the window without consuming quota.
const UIStatusCheck = "__ui_status_check__"

// UnlimitedQuota marks a provider with no per-provider cap.
const UnlimitedQuota = -1

// Limiter is the DB-backed fixed-window rate limiter.
type Limiter struct {
	db *database.DB

	mu                 sync.RWMutex
	enabled            bool
	globalLimit        int
	period             time.Duration
	verificationFailed bool
	quotas             map[string]int
}

// New builds a limiter from the signed artifact in dir. A missing
// artifact leaves global limiting disabled; a present but unverifiable
// artifact puts the limiter into the verification-failed state in which
// every Check fails.
func New(db *database.DB, dir string) *Limiter {
	l := &Limiter{
		db:     db,
		period: time.Hour,
		quotas: make(map[string]int),
	}

	cfg, err := loadArtifact(dir)
	if err != nil {
		logging.Error().Err(err).Str("dir", dir).Msg("Rate limit config verification failed, blocking all providers")
		l.verificationFailed = true
		return l
	}
	if cfg == nil {
		logging.Info().Str("dir", dir).Msg("No rate limit config artifact, global limiting disabled")
		return l
	}

	l.enabled = cfg.Enabled
	l.globalLimit = cfg.GlobalLimit
	if cfg.GlobalPeriodSeconds > 0 {
		l.period = time.Duration(cfg.GlobalPeriodSeconds) * time.Second
	}
	logging.Info().
		Bool("enabled", l.enabled).
		Int("globalLimit", l.globalLimit).
		Dur("period", l.period).
		Msg("Rate limiter configured")
	return l
}

// RegisterQuota declares a provider's per-provider cap. Adapters call
// this at registration; UnlimitedQuota providers only count against the
// global window.
func (l *Limiter) RegisterQuota(providerName string, quota int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotas[providerName] = quota
}

// VerificationFailed reports whether the signed artifact failed to
// verify at load.
func (l *Limiter) VerificationFailed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verificationFailed
}

// Check fails with *RateLimitedError when one more fetch for
// providerName would exceed the global or provider quota. It also
// performs the window reset; it never consumes quota itself.
func (l *Limiter) Check(ctx context.Context, providerName string) error {
	l.mu.RLock()
	enabled := l.enabled
	globalLimit := l.globalLimit
	period := l.period
	failed := l.verificationFailed
	quota, hasQuota := l.quotas[providerName]
	l.mu.RUnlock()

	if failed {
		return &RateLimitedError{ProviderName: providerName, RetryAfter: period}
	}

	statusOnly := providerName == UIStatusCheck

	if enabled || statusOnly {
		state, err := l.advanceWindow(ctx, database.GlobalRateLimitKey, period)
		if err != nil {
			return err
		}
		if !statusOnly && globalLimit > 0 && state.RequestCount+1 > globalLimit {
			return &RateLimitedError{
				ProviderName: providerName,
				RetryAfter:   retryAfter(state.LastResetTime, period),
			}
		}
	}
	if statusOnly {
		return nil
	}

	if hasQuota && quota != UnlimitedQuota {
		state, err := l.advanceWindow(ctx, providerName, period)
		if err != nil {
			return err
		}
		if state.RequestCount+1 > quota {
			return &RateLimitedError{
				ProviderName: providerName,
				RetryAfter:   retryAfter(state.LastResetTime, period),
			}
		}
	}
	return nil
}

// Increment records one successful upstream fetch against both the
// global window and the provider's own counter.
func (l *Limiter) Increment(ctx context.Context, providerName string) error {
	l.mu.RLock()
	period := l.period
	l.mu.RUnlock()

	bump := func(s *models.RateLimitState) error {
		resetIfExpired(s, period)
		s.RequestCount++
		return nil
	}

	if _, err := l.db.MutateRateLimitState(ctx, database.GlobalRateLimitKey, bump); err != nil {
		return fmt.Errorf("failed to increment global counter: %w", err)
	}
	if _, err := l.db.MutateRateLimitState(ctx, providerName, bump); err != nil {
		return fmt.Errorf("failed to increment %s counter: %w", providerName, err)
	}
	return nil
}

// Status builds the rate-limit status payload. The read advances the
// current window via the synthetic provider without consuming quota.
func (l *Limiter) Status(ctx context.Context) (*models.RateLimitStatus, error) {
	if err := l.Check(ctx, UIStatusCheck); err != nil {
		var rle *RateLimitedError
		// In the verification-failed state the synthetic check fails too;
		// the status payload still reports what it can.
		if !errors.As(err, &rle) {
			return nil, err
		}
	}

	l.mu.RLock()
	enabled := l.enabled
	globalLimit := l.globalLimit
	period := l.period
	failed := l.verificationFailed
	quotas := make(map[string]int, len(l.quotas))
	for name, quota := range l.quotas {
		quotas[name] = quota
	}
	l.mu.RUnlock()

	states, err := l.db.ListRateLimitStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit states: %w", err)
	}

	status := &models.RateLimitStatus{
		GlobalEnabled:      enabled,
		VerificationFailed: failed,
		GlobalLimit:        globalLimit,
		GlobalPeriod:       int(period.Seconds()),
	}
	for _, s := range states {
		if s.ProviderName == database.GlobalRateLimitKey {
			status.GlobalRequestCount = s.RequestCount
			status.SecondsUntilReset = int(retryAfter(s.LastResetTime, period).Seconds())
			continue
		}
		if s.ProviderName == UIStatusCheck {
			continue
		}
		quotaStr := "∞"
		if quota, ok := quotas[s.ProviderName]; ok && quota != UnlimitedQuota {
			quotaStr = fmt.Sprintf("%d", quota)
		}
		status.Providers = append(status.Providers, models.ProviderQuotaStatus{
			ProviderName: s.ProviderName,
			RequestCount: s.RequestCount,
			Quota:        quotaStr,
		})
	}
	return status, nil
}

// advanceWindow resets the row's window when the period has elapsed and
// returns the current state without incrementing.
func (l *Limiter) advanceWindow(ctx context.Context, name string, period time.Duration) (*models.RateLimitState, error) {
	state, err := l.db.MutateRateLimitState(ctx, name, func(s *models.RateLimitState) error {
		resetIfExpired(s, period)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance window for %s: %w", name, err)
	}
	return state, nil
}

func resetIfExpired(s *models.RateLimitState, period time.Duration) {
	if time.Since(s.LastResetTime) >= period {
		s.RequestCount = 0
		s.LastResetTime = time.Now()
	}
}

func retryAfter(lastReset time.Time, period time.Duration) time.Duration {
	remaining := period - time.Since(lastReset)
	if remaining < 0 {
		return 0
	}
	return remaining
}
