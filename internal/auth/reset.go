// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package auth

import (
	"context"
	"time"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
)

// ResetWorker zeroes every token's daily counter at local midnight.
// ConsumeTokenCall also lazy-resets per token on first use of a new
// day; the sweep keeps the admin listing honest for idle tokens.
type ResetWorker struct {
	db *database.DB
}

// NewResetWorker creates the midnight sweep worker.
func NewResetWorker(db *database.DB) *ResetWorker {
	return &ResetWorker{db: db}
}

// Serve implements suture.Service.
func (w *ResetWorker) Serve(ctx context.Context) error {
	logging.Info().Msg("Token reset worker started")
	for {
		now := time.Now()
		next := nextMidnight(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		today := dateKey(time.Now())
		if err := w.db.ResetTokenCounters(ctx, today); err != nil {
			logging.Error().Err(err).Msg("Failed to reset token counters")
			continue
		}
		logging.Info().Str("date", today).Msg("Token daily counters reset")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *ResetWorker) String() string {
	return "token-reset"
}

func nextMidnight(now time.Time) time.Time {
	local := now.Local()
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, local.Location())
}
