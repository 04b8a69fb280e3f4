// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package ratelimit

import (
	"fmt"
	"time"
)

// RateLimitedError is returned by Check when a request would exceed the
// global or per-provider quota. Task workers translate it into a paused
// task with a scheduled resume.
type RateLimitedError struct {
	ProviderName string
	RetryAfter   time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.ProviderName, e.RetryAfter)
}
