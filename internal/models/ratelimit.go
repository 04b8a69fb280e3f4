// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package models

import "time"

// RateLimitState is one fixed-window counter row. ProviderName is
// "__global__" for the process-wide counter.
type RateLimitState struct {
	ProviderName  string    `json:"providerName"`
	RequestCount  int       `json:"requestCount"`
	LastResetTime time.Time `json:"lastResetTime"`
}

// ProviderQuotaStatus is the per-provider slice of the rate-limit
// status endpoint. Quota is the configured cap or "∞" when unlimited.
type ProviderQuotaStatus struct {
	ProviderName string `json:"providerName"`
	RequestCount int    `json:"requestCount"`
	Quota        string `json:"quota"`
}

// RateLimitStatus is the payload of the rate-limit status endpoint.
// Reading it advances the current window without consuming quota.
type RateLimitStatus struct {
	GlobalEnabled      bool                  `json:"globalEnabled"`
	VerificationFailed bool                  `json:"verificationFailed"`
	GlobalRequestCount int                   `json:"globalRequestCount"`
	GlobalLimit        int                   `json:"globalLimit"`
	GlobalPeriod       int                   `json:"globalPeriod"`
	SecondsUntilReset  int                   `json:"secondsUntilReset"`
	Providers          []ProviderQuotaStatus `json:"providers"`
}
