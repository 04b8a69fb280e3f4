// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package models

import "time"

// APIToken grants player clients access to the comment endpoints.
// Token is a 20-character base62 string and is globally unique.
// DailyCallLimit of -1 means unlimited; DailyCount resets at local
// midnight.
type APIToken struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Token          string     `json:"token"`
	Enabled        bool       `json:"enabled"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	DailyCallLimit int        `json:"dailyCallLimit"`
	DailyCount     int        `json:"dailyCount"`
	LastResetDate  string     `json:"lastResetDate"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// IsExpired reports whether the token has passed its expiry instant.
func (t *APIToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// UARule filters clients by User-Agent prefix before token validation.
type UARule struct {
	ID        int64      `json:"id"`
	Prefix    string     `json:"prefix"`
	Mode      UARuleMode `json:"mode"`
	CreatedAt time.Time  `json:"createdAt"`
}

// UARuleMode is the action a UA rule applies.
type UARuleMode string

const (
	UARuleAllow UARuleMode = "allow"
	UARuleDeny  UARuleMode = "deny"
)
