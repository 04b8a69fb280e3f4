// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package auth covers the two access paths: player API tokens with
// daily call counters, and the admin JWT session for the management
// endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
)

const (
	tokenLength   = 20
	tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Token validation failures, distinguishable so the API layer can map
// them to 401 vs 429.
var (
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenDisabled     = errors.New("token is disabled")
	ErrTokenExpired      = errors.New("token is expired")
	ErrDailyLimitReached = errors.New("token daily call limit reached")
	ErrUABlocked         = errors.New("user agent blocked")
)

// TokenService manages player API tokens.
type TokenService struct {
	db *database.DB
}

// NewTokenService creates the token service.
func NewTokenService(db *database.DB) *TokenService {
	return &TokenService{db: db}
}

// GenerateToken returns a fresh random base62 token string.
func GenerateToken() (string, error) {
	var b strings.Builder
	b.Grow(tokenLength)
	maxIndex := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, maxIndex)
		if err != nil {
			return "", fmt.Errorf("failed to draw token character: %w", err)
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Create mints and persists a token. dailyLimit -1 means unlimited;
// expiresAt nil means no expiry.
func (s *TokenService) Create(ctx context.Context, name string, expiresAt *time.Time, dailyLimit int) (*models.APIToken, error) {
	value, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	token := &models.APIToken{
		Name:           name,
		Token:          value,
		Enabled:        true,
		ExpiresAt:      expiresAt,
		DailyCallLimit: dailyLimit,
		LastResetDate:  dateKey(time.Now()),
	}
	id, err := s.db.CreateAPIToken(ctx, token)
	if err != nil {
		return nil, err
	}
	token.ID = id
	return token, nil
}

// Validate authorizes one comment-endpoint call: the token must exist,
// be enabled and unexpired, and have budget left for today. The daily
// counter is consumed as part of validation.
func (s *TokenService) Validate(ctx context.Context, value string, now time.Time) (*models.APIToken, error) {
	token, err := s.db.GetAPIToken(ctx, value)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if !token.Enabled {
		return nil, ErrTokenDisabled
	}
	if token.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	updated, err := s.db.ConsumeTokenCall(ctx, token.ID, dateKey(now))
	if err != nil {
		return nil, err
	}
	if updated.DailyCallLimit >= 0 && updated.DailyCount > updated.DailyCallLimit {
		return nil, ErrDailyLimitReached
	}
	return updated, nil
}

// ResetCounter zeroes one token's daily counter immediately.
func (s *TokenService) ResetCounter(ctx context.Context, id int64) error {
	return s.db.ResetTokenCounter(ctx, id, dateKey(time.Now()))
}

// CheckUA applies the User-Agent prefix rules: any matching deny rule
// blocks, and when allow rules exist at least one must match. No rules
// means everything passes.
func (s *TokenService) CheckUA(ctx context.Context, userAgent string) error {
	rules, err := s.db.ListUARules(ctx)
	if err != nil {
		return err
	}

	hasAllow := false
	allowed := false
	for _, rule := range rules {
		match := strings.HasPrefix(userAgent, rule.Prefix)
		switch rule.Mode {
		case models.UARuleDeny:
			if match {
				return ErrUABlocked
			}
		case models.UARuleAllow:
			hasAllow = true
			if match {
				allowed = true
			}
		}
	}
	if hasAllow && !allowed {
		return ErrUABlocked
	}
	return nil
}

// dateKey formats the local calendar day used by the daily counters.
func dateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
