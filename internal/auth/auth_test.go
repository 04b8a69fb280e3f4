// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/okanami/barrage/internal/config"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/models"
)

var testDBSemaphore = make(chan struct{}, 1)

func setupTokenService(t *testing.T) (*TokenService, *database.DB) {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewTokenService(db), db
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken error = %v", err)
		}
		if len(token) != tokenLength {
			t.Fatalf("token length = %d, want %d", len(token), tokenLength)
		}
		for _, r := range token {
			if !strings.ContainsRune(tokenAlphabet, r) {
				t.Fatalf("token %q contains %q outside the alphabet", token, r)
			}
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q in 32 draws", token)
		}
		seen[token] = struct{}{}
	}
}

func TestValidateHappyPath(t *testing.T) {
	s, _ := setupTokenService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "living room player", nil, -1)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	got, err := s.Validate(ctx, created.Token, time.Now())
	if err != nil {
		t.Fatalf("Validate error = %v", err)
	}
	if got.DailyCount != 1 {
		t.Errorf("DailyCount = %d, want 1", got.DailyCount)
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	s, _ := setupTokenService(t)

	_, err := s.Validate(context.Background(), "nope", time.Now())
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestValidateRejectsDisabledToken(t *testing.T) {
	s, db := setupTokenService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "old player", nil, -1)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if err := db.SetAPITokenEnabled(ctx, created.ID, false); err != nil {
		t.Fatalf("SetAPITokenEnabled error = %v", err)
	}

	_, err = s.Validate(ctx, created.Token, time.Now())
	if !errors.Is(err, ErrTokenDisabled) {
		t.Errorf("error = %v, want ErrTokenDisabled", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	s, _ := setupTokenService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	created, err := s.Create(ctx, "expired", &past, -1)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	_, err = s.Validate(ctx, created.Token, time.Now())
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestValidateEnforcesDailyLimit(t *testing.T) {
	s, _ := setupTokenService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "capped", nil, 2)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := s.Validate(ctx, created.Token, now); err != nil {
			t.Fatalf("call %d error = %v", i+1, err)
		}
	}
	_, err = s.Validate(ctx, created.Token, now)
	if !errors.Is(err, ErrDailyLimitReached) {
		t.Errorf("error = %v, want ErrDailyLimitReached", err)
	}
}

func TestDailyCounterResetsAcrossDays(t *testing.T) {
	s, _ := setupTokenService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "daily", nil, 1)
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	today := time.Now()
	if _, err := s.Validate(ctx, created.Token, today); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if _, err := s.Validate(ctx, created.Token, today); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("second call error = %v, want ErrDailyLimitReached", err)
	}

	tomorrow := today.Add(24 * time.Hour)
	got, err := s.Validate(ctx, created.Token, tomorrow)
	if err != nil {
		t.Fatalf("next-day call error = %v", err)
	}
	if got.DailyCount != 1 {
		t.Errorf("next-day DailyCount = %d, want 1", got.DailyCount)
	}
}

func TestCheckUA(t *testing.T) {
	s, db := setupTokenService(t)
	ctx := context.Background()

	if err := s.CheckUA(ctx, "AnyPlayer/1.0"); err != nil {
		t.Errorf("no rules: error = %v", err)
	}

	if _, err := db.CreateUARule(ctx, "BadBot", models.UARuleDeny); err != nil {
		t.Fatalf("CreateUARule error = %v", err)
	}
	if err := s.CheckUA(ctx, "BadBot/2.1"); !errors.Is(err, ErrUABlocked) {
		t.Errorf("deny rule: error = %v, want ErrUABlocked", err)
	}
	if err := s.CheckUA(ctx, "GoodPlayer/1.0"); err != nil {
		t.Errorf("deny rule non-match: error = %v", err)
	}

	if _, err := db.CreateUARule(ctx, "GoodPlayer", models.UARuleAllow); err != nil {
		t.Fatalf("CreateUARule error = %v", err)
	}
	if err := s.CheckUA(ctx, "GoodPlayer/1.0"); err != nil {
		t.Errorf("allow rule match: error = %v", err)
	}
	if err := s.CheckUA(ctx, "OtherPlayer/1.0"); !errors.Is(err, ErrUABlocked) {
		t.Errorf("allow rule non-match: error = %v, want ErrUABlocked", err)
	}
}

func testSecurityConfig(t *testing.T) config.SecurityConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	return config.SecurityConfig{
		JWTSecret:         "test-secret",
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
		SessionTimeout:    time.Hour,
	}
}

func TestAdminLoginRoundTrip(t *testing.T) {
	a := NewAdminAuth(testSecurityConfig(t))

	token, err := a.Login("admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error = %v", err)
	}
	subject, err := a.VerifySession(token)
	if err != nil {
		t.Fatalf("VerifySession error = %v", err)
	}
	if subject != "admin" {
		t.Errorf("subject = %q, want admin", subject)
	}
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	a := NewAdminAuth(testSecurityConfig(t))

	if _, err := a.Login("admin", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong password: error = %v, want ErrBadCredentials", err)
	}
	if _, err := a.Login("root", "hunter2hunter2"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong username: error = %v, want ErrBadCredentials", err)
	}
}

func TestVerifySessionRejectsForgedToken(t *testing.T) {
	a := NewAdminAuth(testSecurityConfig(t))

	cfg := testSecurityConfig(t)
	cfg.JWTSecret = "different-secret"
	forged, err := NewAdminAuth(cfg).Login("admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login error = %v", err)
	}
	if _, err := a.VerifySession(forged); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("forged token: error = %v, want ErrSessionInvalid", err)
	}
}

func TestVerifySessionRejectsGarbage(t *testing.T) {
	a := NewAdminAuth(testSecurityConfig(t))
	if _, err := a.VerifySession("not.a.jwt"); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("error = %v, want ErrSessionInvalid", err)
	}
}
