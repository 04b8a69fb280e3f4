// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/okanami/barrage/internal/config"
)

// ErrBadCredentials is returned for any login failure. The cause is
// deliberately not distinguished to the caller.
var ErrBadCredentials = errors.New("invalid username or password")

// ErrSessionInvalid is returned when a session token fails verification.
var ErrSessionInvalid = errors.New("session token is invalid")

// AdminAuth issues and verifies admin session tokens. Sessions are
// stateless HS256 JWTs signed with the configured secret.
type AdminAuth struct {
	cfg config.SecurityConfig
}

// NewAdminAuth creates the admin authenticator.
func NewAdminAuth(cfg config.SecurityConfig) *AdminAuth {
	return &AdminAuth{cfg: cfg}
}

// Login checks the credentials and returns a signed session token.
func (a *AdminAuth) Login(username, password string) (string, error) {
	if a.cfg.AdminPasswordHash == "" || a.cfg.JWTSecret == "" {
		return "", errors.New("admin login is not configured")
	}
	if username != a.cfg.AdminUsername {
		// Burn a comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(password))
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.SessionTimeout)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// VerifySession checks a session token and returns the admin username.
func (a *AdminAuth) VerifySession(tokenString string) (string, error) {
	if a.cfg.JWTSecret == "" {
		return "", ErrSessionInvalid
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
	if err != nil || !token.Valid {
		return "", ErrSessionInvalid
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrSessionInvalid
	}
	return claims.Subject, nil
}
