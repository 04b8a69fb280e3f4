// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/okanami/barrage/internal/auth"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/metrics"
)

type contextKey string

const (
	tokenContextKey contextKey = "api_token"
	adminContextKey contextKey = "admin_user"
)

// pathParam reads a chi URL parameter.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// corsHandler builds the CORS middleware from the configured origins.
// No origins configured means no cross-origin access.
func corsHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Token"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// rateLimiter throttles by client IP and records rejections.
func rateLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			NewResponseWriter(w, r).TooManyRequests("rate limit exceeded")
		}),
	)
}

// bearerOrTokenHeader extracts the client token from X-API-Token or
// the Authorization bearer scheme.
func bearerOrTokenHeader(r *http.Request) string {
	if token := r.Header.Get("X-API-Token"); token != "" {
		return token
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

// tokenAuth gates the player-facing comment endpoints: UA rules first,
// then token validation with the daily counter.
func (rt *Router) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		if err := rt.tokens.CheckUA(r.Context(), r.UserAgent()); err != nil {
			metrics.TokenRejections.WithLabelValues("ua_blocked").Inc()
			rw.Forbidden("client is not allowed")
			return
		}

		value := bearerOrTokenHeader(r)
		if value == "" {
			metrics.TokenRejections.WithLabelValues("missing").Inc()
			rw.Unauthorized("API token required")
			return
		}

		token, err := rt.tokens.Validate(r.Context(), value, time.Now())
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenInvalid):
				metrics.TokenRejections.WithLabelValues("invalid").Inc()
				rw.Unauthorized("invalid API token")
			case errors.Is(err, auth.ErrTokenDisabled):
				metrics.TokenRejections.WithLabelValues("disabled").Inc()
				rw.Unauthorized("API token is disabled")
			case errors.Is(err, auth.ErrTokenExpired):
				metrics.TokenRejections.WithLabelValues("expired").Inc()
				rw.Unauthorized("API token has expired")
			case errors.Is(err, auth.ErrDailyLimitReached):
				metrics.TokenRejections.WithLabelValues("daily_limit").Inc()
				rw.TooManyRequests("daily call limit reached")
			default:
				rw.InternalError("token validation failed")
			}
			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminAuth gates the management endpoints behind a JWT session from
// the login endpoint.
func (rt *Router) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			rw.Unauthorized("admin session required")
			return
		}

		subject, err := rt.admin.VerifySession(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected admin session")
			rw.Unauthorized("session is invalid or expired")
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders hardens API responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
