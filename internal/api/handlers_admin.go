// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okanami/barrage/internal/auth"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
)

// handleLogin exchanges admin credentials for a session JWT.
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req loginRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	token, err := rt.admin.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			logging.Warn().Str("username", req.Username).Msg("Failed admin login")
			rw.Unauthorized("invalid username or password")
			return
		}
		rw.InternalError("login unavailable: " + err.Error())
		return
	}

	rw.Success(map[string]string{"token": token})
}

// handleListTokens lists API tokens with their daily counters.
func (rt *Router) handleListTokens(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	tokens, err := rt.db.ListAPITokens(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if tokens == nil {
		tokens = []models.APIToken{}
	}
	rw.Success(tokens)
}

// handleCreateToken mints a new API token.
func (rt *Router) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createTokenRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		rw.BadRequest("expiresAt is in the past")
		return
	}

	token, err := rt.tokens.Create(r.Context(), req.Name, req.ExpiresAt, req.DailyCallLimit)
	if err != nil {
		rw.InternalError("failed to create token: " + err.Error())
		return
	}
	rw.Created(token)
}

// handleDeleteToken revokes a token.
func (rt *Router) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := pathID(r, "tokenId")
	if !ok {
		rw.BadRequest("tokenId must be a positive integer")
		return
	}

	if err := rt.db.DeleteAPIToken(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("token not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int64{"id": id})
}

// handleToggleToken flips a token's enabled flag.
func (rt *Router) handleToggleToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := pathID(r, "tokenId")
	if !ok {
		rw.BadRequest("tokenId must be a positive integer")
		return
	}

	token, err := rt.db.GetAPITokenByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("token not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	if err := rt.db.SetAPITokenEnabled(r.Context(), id, !token.Enabled); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]interface{}{"id": id, "enabled": !token.Enabled})
}

// handleResetToken zeroes a token's daily counter.
func (rt *Router) handleResetToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := pathID(r, "tokenId")
	if !ok {
		rw.BadRequest("tokenId must be a positive integer")
		return
	}

	if err := rt.tokens.ResetCounter(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("token not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int64{"id": id})
}

// handleListUARules lists the User-Agent filter rules.
func (rt *Router) handleListUARules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rules, err := rt.db.ListUARules(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if rules == nil {
		rules = []models.UARule{}
	}
	rw.Success(rules)
}

// handleCreateUARule adds a UA prefix rule.
func (rt *Router) handleCreateUARule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createUARuleRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	id, err := rt.db.CreateUARule(r.Context(), req.Prefix, models.UARuleMode(req.Mode))
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			rw.Conflict("a rule with this prefix already exists")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Created(map[string]int64{"id": id})
}

// handleDeleteUARule removes a UA rule.
func (rt *Router) handleDeleteUARule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := pathID(r, "ruleId")
	if !ok {
		rw.BadRequest("ruleId must be a positive integer")
		return
	}

	if err := rt.db.DeleteUARule(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("rule not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]int64{"id": id})
}

// handleListSettings dumps the dynamic settings table.
func (rt *Router) handleListSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	values, err := rt.settings.All(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(values)
}

// handleUpdateSettings writes dynamic settings keys through the cache.
func (rt *Router) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req settingsUpdateRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	for key, value := range req.Values {
		if err := rt.settings.Set(r.Context(), key, value); err != nil {
			rw.DatabaseError(err)
			return
		}
	}
	rw.Success(map[string]int{"updated": len(req.Values)})
}
