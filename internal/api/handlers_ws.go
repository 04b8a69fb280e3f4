// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/websocket"
)

// handleTaskSocket upgrades to a websocket and registers the client
// with the hub for live task events. Browsers cannot set headers on a
// websocket dial, so the admin session JWT rides the token query
// parameter.
func (rt *Router) handleTaskSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		NewResponseWriter(w, r).Unauthorized("admin session required")
		return
	}
	if _, err := rt.admin.VerifySession(token); err != nil {
		NewResponseWriter(w, r).Unauthorized("session is invalid or expired")
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     rt.checkWSOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := websocket.NewClient(rt.hub, conn)
	rt.hub.Register <- client
	client.Start()
}

// checkWSOrigin admits same-origin dials and any configured CORS
// origin. Non-browser clients send no Origin header and pass.
func (rt *Router) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range rt.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
