// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package middleware holds the HTTP middleware shared by the API
// router: request IDs, Prometheus instrumentation, and response
// compression. All middleware use the standard
// func(http.Handler) http.Handler shape so they compose with chi.
package middleware

import (
	"net/http"

	"github.com/okanami/barrage/internal/logging"
)

// RequestID tags each request with an ID for tracing. An upstream
// X-Request-ID header is honored so proxies can correlate; otherwise a
// fresh one is generated. The ID is echoed in the response header and
// placed in the request context together with a new correlation ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
