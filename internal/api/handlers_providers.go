// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"net/http"
	"time"
)

// providerInfo is one row of the provider administration list.
type providerInfo struct {
	Name               string            `json:"name"`
	Enabled            bool              `json:"enabled"`
	DisplayOrder       int               `json:"displayOrder"`
	HandledDomains     []string          `json:"handledDomains"`
	ConfigurableFields map[string]string `json:"configurableFields,omitempty"`
}

// handleListProviders lists every registered adapter with its state.
func (rt *Router) handleListProviders(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	all := rt.registry.All(r.Context())
	list := make([]providerInfo, 0, len(all))
	for _, p := range all {
		list = append(list, providerInfo{
			Name:               p.Name(),
			Enabled:            rt.registry.IsEnabled(r.Context(), p.Name()),
			DisplayOrder:       rt.registry.DisplayOrder(r.Context(), p.Name()),
			HandledDomains:     p.HandledDomains(),
			ConfigurableFields: p.ConfigurableFields(),
		})
	}
	rw.Success(list)
}

// handleTestProvider probes the adapter's test URL and reports
// reachability with the round-trip time.
func (rt *Router) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	adapter, err := rt.registry.Get(pathParam(r, "name"))
	if err != nil {
		rw.NotFound("unknown provider")
		return
	}

	target := adapter.TestURL()
	if target == "" {
		rw.Success(map[string]interface{}{"reachable": true, "note": "provider has no probe URL"})
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		rw.InternalError("failed to build probe request")
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		rw.Success(map[string]interface{}{
			"reachable": false,
			"latencyMs": elapsed,
			"error":     err.Error(),
		})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	rw.Success(map[string]interface{}{
		"reachable":  resp.StatusCode < http.StatusInternalServerError,
		"statusCode": resp.StatusCode,
		"latencyMs":  elapsed,
	})
}

// handleSetProviderEnabled toggles an adapter.
func (rt *Router) handleSetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	name := pathParam(r, "name")
	if _, err := rt.registry.Get(name); err != nil {
		rw.NotFound("unknown provider")
		return
	}

	var req providerEnableRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	if err := rt.registry.SetEnabled(r.Context(), name, req.Enabled); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]interface{}{"name": name, "enabled": req.Enabled})
}

// handleSetProviderOrder changes an adapter's display order, which
// drives search result sorting.
func (rt *Router) handleSetProviderOrder(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	name := pathParam(r, "name")
	if _, err := rt.registry.Get(name); err != nil {
		rw.NotFound("unknown provider")
		return
	}

	var req providerOrderRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}

	if err := rt.registry.SetDisplayOrder(r.Context(), name, req.DisplayOrder); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]interface{}{"name": name, "displayOrder": req.DisplayOrder})
}
