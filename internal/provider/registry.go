// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okanami/barrage/internal/settings"
)

// Registry holds the registered provider adapters with their
// enable/disable state and display order, both settings-backed.
// Settings keys: <name>ProviderEnabled, <name>ProviderOrder.
type Registry struct {
	settings *settings.Service

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry(svc *settings.Service) *Registry {
	return &Registry{
		settings:  svc,
		providers: make(map[string]Provider),
	}
}

// Register adds an adapter. Re-registering a name replaces the adapter.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the adapter by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// All returns every registered adapter regardless of enabled state,
// sorted by display order.
func (r *Registry) All(ctx context.Context) []Provider {
	return r.ordered(ctx, false)
}

// Enabled returns the enabled adapters in display order. These are the
// ones search fans out to.
func (r *Registry) Enabled(ctx context.Context) []Provider {
	return r.ordered(ctx, true)
}

// DisplayOrder returns a provider's order index for result sorting.
// Unconfigured providers sort last in name order.
func (r *Registry) DisplayOrder(ctx context.Context, name string) int {
	order, err := r.settings.GetInt(ctx, name+"ProviderOrder", 1000)
	if err != nil {
		return 1000
	}
	return order
}

// IsEnabled reports whether a provider participates in search fan-out
// and imports. Providers default to enabled.
func (r *Registry) IsEnabled(ctx context.Context, name string) bool {
	enabled, err := r.settings.GetBool(ctx, name+"ProviderEnabled", true)
	if err != nil {
		return true
	}
	return enabled
}

// SetEnabled persists a provider's enabled flag.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	return r.settings.Set(ctx, name+"ProviderEnabled", fmt.Sprintf("%t", enabled))
}

// SetDisplayOrder persists a provider's display order.
func (r *Registry) SetDisplayOrder(ctx context.Context, name string, order int) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	return r.settings.Set(ctx, name+"ProviderOrder", fmt.Sprintf("%d", order))
}

// ForURL routes a provider URL to the adapter that handles its domain.
func (r *Registry) ForURL(url string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		for _, domain := range p.HandledDomains() {
			if strings.Contains(url, domain) {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("no provider handles URL %q", url)
}

func (r *Registry) ordered(ctx context.Context, enabledOnly bool) []Provider {
	r.mu.RLock()
	list := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		list = append(list, p)
	}
	r.mu.RUnlock()

	if enabledOnly {
		filtered := list[:0]
		for _, p := range list {
			if r.IsEnabled(ctx, p.Name()) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}

	sort.Slice(list, func(i, j int) bool {
		oi, oj := r.DisplayOrder(ctx, list[i].Name()), r.DisplayOrder(ctx, list[j].Name())
		if oi != oj {
			return oi < oj
		}
		return list[i].Name() < list[j].Name()
	})
	return list
}
