// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package metadata defines the external metadata source contract used
// by the search pipeline for alias expansion. Sources map a work title
// to the set of names it is known under across regions and platforms.
package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/settings"
)

// Source supplies alternative titles for a keyword. Implementations
// must tolerate being called concurrently.
type Source interface {
	// Name is the stable source identifier.
	Name() string

	// Aliases returns alternative titles for the keyword. An empty
	// slice and nil error means the source knows nothing about it.
	Aliases(ctx context.Context, keyword string) ([]string, error)
}

// Registry holds the enabled metadata sources in query order.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Later registrations with the same name
// replace the earlier one but keep its position.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[src.Name()]; !exists {
		r.order = append(r.order, src.Name())
	}
	r.sources[src.Name()] = src
}

// CollectAliases queries every source and returns the deduplicated
// union of aliases. Source failures are logged and skipped so one
// broken upstream cannot break search.
func (r *Registry) CollectAliases(ctx context.Context, keyword string) []string {
	r.mu.RLock()
	ordered := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		ordered = append(ordered, r.sources[name])
	}
	r.mu.RUnlock()

	seen := map[string]struct{}{}
	aliases := []string{}
	for _, src := range ordered {
		found, err := src.Aliases(ctx, keyword)
		if err != nil {
			logging.Warn().Err(err).Str("source", src.Name()).Str("keyword", keyword).
				Msg("Metadata source failed, skipping")
			continue
		}
		for _, alias := range found {
			alias = strings.TrimSpace(alias)
			if alias == "" || strings.EqualFold(alias, keyword) {
				continue
			}
			if _, dup := seen[alias]; dup {
				continue
			}
			seen[alias] = struct{}{}
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// StaticSource serves operator-maintained alias mappings from the
// settings store. The value of aliasMapJson is a JSON object of
// title -> [aliases]; for simplicity it is parsed as a flat map on
// write and stored here pre-parsed.
type StaticSource struct {
	settings *settings.Service

	mu      sync.RWMutex
	aliases map[string][]string
}

// NewStaticSource builds the settings-backed alias source.
func NewStaticSource(svc *settings.Service) *StaticSource {
	return &StaticSource{
		settings: svc,
		aliases:  make(map[string][]string),
	}
}

// Name implements Source.
func (s *StaticSource) Name() string { return "static" }

// SetAliases replaces the alias table. Keys are matched
// case-insensitively.
func (s *StaticSource) SetAliases(table map[string][]string) {
	normalized := make(map[string][]string, len(table))
	for title, names := range table {
		normalized[strings.ToLower(strings.TrimSpace(title))] = names
	}

	s.mu.Lock()
	s.aliases = normalized
	s.mu.Unlock()
}

// Aliases implements Source.
func (s *StaticSource) Aliases(ctx context.Context, keyword string) ([]string, error) {
	enabled, err := s.settings.GetBool(ctx, "metadataAliasEnabled", true)
	if err != nil || !enabled {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found := s.aliases[strings.ToLower(strings.TrimSpace(keyword))]
	out := make([]string, len(found))
	copy(out, found)
	sort.Strings(out)
	return out, nil
}
