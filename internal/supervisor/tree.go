// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package supervisor assembles the suture tree that runs Barrage's
// long-lived services.
//
// The tree has three layers with independent failure domains:
//
//   - workers: the three task queue workers, the webhook scheduler and
//     the token counter reset worker
//   - messaging: the websocket hub
//   - api: the HTTP server
//
// A crashing queue worker restarts without tearing down the HTTP
// server, and vice versa.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/okanami/barrage/internal/logging"
)

// TreeConfig tunes the supervisors' restart behavior. Zero values take
// suture's documented defaults.
type TreeConfig struct {
	// FailureThreshold is the failure count that triggers backoff.
	FailureThreshold float64

	// FailureDecay is the half-life of the failure count in seconds.
	FailureDecay float64

	// FailureBackoff is how long a supervisor sleeps once the
	// threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds graceful shutdown of each service.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the supervisor hierarchy for the Barrage process.
type Tree struct {
	root      *suture.Supervisor
	workers   *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
	config    TreeConfig
}

// NewTree builds the supervisor hierarchy. Supervisor events are logged
// through the global zerolog logger via the sutureslog bridge.
func NewTree(config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logging.Slog()}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("barrage", rootSpec)
	workers := suture.New("worker-layer", childSpec)
	messaging := suture.New("messaging-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(workers)
	root.Add(messaging)
	root.Add(api)

	return &Tree{
		root:      root,
		workers:   workers,
		messaging: messaging,
		api:       api,
		config:    config,
	}
}

// AddWorker adds a service to the worker layer. Queue workers, the
// webhook scheduler and the token reset worker live here.
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddMessaging adds a service to the messaging layer.
func (t *Tree) AddMessaging(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPI adds a service to the API layer.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine and returns the channel
// that carries its terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// RemoveWorker stops and removes a service added with AddWorker.
// Tokens are scoped to the supervisor that issued them.
func (t *Tree) RemoveWorker(token suture.ServiceToken) error {
	return t.workers.Remove(token)
}

// UnstoppedServiceReport lists services that ignored the shutdown
// timeout. Used to diagnose hung shutdowns.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
