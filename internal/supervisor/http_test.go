// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer blocks in ListenAndServe until Shutdown is called.
type fakeServer struct {
	startErr   error
	shutdownCh chan struct{}
	shutdowns  atomic.Int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{shutdownCh: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.shutdownCh)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeServer()
	svc := NewHTTPService(server, "127.0.0.1:7768", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("serve error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if got := server.shutdowns.Load(); got != 1 {
		t.Errorf("shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServiceReportsStartFailure(t *testing.T) {
	server := newFakeServer()
	server.startErr = errors.New("address already in use")
	svc := NewHTTPService(server, "127.0.0.1:7768", time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.startErr) {
		t.Errorf("serve error = %v, want wrapped start error", err)
	}
}

func TestHTTPServiceString(t *testing.T) {
	svc := NewHTTPService(newFakeServer(), "", 0)
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}
