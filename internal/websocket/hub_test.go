// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/task"
)

func startHub(t *testing.T, bus *task.Bus) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, cancel
}

func register(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(hub, nil)
	select {
	case hub.Register <- client:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}
	return client
}

func TestHubRelaysTaskEvents(t *testing.T) {
	bus := task.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	hub, _ := startHub(t, bus)
	client := register(t, hub)

	bus.Publish(models.TaskEvent{
		TaskID:   "t1",
		Title:    "导入: 测试",
		Status:   models.TaskStatusRunning,
		Progress: 40,
	})

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeTaskEvent {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeTaskEvent)
		}
		event, ok := msg.Data.(models.TaskEvent)
		if !ok {
			t.Fatalf("message data is %T, want models.TaskEvent", msg.Data)
		}
		if event.TaskID != "t1" || event.Progress != 40 {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no task event relayed")
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, _ := startHub(t, nil)
	first := register(t, hub)
	second := register(t, hub)

	hub.Broadcast(Message{Type: MessageTypePong})

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypePong {
				t.Errorf("message type = %q", msg.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubDropsClientWithFullQueue(t *testing.T) {
	hub, _ := startHub(t, nil)
	client := register(t, hub)

	// Saturate the client queue so the next fan-out cannot deliver.
	for i := 0; i < cap(client.send); i++ {
		client.send <- Message{Type: MessageTypePong}
	}

	hub.Broadcast(Message{Type: MessageTypePong})

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("saturated client was not disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub, _ := startHub(t, nil)
	client := register(t, hub)

	select {
	case hub.Unregister <- client:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept unregistration")
	}

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestHubServeStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()

	client := NewClient(hub, nil)
	select {
	case hub.Register <- client:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, ok := <-client.send; ok {
		t.Error("client send channel still open after shutdown")
	}
}
