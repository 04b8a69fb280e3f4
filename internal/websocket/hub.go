// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package websocket pushes live task progress to connected clients.
// The hub subscribes to the task event bus and fans every event out to
// all open /api/ws/tasks connections.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/metrics"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/task"
)

// Message types pushed to clients.
const (
	MessageTypeTaskEvent = "task_event"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// Message is one websocket frame payload.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub owns the set of connected clients and relays task events to
// them. It runs as a suture service.
type Hub struct {
	bus *task.Bus

	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub builds a hub over the task event bus. The bus may be nil in
// tests that drive Broadcast directly.
func NewHub(bus *task.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the hub loop until ctx is canceled. Client registration
// is handled ahead of broadcasts so the client set is always settled
// before a message fans out.
func (h *Hub) Serve(ctx context.Context) error {
	events, err := h.subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		// Lifecycle first, non-blocking.
		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.Register:
			h.add(client)

		case client := <-h.Unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case raw, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			var event models.TaskEvent
			if err := json.Unmarshal(raw.Payload, &event); err != nil {
				logging.Warn().Err(err).Msg("Dropping undecodable task event")
				raw.Ack()
				continue
			}
			raw.Ack()
			h.fanOut(Message{Type: MessageTypeTaskEvent, Data: event})
		}
	}
}

// String names the service in the supervision tree.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if h.bus == nil {
		return nil, nil
	}
	return h.bus.Subscribe(ctx)
}

// Broadcast queues a message for all clients. Never blocks; when the
// queue is full the message is dropped and logged.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("message_type", msg.Type).Msg("Broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Debug().Int("total_clients", total).Msg("Websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WSConnections.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()

	logging.Debug().Int("total_clients", total).Msg("Websocket client disconnected")
}

// fanOut delivers in client ID order so delivery is reproducible.
// Clients whose send queue is full are dropped; a stuck reader must
// not back-pressure the hub.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			close(client.send)
			delete(h.clients, client)
			metrics.WSConnections.Dec()
			logging.Warn().Msg("Websocket client send queue full, disconnecting")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
	logging.Info().Msg("Websocket hub stopped, all clients closed")
}
