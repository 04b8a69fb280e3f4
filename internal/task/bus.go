// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package task

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/models"
)

// TopicTaskEvents carries models.TaskEvent payloads.
const TopicTaskEvents = "task.events"

// Bus is the in-process task event bus. Subscribers (the websocket
// hub) each get their own delivery channel.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus builds the event bus.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NopLogger{})
	return &Bus{pubsub: pubsub}
}

// Publish emits a task event. Publishing never blocks task execution;
// failures are logged and dropped.
func (b *Bus) Publish(event models.TaskEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		logging.Warn().Err(err).Str("task_id", event.TaskID).Msg("failed to encode task event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(TopicTaskEvents, msg); err != nil {
		logging.Warn().Err(err).Str("task_id", event.TaskID).Msg("failed to publish task event")
	}
}

// Subscribe returns a channel of task events. The subscription ends
// when ctx is canceled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicTaskEvents)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
