// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package models

import "time"

// WebhookTask is one delayed import queued by a webhook ingress post.
// A scheduler worker submits it to the task manager once ExecuteAt has
// passed.
type WebhookTask struct {
	ID           int64      `json:"id"`
	Service      string     `json:"service"`
	ProviderName string     `json:"providerName"`
	MediaID      string     `json:"mediaId"`
	Title        string     `json:"title"`
	Type         MediaType  `json:"type"`
	Season       int        `json:"season"`
	EpisodeIndex *int       `json:"episodeIndex,omitempty"`
	Fallback     bool       `json:"fallback"`
	ReceivedAt   time.Time  `json:"receivedAt"`
	ExecuteAt    time.Time  `json:"executeAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}
