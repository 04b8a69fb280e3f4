// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/okanami/barrage/internal/validation"
)

// importRequest starts a generic or edited import.
type importRequest struct {
	Provider     string `json:"provider" validate:"required,providername"`
	MediaID      string `json:"mediaId" validate:"required,max=256"`
	Title        string `json:"title" validate:"required,max=512"`
	Type         string `json:"type" validate:"required,oneof=movie tv_series"`
	Season       int    `json:"season" validate:"min=0,max=99"`
	Year         *int   `json:"year,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty" validate:"omitempty,url"`
	EpisodeIndex int    `json:"episodeIndex,omitempty" validate:"min=0"`

	TMDBID    string `json:"tmdbId,omitempty"`
	IMDBID    string `json:"imdbId,omitempty"`
	TVDBID    string `json:"tvdbId,omitempty"`
	DoubanID  string `json:"doubanId,omitempty"`
	BangumiID string `json:"bangumiId,omitempty"`

	// Episodes switches to the edited-import path: the supplied list is
	// imported verbatim instead of the provider's episode listing.
	Episodes []editedEpisode `json:"episodes,omitempty" validate:"omitempty,dive"`
}

// editedEpisode is one UI-curated entry of an edited import.
type editedEpisode struct {
	EpisodeID    string `json:"episodeId" validate:"required"`
	Title        string `json:"title" validate:"required,max=512"`
	EpisodeIndex int    `json:"episodeIndex" validate:"required,min=1"`
	URL          string `json:"url,omitempty"`
}

// manualImportRequest imports one episode from caller-supplied content.
type manualImportRequest struct {
	SourceID     int64  `json:"sourceId" validate:"required,gt=0"`
	Title        string `json:"title" validate:"required,max=512"`
	EpisodeIndex int    `json:"episodeIndex" validate:"required,min=1"`
	Content      string `json:"content" validate:"required"`
}

// batchManualImportRequest imports many manual episodes on one task.
type batchManualImportRequest struct {
	Items []manualImportRequest `json:"items" validate:"required,min=1,dive"`
}

// reassociateRequest moves all sources from one work to another.
type reassociateRequest struct {
	TargetAnimeID int64 `json:"targetAnimeId" validate:"required,gt=0"`
}

// offsetRequest shifts episode numbering by a signed amount.
type offsetRequest struct {
	EpisodeIDs []int64 `json:"episodeIds" validate:"required,min=1"`
	Offset     int     `json:"offset" validate:"required"`
}

// bulkDeleteEpisodesRequest removes a set of episodes.
type bulkDeleteEpisodesRequest struct {
	EpisodeIDs []int64 `json:"episodeIds" validate:"required,min=1"`
}

// loginRequest opens an admin session.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// createTokenRequest mints a player API token.
type createTokenRequest struct {
	Name           string     `json:"name" validate:"required,max=128"`
	DailyCallLimit int        `json:"dailyCallLimit" validate:"min=-1"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// createUARuleRequest adds a User-Agent prefix rule.
type createUARuleRequest struct {
	Prefix string `json:"prefix" validate:"required,max=256"`
	Mode   string `json:"mode" validate:"required,oneof=allow deny"`
}

// providerOrderRequest changes a provider's display order.
type providerOrderRequest struct {
	DisplayOrder int `json:"displayOrder" validate:"min=0"`
}

// providerEnableRequest toggles a provider.
type providerEnableRequest struct {
	Enabled bool `json:"enabled"`
}

// webhookPayload is the body of a webhook ingress post. Media servers
// emit richer envelopes; Barrage consumes this distilled shape.
type webhookPayload struct {
	Provider     string `json:"provider" validate:"required,providername"`
	MediaID      string `json:"mediaId" validate:"required,max=256"`
	Title        string `json:"title" validate:"required,max=512"`
	Type         string `json:"type" validate:"required,oneof=movie tv_series"`
	Season       int    `json:"season" validate:"min=0,max=99"`
	EpisodeIndex *int   `json:"episodeIndex,omitempty"`
	Fallback     bool   `json:"fallback,omitempty"`
}

// settingsUpdateRequest writes dynamic settings keys.
type settingsUpdateRequest struct {
	Values map[string]string `json:"values" validate:"required,min=1"`
}

// fieldIssue is the wire shape of one validation failure.
type fieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing the error response itself. Returns false when
// the handler should stop.
func decodeAndValidate(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		issues := make([]fieldIssue, 0, len(verr.Errors()))
		for _, fe := range verr.Errors() {
			issues = append(issues, fieldIssue{Field: fe.Field(), Message: fe.Error()})
		}
		rw.ValidationError(verr.Error(), issues)
		return false
	}
	return true
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// pathID parses a chi URL parameter as a positive int64.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(pathParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
