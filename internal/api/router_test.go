// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/okanami/barrage/internal/auth"
	"github.com/okanami/barrage/internal/config"
	"github.com/okanami/barrage/internal/database"
	"github.com/okanami/barrage/internal/metadata"
	"github.com/okanami/barrage/internal/models"
	"github.com/okanami/barrage/internal/provider"
	"github.com/okanami/barrage/internal/ratelimit"
	"github.com/okanami/barrage/internal/search"
	"github.com/okanami/barrage/internal/settings"
	"github.com/okanami/barrage/internal/task"
	"github.com/okanami/barrage/internal/task/jobs"
	"github.com/okanami/barrage/internal/webhook"
	"github.com/okanami/barrage/internal/websocket"
)

// testDBSemaphore serializes DuckDB-backed tests in this package.
var testDBSemaphore = make(chan struct{}, 1)

const (
	testAdminUser     = "admin"
	testAdminPassword = "hunter2hunter2"
)

// env is the assembled application under test.
type env struct {
	router  *Router
	handler http.Handler
	db      *database.DB
	svc     *settings.Service
	bus     *task.Bus
	tokens  *auth.TokenService
	admin   string // session JWT
}

// fakeProvider serves canned search results, episodes and comments.
type fakeProvider struct {
	name     string
	testURL  string
	episodes []models.ProviderEpisodeInfo
	comments map[string][]models.RawComment
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) HandledDomains() []string { return []string{f.name + ".example"} }

func (f *fakeProvider) RateLimitQuota() int { return -1 }

func (f *fakeProvider) Loggable() bool { return false }

func (f *fakeProvider) ConfigurableFields() map[string]string { return nil }

func (f *fakeProvider) TestURL() string { return f.testURL }

func (f *fakeProvider) DefaultBlacklist() string { return "" }

func (f *fakeProvider) Search(context.Context, string, *provider.EpisodeHint) ([]models.ProviderSearchInfo, error) {
	return []models.ProviderSearchInfo{{
		Provider: f.name,
		MediaID:  "md1",
		Title:    "葬送的芙莉莲",
		Type:     models.MediaTypeTVSeries,
		Season:   1,
	}}, nil
}

func (f *fakeProvider) GetInfoFromURL(context.Context, string) (*models.ProviderSearchInfo, error) {
	return nil, nil
}

func (f *fakeProvider) GetIDFromURL(ctx context.Context, url string) (string, error) {
	return url, nil
}

func (f *fakeProvider) GetEpisodes(context.Context, string, int, models.MediaType) ([]models.ProviderEpisodeInfo, error) {
	return f.episodes, nil
}

func (f *fakeProvider) GetComments(ctx context.Context, episodeID string, progress func(int, string)) ([]models.RawComment, error) {
	return f.comments[episodeID], nil
}

func (f *fakeProvider) FormatEpisodeIDForComments(raw string) string { return raw }

func (f *fakeProvider) ExecuteAction(context.Context, string, []byte) (interface{}, error) {
	return nil, nil
}

// setupEnv builds the full API stack over an in-memory database.
func setupEnv(t *testing.T) *env {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := settings.NewService(db)
	registry := provider.NewRegistry(svc)
	registry.Register(&fakeProvider{name: "bilibili"})

	limiter := ratelimit.New(db, t.TempDir())
	bus := task.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	manager := task.NewManager(db, bus, nil)

	jobsDeps := jobs.Deps{
		DB:        db,
		Settings:  svc,
		Providers: registry,
		Limiter:   limiter,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	secCfg := config.SecurityConfig{
		JWTSecret:         "test-secret-0123456789abcdef",
		AdminUsername:     testAdminUser,
		AdminPasswordHash: string(hash),
		SessionTimeout:    time.Hour,
	}
	adminAuth := auth.NewAdminAuth(secCfg)
	tokens := auth.NewTokenService(db)

	rt := NewRouter(config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            7768,
		RateLimitReqs:   10000,
		RateLimitWindow: time.Minute,
	}, Deps{
		DB:        db,
		Settings:  svc,
		Registry:  registry,
		Limiter:   limiter,
		Search:    search.New(db, svc, registry, metadata.NewRegistry()),
		Manager:   manager,
		Jobs:      jobsDeps,
		Tokens:    tokens,
		Admin:     adminAuth,
		Scheduler: webhook.NewScheduler(db, svc, manager, jobsDeps),
		Hub:       websocket.NewHub(bus),
	})

	session, err := adminAuth.Login(testAdminUser, testAdminPassword)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}

	return &env{
		router:  rt,
		handler: rt.Handler(),
		db:      db,
		svc:     svc,
		bus:     bus,
		tokens:  tokens,
		admin:   session,
	}
}

// do runs one request through the router.
func (e *env) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// doAdmin runs a request with the admin session attached.
func (e *env) doAdmin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + e.admin})
}

// envelope decodes the standard response wrapper.
func envelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

// dataMap returns the envelope data as a map.
func dataMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	resp := envelope(t, rec)
	m, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("envelope data is %T, want object (body %q)", resp.Data, rec.Body.String())
	}
	return m
}

func TestHealthz(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := dataMap(t, rec)["status"]; got != "ok" {
		t.Errorf("status field = %v, want ok", got)
	}
}

func TestAdminEndpointsRejectMissingSession(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodGet, "/api/search/provider?keyword=test", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	resp := envelope(t, rec)
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeUnauthorized {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestLoginIssuesWorkingSession(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodPost, "/api/auth/login",
		loginRequest{Username: testAdminUser, Password: testAdminPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := dataMap(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}

	rec = e.do(t, http.MethodGet, "/api/tasks", nil,
		map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Errorf("authed task list status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := setupEnv(t)

	rec := e.do(t, http.MethodPost, "/api/auth/login",
		loginRequest{Username: testAdminUser, Password: "wrong-password"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSearchRequiresKeyword(t *testing.T) {
	e := setupEnv(t)

	rec := e.doAdmin(t, http.MethodGet, "/api/search/provider", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchRejectsWhenAllProvidersDisabled(t *testing.T) {
	e := setupEnv(t)

	if err := e.router.registry.SetEnabled(context.Background(), "bilibili", false); err != nil {
		t.Fatalf("disable provider: %v", err)
	}

	rec := e.doAdmin(t, http.MethodGet, "/api/search/provider?keyword=test", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := envelope(t, rec)
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "disabled") {
		t.Errorf("error = %+v, want a message naming disabled providers", resp.Error)
	}
}

func TestSearchReturnsProviderHits(t *testing.T) {
	e := setupEnv(t)

	rec := e.doAdmin(t, http.MethodGet, "/api/search/provider?keyword=%E8%91%AC%E9%80%81%E7%9A%84%E8%8A%99%E8%8E%89%E8%8E%B2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Results []models.ProviderSearchInfo `json:"results"`
	}
	resp := envelope(t, rec)
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode search payload: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].Provider != "bilibili" {
		t.Errorf("results = %+v", payload.Results)
	}
}
