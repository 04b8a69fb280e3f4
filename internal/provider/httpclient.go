// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okanami/barrage/internal/logging"
	"github.com/okanami/barrage/internal/settings"
)

const (
	requestTimeout = 20 * time.Second
	maxAttempts    = 3
)

// retryBackoff returns the wait before attempt n (0-based): 1s, 2s, 4s.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Client is the shared resilient HTTP client adapters fetch through.
// It paces requests per provider, trips a circuit breaker on repeated
// upstream failures, retries transient errors with backoff, and rebuilds
// its transport when the operator changes the proxy settings.
type Client struct {
	providerName string
	settings     *settings.Service
	pacer        *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[*http.Response]

	mu       sync.Mutex
	client   *http.Client
	proxyURL string
}

// NewClient builds a client for one provider. requestsPerSecond spaces
// outbound requests; this is politeness pacing, distinct from the
// quota-enforcing rate limiter.
func NewClient(providerName string, svc *settings.Service, requestsPerSecond float64) *Client {
	c := &Client{
		providerName: providerName,
		settings:     svc,
		pacer:        rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        providerName + "-http",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Provider circuit breaker state change")
		},
	})

	c.client = c.buildHTTPClient("")
	return c
}

// Do performs a paced, breaker-guarded, retried request. The response
// body is fully read and returned so retries never hold connections.
func (c *Client) Do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("request pacing interrupted: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(retryBackoff(attempt - 1)):
			}
		}

		body, status, err := c.attempt(ctx, req)
		if err == nil && status < http.StatusInternalServerError {
			return body, status, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("upstream returned %d", status)
		} else {
			lastErr = err
		}
		logging.Debug().Err(lastErr).Str("provider", c.providerName).
			Int("attempt", attempt+1).Str("url", req.URL.String()).
			Msg("Provider request failed")
	}
	return nil, 0, fmt.Errorf("request to %s failed after %d attempts: %w", c.providerName, maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, req *http.Request) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body []byte
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient().Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err = io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if resp != nil {
			return nil, resp.StatusCode, err
		}
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// Get is a convenience wrapper for header-bearing GET requests.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Do(ctx, req)
}

// httpClient returns the current transport, rebuilding it when the
// proxy settings have changed since the last request.
func (c *Client) httpClient() *http.Client {
	proxy := c.currentProxy()

	c.mu.Lock()
	defer c.mu.Unlock()
	if proxy != c.proxyURL {
		logging.Info().Str("provider", c.providerName).Str("proxy", proxy).
			Msg("Proxy configuration changed, rebuilding HTTP transport")
		c.client = c.buildHTTPClient(proxy)
		c.proxyURL = proxy
	}
	return c.client
}

func (c *Client) currentProxy() string {
	if c.settings == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	enabled, err := c.settings.GetBool(ctx, "proxyEnabled", false)
	if err != nil || !enabled {
		return ""
	}
	proxy, err := c.settings.Get(ctx, "proxyUrl")
	if err != nil {
		return ""
	}
	return proxy
}

func (c *Client) buildHTTPClient(proxy string) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			logging.Warn().Str("proxy", proxy).Err(err).Msg("Invalid proxy URL, connecting directly")
		}
	}
	return &http.Client{Transport: transport, Timeout: requestTimeout}
}
