// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package license performs license round trips against DRM license servers.
package license

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/ratelimit"
	"github.com/ManuGH/gstplayer/internal/resilience"
)

const defaultMaxResponseBytes = 1 << 20

// Fetcher is what the session coordinator needs from a license client.
type Fetcher interface {
	Fetch(ctx context.Context, req helper.LicenseRequest) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req helper.LicenseRequest) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, req helper.LicenseRequest) ([]byte, error) {
	return f(ctx, req)
}

// StatusError reports a non-2xx license server response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("license server returned %d: %s", e.StatusCode, e.Body)
}

// Client is an HTTP Fetcher with tracing, throttling and a circuit breaker.
type Client struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	breaker  *resilience.CircuitBreaker
	maxBytes int64
	headers  http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its transport is wrapped for tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

// WithHeader adds a header to every request, e.g. an access token.
func WithHeader(key, value string) Option {
	return func(cl *Client) { cl.headers.Set(key, value) }
}

func WithMaxResponseBytes(n int64) Option {
	return func(cl *Client) { cl.maxBytes = n }
}

// NewClient returns a Client with a per-request timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: timeout},
		maxBytes: defaultMaxResponseBytes,
		headers:  http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("license", 5, 30*time.Second)
	}
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c.http
	wrapped.Transport = otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "license " + r.Method
		}),
	)
	c.http = &wrapped
	return c
}

// Fetch sends req and returns the license body. Client side rejections (4xx)
// do not count against the circuit breaker.
func (c *Client) Fetch(ctx context.Context, req helper.LicenseRequest) ([]byte, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("license request without URL: %w", model.ErrLicenseFailure)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req.URL); err != nil {
			return nil, fmt.Errorf("license rate limit: %w", err)
		}
	}

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.roundTrip(ctx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrLicenseFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrLicenseFailure, err)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, req helper.LicenseRequest) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build license request: %w", err))
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read license response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, resilience.Permanent(fmt.Errorf("license response exceeds %d bytes", c.maxBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, resilience.Permanent(serr)
		}
		return nil, serr
	}
	if len(data) == 0 {
		return nil, resilience.Permanent(errors.New("empty license response"))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
