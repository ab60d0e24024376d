// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ratelimit throttles outgoing license requests, globally and per
// license server host.
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitDelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gstplayer",
			Name:      "license_ratelimit_delayed_total",
			Help:      "License requests that had to wait for a rate limit token",
		},
		[]string{"limit_type"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	GlobalRate  rate.Limit // requests per second
	GlobalBurst int

	PerHostRate  rate.Limit
	PerHostBurst int

	// Cleanup interval for per-host limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns defaults sized for a single playback device.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  10,
		GlobalBurst: 20,

		PerHostRate:  4,
		PerHostBurst: 8,

		CleanupInterval: 10 * time.Minute,
	}
}

// Limiter manages rate limiting for license servers.
type Limiter struct {
	config Config

	global  *rate.Limiter
	perHost map[string]*rate.Limiter
	mu      sync.Mutex

	lastCleanup time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perHost:     make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Wait blocks until a request to licenseURL may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context, licenseURL string) error {
	if err := l.wait(ctx, l.global, "global"); err != nil {
		return err
	}
	return l.wait(ctx, l.hostLimiter(HostOf(licenseURL)), "per_host")
}

func (l *Limiter) wait(ctx context.Context, lim *rate.Limiter, kind string) error {
	if lim.Allow() {
		return nil
	}
	rateLimitDelayed.WithLabelValues(kind).Inc()
	return lim.Wait(ctx)
}

// Allow reports whether a request may be sent right now without waiting.
func (l *Limiter) Allow(licenseURL string) bool {
	return l.global.Allow() && l.hostLimiter(HostOf(licenseURL)).Allow()
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) >= l.config.CleanupInterval {
		l.perHost = make(map[string]*rate.Limiter)
		l.lastCleanup = time.Now()
	}

	limiter, exists := l.perHost[host]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerHostRate, l.config.PerHostBurst)
		l.perHost[host] = limiter
	}
	return limiter
}

// HostOf returns the host part of a license URL, or the input when it does not parse.
func HostOf(licenseURL string) string {
	u, err := url.Parse(licenseURL)
	if err != nil || u.Host == "" {
		return licenseURL
	}
	return u.Host
}
