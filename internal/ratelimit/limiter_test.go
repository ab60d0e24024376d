// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOf(t *testing.T) {
	assert.Equal(t, "lic.example:8443", HostOf("https://lic.example:8443/wv?x=1"))
	assert.Equal(t, "not a url", HostOf("not a url"))
}

func TestLimiter_PerHostBurst(t *testing.T) {
	l := New(Config{GlobalRate: 100, GlobalBurst: 100, PerHostRate: 0.001, PerHostBurst: 2, CleanupInterval: time.Hour})

	assert.True(t, l.Allow("https://a.example/lic"))
	assert.True(t, l.Allow("https://a.example/lic"))
	assert.False(t, l.Allow("https://a.example/lic"))
	assert.True(t, l.Allow("https://b.example/lic"), "hosts are limited independently")
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(Config{GlobalRate: 100, GlobalBurst: 100, PerHostRate: 0.001, PerHostBurst: 1, CleanupInterval: time.Hour})

	require.NoError(t, l.Wait(context.Background(), "https://a.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://a.example"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(Config{GlobalRate: 100, GlobalBurst: 100, PerHostRate: 0.001, PerHostBurst: 1, CleanupInterval: time.Hour})
	assert.True(t, l.Allow("https://a.example"))
	assert.False(t, l.Allow("https://a.example"))

	l.lastCleanup = time.Now().Add(-2 * time.Hour)
	assert.True(t, l.Allow("https://a.example"))
}
