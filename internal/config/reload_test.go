// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReloadKeepsPreviousOnInvalidFile(t *testing.T) {
	path := writeFile(t, "player.yaml", "drm:\n  maxSessions: 4\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	updates := make(chan AppConfig, 1)
	h.RegisterListener(updates)

	require.NoError(t, os.WriteFile(path, []byte("drm:\n  maxSessions: 6\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 6, h.Get().DRM.MaxSessions)
	assert.Equal(t, 6, (<-updates).DRM.MaxSessions)

	require.NoError(t, os.WriteFile(path, []byte("drm:\n  maxSessions: -3\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 6, h.Get().DRM.MaxSessions)
	assert.Empty(t, updates)
}

func TestListenerNeverBlocksReload(t *testing.T) {
	path := writeFile(t, "player.yaml", "")
	loader := NewLoader(path, "")
	h := NewConfigHolder(Defaults(), loader)
	full := make(chan AppConfig)
	h.RegisterListener(full)

	done := make(chan error, 1)
	go func() { done <- h.Reload(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on listener")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "player.yaml", "logLevel: info\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	h.debounce = 20 * time.Millisecond
	updates := make(chan AppConfig, 4)
	h.RegisterListener(updates)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.StartWatcher(ctx))
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))
	select {
	case cfg := <-updates:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file write")
	}
	assert.Equal(t, "debug", h.Get().LogLevel)
}

func TestWatcherDisabledWithoutFile(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader("", ""))
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Wait()
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "", maskURL(""))
	assert.Equal(t, "https://lic.example/***", maskURL("https://lic.example/wv?token=secret"))
	assert.Equal(t, "***redacted***", maskURL("not a url"))
}
