// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package license

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/resilience"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "challenge", string(body))
		_, _ = w.Write([]byte("license"))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithHeader("Authorization", "Bearer tok"))
	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")

	got, err := c.Fetch(context.Background(), helper.LicenseRequest{URL: srv.URL, Headers: h, Payload: []byte("challenge")})
	require.NoError(t, err)
	assert.Equal(t, "license", string(got))
}

func TestClient_ClientErrorDoesNotTrip(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	br := resilience.NewCircuitBreaker("test-license", 1, time.Minute)
	c := NewClient(time.Second, WithBreaker(br))

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), helper.LicenseRequest{URL: srv.URL})
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrLicenseFailure)
		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, http.StatusForbidden, serr.StatusCode)
	}
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, resilience.StateClosed, br.State())
}

func TestClient_ServerErrorTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	br := resilience.NewCircuitBreaker("test-license", 2, time.Minute)
	c := NewClient(time.Second, WithBreaker(br))

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), helper.LicenseRequest{URL: srv.URL})
		require.Error(t, err)
	}
	_, err := c.Fetch(context.Background(), helper.LicenseRequest{URL: srv.URL})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, model.ErrLicenseFailure)
}

func TestClient_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithMaxResponseBytes(16))
	_, err := c.Fetch(context.Background(), helper.LicenseRequest{URL: srv.URL})
	assert.ErrorIs(t, err, model.ErrLicenseFailure)
}

func TestClient_MissingURL(t *testing.T) {
	_, err := NewClient(time.Second).Fetch(context.Background(), helper.LicenseRequest{})
	assert.ErrorIs(t, err, model.ErrLicenseFailure)
}
