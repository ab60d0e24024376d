// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/gstplayer/internal/drm/cdm/cdmtest"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/license"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeFetcher struct {
	calls atomic.Int32
	mu    sync.Mutex
	reqs  []helper.LicenseRequest
	fn    func(ctx context.Context, req helper.LicenseRequest) ([]byte, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req helper.LicenseRequest) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return cdmtest.ValidLicense, nil
}

func (f *fakeFetcher) set(fn func(ctx context.Context, req helper.LicenseRequest) ([]byte, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeFetcher) last() helper.LicenseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

var _ license.Fetcher = (*fakeFetcher)(nil)

type recordingCallbacks struct {
	mu                sync.Mutex
	individualization []string
	renewals          int
}

func (r *recordingCallbacks) Individualization(payload string) {
	r.mu.Lock()
	r.individualization = append(r.individualization, payload)
	r.mu.Unlock()
}

func (r *recordingCallbacks) LicenseRenewal(helper.Helper, any) {
	r.mu.Lock()
	r.renewals++
	r.mu.Unlock()
}

func (r *recordingCallbacks) renewalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renewals
}

type fixture struct {
	m       *Manager
	cdm     *cdmtest.FakeSystem
	fetcher *fakeFetcher
	cb      *recordingCallbacks
	clock   *mockClock
}

func newFixture(t *testing.T, maxSessions int, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		cdm:     cdmtest.NewFakeSystem(model.OCDMWidevine),
		fetcher: &fakeFetcher{},
		cb:      &recordingCallbacks{},
		clock:   &mockClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	all := append([]Option{WithFetcher(f.fetcher), WithClock(f.clock), WithLicenseTimeout(2 * time.Second)}, opts...)
	m, err := New(maxSessions, cdmtest.NewProvider(f.cdm), all...)
	require.NoError(t, err)
	f.m = m
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, m.Close(ctx))
	})
	return f
}

// keyOf returns a 16 byte key ID filled with b.
func keyOf(b byte) []byte {
	k := make([]byte, 16)
	for i := range k {
		k[i] = b
	}
	return k
}

func widevineHelper(t *testing.T, key []byte) helper.Helper {
	t.Helper()
	h := helper.NewWidevine(helper.Config{})
	require.True(t, h.ParsePssh(helper.BuildPSSH(model.WidevineSystemID, nil, helper.WidevinePsshData([][]byte{key}, nil))))
	return h
}

func (f *fixture) create(t *testing.T, key byte, opts ...CreateOption) *Handle {
	t.Helper()
	h, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf(key)), f.cb, model.StreamVideo, NewMetaDataEvent(""), opts...)
	require.NoError(t, err)
	require.NotNil(t, h)
	return h
}

func waitState(t *testing.T, h *Handle) model.KeyState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err)
	return st
}
