// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ManuGH/gstplayer/internal/drm/cdm/cdmtest"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

var errDenied = errors.New("license server denied")

func deny(context.Context, helper.LicenseRequest) ([]byte, error) { return nil, errDenied }

func TestLicenseFailureSuppressesKeyID(t *testing.T) {
	f := newFixture(t, 5)
	f.fetcher.set(deny)

	var failures []model.ErrorCode
	var mu sync.Mutex
	f.m.RegisterSetFailure(func(_ *MetaDataEvent, code model.ErrorCode) {
		mu.Lock()
		failures = append(failures, code)
		mu.Unlock()
	})

	md := NewMetaDataEvent("")
	h, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('X')), f.cb, model.StreamVideo, md)
	require.NoError(t, err)
	assert.Equal(t, model.KeyError, waitState(t, h))
	assert.Equal(t, model.ErrCodeLicenseRequestFailed, md.Failure())
	assert.Contains(t, md.Description(), errDenied.Error())
	assert.Equal(t, []string{"58585858585858585858585858585858"}, f.m.Snapshot().FailedKeyIDs)

	processed, status := f.m.IsKeyIDProcessed(keyOf('X'))
	assert.False(t, processed)
	assert.False(t, status)
	processed, status = f.m.IsKeyIDProcessed(keyOf('X'))
	assert.True(t, processed)
	assert.False(t, status, "failed key reports a bad status")

	// Retry is suppressed until failures are cleared.
	f.fetcher.set(nil)
	_, err = f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('X')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	assert.ErrorIs(t, err, model.ErrKeyIDSuppressed)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())

	f.m.ClearFailedKeyIDs()
	h, err = f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('X')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	require.NoError(t, err)
	assert.Equal(t, model.KeyReady, waitState(t, h))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.ErrorCode{model.ErrCodeLicenseRequestFailed, model.ErrCodeKeyIDSuppressed}, failures)
}

func TestRetryWindowExpires(t *testing.T) {
	f := newFixture(t, 5, WithRetryWindow(time.Minute))
	f.fetcher.set(deny)

	h := f.create(t, 'R')
	require.Equal(t, model.KeyError, waitState(t, h))

	f.fetcher.set(nil)
	_, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('R')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	require.ErrorIs(t, err, model.ErrKeyIDSuppressed)

	f.clock.Advance(2 * time.Minute)
	h = f.create(t, 'R')
	assert.Equal(t, model.KeyReady, waitState(t, h))
}

func TestCDMRejectsLicense(t *testing.T) {
	f := newFixture(t, 5)
	f.fetcher.set(func(context.Context, helper.LicenseRequest) ([]byte, error) { return []byte("garbage"), nil })

	md := NewMetaDataEvent("")
	h, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('G')), f.cb, model.StreamAudio, md)
	require.NoError(t, err)
	assert.Equal(t, model.KeyError, waitState(t, h))
	assert.Equal(t, model.ErrCodeLicenseRequestFailed, md.Failure())
}

func TestLicenseDataCallbackTakesPrecedence(t *testing.T) {
	f := newFixture(t, 5)
	var seen helper.LicenseRequest
	f.m.RegisterLicenseDataCb(func(_ context.Context, req helper.LicenseRequest) ([]byte, error) {
		seen = req
		return cdmtest.ValidLicense, nil
	})

	h := f.create(t, 'L')
	require.Equal(t, model.KeyReady, waitState(t, h))
	assert.Zero(t, f.fetcher.calls.Load())
	assert.Contains(t, seen.URL, "license.invalid")
}

func TestSecManagerAccessToken(t *testing.T) {
	f := newFixture(t, 5)
	f.m.UpdateDRMConfig(true, false, false, false, false)

	h := f.create(t, 'S')
	assert.Equal(t, model.KeyError, waitState(t, h), "no token, no license")
	assert.Zero(t, f.fetcher.calls.Load())

	f.m.ClearFailedKeyIDs()
	f.m.SetAccessToken("tok-123")
	h = f.create(t, 'S')
	require.Equal(t, model.KeyReady, waitState(t, h))
	assert.Equal(t, "Bearer tok-123", f.fetcher.last().Headers.Get("Authorization"))

	f.m.ClearAccessToken()
	assert.Empty(t, f.m.AccessToken())
}

func TestPropagateURIParam(t *testing.T) {
	f := newFixture(t, 5, WithLicenseServerURL("https://lic.example/wv?keep=1"))
	f.m.UpdateDRMConfig(false, false, true, false, false)

	h, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('P')), f.cb, model.StreamVideo,
		NewMetaDataEvent("https://cdn.example/manifest.mpd?token=abc&keep=2"))
	require.NoError(t, err)
	require.Equal(t, model.KeyReady, waitState(t, h))

	u, err := url.Parse(f.fetcher.last().URL)
	require.NoError(t, err)
	assert.Equal(t, "lic.example", u.Host)
	assert.Equal(t, "abc", u.Query().Get("token"))
	assert.Equal(t, "1", u.Query().Get("keep"))
}

func TestFakeTuneSkipsLicense(t *testing.T) {
	f := newFixture(t, 5)
	f.m.UpdateDRMConfig(false, false, false, true, false)

	h := f.create(t, 'T')
	assert.Equal(t, model.KeyInit, waitState(t, h))
	assert.Zero(t, f.fetcher.calls.Load())
	assert.Equal(t, 1, f.cdm.OpenSessions())
}

func TestLicenseRenewal(t *testing.T) {
	f := newFixture(t, 5)
	h := f.create(t, 'N')
	require.Equal(t, model.KeyReady, waitState(t, h))

	sess := f.cdm.Sessions()[0]
	sess.TriggerRenewal()
	sess.TriggerIndividualization("device-cert")

	require.Eventually(t, func() bool {
		f.fetcher.mu.Lock()
		defer f.fetcher.mu.Unlock()
		return len(f.fetcher.reqs) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "renewal", string(f.fetcher.last().Payload))
	assert.Equal(t, 1, f.cb.renewalCount())
	f.cb.mu.Lock()
	assert.Equal(t, []string{"device-cert"}, f.cb.individualization)
	f.cb.mu.Unlock()
	assert.Equal(t, model.KeyReady, h.State())
}

func TestNotifyCleanupCancelsAcquisition(t *testing.T) {
	f := newFixture(t, 5)
	started := make(chan struct{})
	f.fetcher.set(func(ctx context.Context, _ helper.LicenseRequest) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	h := f.create(t, 'C')
	<-started
	assert.Equal(t, model.KeyPending, h.State())

	f.m.NotifyCleanup()
	assert.Equal(t, model.KeyInit, waitState(t, h))
	assert.Empty(t, f.m.Snapshot().FailedKeyIDs, "cancellation is not a license failure")

	f.m.NotifyCleanup()
	assert.Equal(t, model.KeyInit, h.State())
}

func TestProfilingCallbacks(t *testing.T) {
	f := newFixture(t, 5)
	var mu sync.Mutex
	var events []string
	record := func(name string) ProfileFunc {
		return func(model.StreamType) {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		}
	}
	f.m.RegisterProfBegin(record("prof_begin"))
	f.m.RegisterProfEnd(record("prof_end"))
	f.m.RegisterLAProfBegin(record("la_begin"))
	f.m.RegisterLAProfEnd(record("la_end"))
	buckets := make(chan string, 1)
	f.m.RegisterProfilingUpdateCb(func(bucket string, _ time.Duration) { buckets <- bucket })

	h := f.create(t, 'Q')
	require.Equal(t, model.KeyReady, waitState(t, h))
	assert.Equal(t, "license_acquire", <-buckets)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"prof_begin", "prof_end", "la_begin", "la_end"}, events)
}

func TestLicenseAcquisitionSpan(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 5, WithTracer(tp.Tracer("test")))
	f.fetcher.set(deny)
	h := f.create(t, 'Z')
	require.Equal(t, model.KeyError, waitState(t, h))

	require.Eventually(t, func() bool { return len(exp.GetSpans()) == 1 }, time.Second, 5*time.Millisecond)
	span := exp.GetSpans()[0]
	assert.Equal(t, "drm.license_acquire", span.Name)
	assert.Equal(t, "Error", span.Status.Code.String())
}
