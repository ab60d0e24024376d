// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/health"
	"github.com/ManuGH/gstplayer/internal/pipeline"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

type fakeDrm struct{ snap session.Snapshot }

func (f fakeDrm) Snapshot() session.Snapshot { return f.snap }

type fakePipeline struct{ id uuid.UUID }

func (f fakePipeline) ID() uuid.UUID         { return f.id }
func (fakePipeline) State() fsm.State        { return fsm.StatePlaying }
func (fakePipeline) Position() time.Duration { return 1500 * time.Millisecond }
func (fakePipeline) Streams() []pipeline.StreamStatus {
	return []pipeline.StreamStatus{{Media: "video", Codec: "h264", Buffers: 12}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	id := uuid.New()
	h := NewRouter(Config{}, Deps{
		Health:   health.NewManager("test"),
		Metrics:  promhttp.Handler(),
		Drm:      fakeDrm{snap: session.Snapshot{State: "eSESSIONMGR_ACTIVE", MaxSessions: 4}},
		Pipeline: fakePipeline{id: id},
	})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		assert.Equal(t, http.StatusOK, get(t, h, path).Code, path)
	}

	rec := get(t, h, "/debug/drm")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 4, snap.MaxSessions)

	rec = get(t, h, "/debug/pipeline")
	require.Equal(t, http.StatusOK, rec.Code)
	var view PipelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, id.String(), view.ID)
	assert.Equal(t, "PLAYING", view.State)
	assert.Equal(t, "1.5s", view.Position)
	require.Len(t, view.Streams, 1)
	assert.Equal(t, uint64(12), view.Streams[0].Buffers)
}

func TestMissingSourcesAreNotMounted(t *testing.T) {
	h := NewRouter(Config{}, Deps{})
	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/drm").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/pipeline").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestRateLimit(t *testing.T) {
	h := NewRouter(Config{RateLimit: 2}, Deps{Health: health.NewManager("test")})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded"}`, rec.Body.String())
}

func TestTracingWrapperServes(t *testing.T) {
	h := NewRouter(Config{ServiceName: "gstplayer"}, Deps{Drm: fakeDrm{}})
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/drm").Code)
}

func TestShouldTrace(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":        false,
		"/readyz":         false,
		"/metrics":        false,
		"/debug/drm":      true,
		"/debug/pipeline": true,
	} {
		assert.Equal(t, want, shouldTrace(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}
