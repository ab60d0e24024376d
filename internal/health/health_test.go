// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/resilience"
)

// playerManager registers the three daemon checkers over adjustable inputs.
type playerManager struct {
	*Manager
	snap     session.Snapshot
	breaker  *resilience.CircuitBreaker
	busError error
}

func newPlayerManager(t *testing.T) *playerManager {
	t.Helper()
	p := &playerManager{
		Manager: NewManager("v0.3.0"),
		snap:    session.Snapshot{State: model.SessionMgrActive.String(), MaxSessions: 5},
		breaker: resilience.NewCircuitBreaker(t.Name(), 1, time.Hour),
	}
	p.RegisterChecker(NewDrmChecker(snapshotFunc(func() session.Snapshot { return p.snap })))
	p.RegisterChecker(NewBreakerChecker("license_breaker", p.breaker))
	p.RegisterChecker(NewPipelineChecker(pipelineStateFunc(func() (string, error) { return "PAUSED", p.busError })))
	return p
}

func TestEndpointsAggregatePlayerCheckers(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *playerManager)
		status    Status
		readyCode int
	}{
		{"all healthy", func(*playerManager) {}, StatusHealthy, http.StatusOK},
		{"breaker open degrades", func(p *playerManager) {
			_ = p.breaker.Execute(context.Background(), func(context.Context) error { return assert.AnError })
		}, StatusDegraded, http.StatusOK},
		{"inactive coordinator", func(p *playerManager) {
			p.snap.State = model.SessionMgrInactive.String()
		}, StatusUnhealthy, http.StatusServiceUnavailable},
		{"bus error beats degraded", func(p *playerManager) {
			p.snap.FailedKeyIDs = []string{"aa"}
			p.busError = errors.New("decoder stalled")
		}, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlayerManager(t)
			tt.mutate(p)

			rec := httptest.NewRecorder()
			p.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.readyCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var ready ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
			assert.Equal(t, tt.status, ready.Status)
			assert.Equal(t, tt.readyCode == http.StatusOK, ready.Ready)
			assert.Len(t, ready.Checks, 3)

			// Liveness stays 200 and only runs checks when verbose.
			rec = httptest.NewRecorder()
			p.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			var live HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&live))
			assert.Equal(t, StatusHealthy, live.Status)
			assert.Equal(t, "v0.3.0", live.Version)
			assert.Nil(t, live.Checks)

			rec = httptest.NewRecorder()
			p.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&live))
			assert.Equal(t, tt.status, live.Status)
			assert.Len(t, live.Checks, 3)
		})
	}
}

func TestReadyWithoutCheckers(t *testing.T) {
	resp := NewManager("dev").Ready(context.Background(), false)
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)
}

type failingWriter struct{ header http.Header }

func (w *failingWriter) Header() http.Header       { return w.header }
func (w *failingWriter) Write([]byte) (int, error) { return 0, assert.AnError }
func (w *failingWriter) WriteHeader(int)           {}

func TestHandlersSurviveWriteErrors(t *testing.T) {
	p := newPlayerManager(t)
	assert.NotPanics(t, func() {
		p.ServeHealth(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
		p.ServeReady(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	})
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("custom", func(context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Message: "slow"}
	})
	assert.Equal(t, "custom", c.Name())
	assert.Equal(t, CheckResult{Status: StatusDegraded, Message: "slow"}, c.Check(context.Background()))
}

func TestCheckTimeoutBoundsStuckChecker(t *testing.T) {
	p := newPlayerManager(t)
	p.SetCheckTimeout(20 * time.Millisecond)
	p.RegisterChecker(NewCheckerFunc("license_server", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	}))

	start := time.Now()
	resp := p.Ready(context.Background(), false)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, resp.Ready)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["license_server"].Error)
	assert.Equal(t, StatusHealthy, resp.Checks["pipeline"].Status)
}

func TestChecksRunConcurrently(t *testing.T) {
	m := NewManager("dev")
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for _, name := range []string{"drm_sessions", "pipeline"} {
		m.RegisterChecker(NewCheckerFunc(name, func(context.Context) CheckResult {
			started.Done()
			<-release
			return CheckResult{Status: StatusHealthy}
		}))
	}
	go func() {
		started.Wait()
		close(release)
	}()

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

type snapshotFunc func() session.Snapshot

func (f snapshotFunc) Snapshot() session.Snapshot { return f() }

func TestDrmChecker(t *testing.T) {
	active := model.SessionMgrActive.String()
	tests := []struct {
		name        string
		snap        session.Snapshot
		wantStatus  Status
		expectedMsg string
	}{
		{
			name:        "idle",
			snap:        session.Snapshot{State: active, MaxSessions: 5},
			wantStatus:  StatusHealthy,
			expectedMsg: "0/5 sessions",
		},
		{
			name:        "inactive",
			snap:        session.Snapshot{State: model.SessionMgrInactive.String(), MaxSessions: 5},
			wantStatus:  StatusUnhealthy,
			expectedMsg: "eSESSIONMGR_INACTIVE",
		},
		{
			name:        "suppressed keys",
			snap:        session.Snapshot{State: active, MaxSessions: 5, FailedKeyIDs: []string{"aa", "bb"}},
			wantStatus:  StatusDegraded,
			expectedMsg: "2 key id(s) suppressed",
		},
		{
			name:        "slots exhausted",
			snap:        session.Snapshot{State: active, MaxSessions: 2, ActiveSessions: 2},
			wantStatus:  StatusDegraded,
			expectedMsg: "all 2 session slots in use",
		},
		{
			name:        "zero bound is not exhaustion",
			snap:        session.Snapshot{State: active},
			wantStatus:  StatusHealthy,
			expectedMsg: "0/0 sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			checker := NewDrmChecker(snapshotFunc(func() session.Snapshot { return snap }))
			assert.Equal(t, "drm_sessions", checker.Name())
			result := checker.Check(context.Background())
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Contains(t, result.Message, tt.expectedMsg)
		})
	}
}

func TestBreakerChecker(t *testing.T) {
	cb := resilience.NewCircuitBreaker("health_test", 1, time.Hour)
	checker := NewBreakerChecker("license_breaker", cb)
	assert.Equal(t, "license_breaker", checker.Name())
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	err := cb.Execute(context.Background(), func(context.Context) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	result := checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "circuit open", result.Message)

	cb.Reset()
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)
}

type pipelineStateFunc func() (string, error)

func (f pipelineStateFunc) HealthState() (string, error) { return f() }

func TestPipelineChecker(t *testing.T) {
	var lastErr error
	checker := NewPipelineChecker(pipelineStateFunc(func() (string, error) { return "PLAYING", lastErr }))
	assert.Equal(t, "pipeline", checker.Name())

	result := checker.Check(context.Background())
	assert.Equal(t, CheckResult{Status: StatusHealthy, Message: "PLAYING"}, result)

	lastErr = errors.New("decoder stalled")
	result = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "decoder stalled", result.Error)
}
