// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/resilience"
)

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewCheckerFunc wraps fn as a named Checker.
func NewCheckerFunc(name string, fn func(ctx context.Context) CheckResult) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Name() string                          { return c.name }
func (c *CheckerFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// DrmSource exposes coordinator state to the DRM checker.
type DrmSource interface {
	Snapshot() session.Snapshot
}

// DrmChecker reports the session coordinator. An inactive coordinator is
// unhealthy; suppressed key IDs or a full slot table degrade it.
type DrmChecker struct {
	src DrmSource
}

// NewDrmChecker creates a checker over src.
func NewDrmChecker(src DrmSource) *DrmChecker {
	return &DrmChecker{src: src}
}

func (c *DrmChecker) Name() string { return "drm_sessions" }

func (c *DrmChecker) Check(_ context.Context) CheckResult {
	snap := c.src.Snapshot()
	switch {
	case snap.State != model.SessionMgrActive.String():
		return CheckResult{Status: StatusUnhealthy, Message: "session manager " + snap.State}
	case len(snap.FailedKeyIDs) > 0:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d key id(s) suppressed after license failure", len(snap.FailedKeyIDs)),
		}
	case snap.MaxSessions > 0 && snap.ActiveSessions >= snap.MaxSessions:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("all %d session slots in use", snap.MaxSessions),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d/%d sessions", snap.ActiveSessions, snap.MaxSessions),
	}
}

// BreakerChecker degrades readiness while a circuit breaker is not closed.
type BreakerChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb reported under name.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, cb: cb}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(_ context.Context) CheckResult {
	switch st := c.cb.State(); st {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(st)}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(st)}
	}
}

// PipelineProbe reports the pipeline's element state and last fatal error.
type PipelineProbe interface {
	HealthState() (state string, lastErr error)
}

// PipelineChecker turns a fatal pipeline error into an unhealthy result.
type PipelineChecker struct {
	probe PipelineProbe
}

// NewPipelineChecker creates a checker over probe.
func NewPipelineChecker(probe PipelineProbe) *PipelineChecker {
	return &PipelineChecker{probe: probe}
}

func (c *PipelineChecker) Name() string { return "pipeline" }

func (c *PipelineChecker) Check(_ context.Context) CheckResult {
	state, err := c.probe.HealthState()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: state, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: state}
}
