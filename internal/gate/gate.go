// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package gate guards asynchronous callback entry points so that teardown can
// stop admitting new work and wait for in-flight invocations to finish.
//
// Every guarded entry point acquires a Scope as its first statement, returns
// immediately when the scope reports ShouldAbort, and releases the scope on
// every exit path (normally with defer). The gate's mutex only covers O(1)
// bookkeeping and is never held while callback bodies run.
package gate

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
)

// Gate is an enable flag plus an in-flight instance counter.
// The zero value is not usable; construct with New.
type Gate struct {
	name   string
	logger zerolog.Logger

	mu        sync.Mutex
	enabled   bool
	instances int
	// changed is closed and replaced whenever instances decreases.
	changed chan struct{}
}

// New returns an enabled gate. name labels logs and metrics.
func New(name string) *Gate {
	if name == "" {
		name = "unnamed"
	}
	return &Gate{
		name:    name,
		logger:  xglog.WithComponent("gate").With().Str(xglog.FieldGate, name).Logger(),
		enabled: true,
		changed: make(chan struct{}),
	}
}

// Name returns the label the gate was created with.
func (g *Gate) Name() string { return g.name }

// Enable admits new callback work. It does not wait for anything.
func (g *Gate) Enable() {
	g.mu.Lock()
	g.enabled = true
	g.mu.Unlock()
}

// Disable makes every scope report ShouldAbort. It does not wait for in-flight instances.
func (g *Gate) Disable() {
	g.mu.Lock()
	g.enabled = false
	g.mu.Unlock()
}

func (g *Gate) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// InstancesRunning returns the number of scopes acquired and not yet released.
func (g *Gate) InstancesRunning() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.instances
}

// Acquire registers one in-flight instance and returns the scope that owes its release.
// It never blocks on callback work and succeeds whether or not the gate is enabled.
func (g *Gate) Acquire() *Scope {
	g.mu.Lock()
	g.instances++
	g.mu.Unlock()
	s := &Scope{}
	s.gate.Store(g)
	return s
}

func (g *Gate) release() {
	g.mu.Lock()
	if g.instances <= 0 {
		g.instances = 0
		g.mu.Unlock()
		metrics.IncGateUnderflow(g.name)
		g.logger.Error().
			Str(xglog.FieldEvent, "gate.underflow").
			Msg("scope released with no running instances, clamped to zero")
		return
	}
	g.instances--
	close(g.changed)
	g.changed = make(chan struct{})
	g.mu.Unlock()
}

// Run is the common entry-point pattern: acquire, bail out when disabled, run fn, release.
// It reports whether fn ran.
func (g *Gate) Run(fn func()) bool {
	scope := g.Acquire()
	defer scope.Release()
	if scope.ShouldAbort() {
		return false
	}
	fn()
	return true
}

// WaitForDone disables the gate, then waits up to maxDelay for every in-flight
// instance to release. It returns true once the count reaches zero. On timeout it
// logs label with the remaining count and returns false; callers must treat that as
// "teardown is unsafe" rather than proceed.
func (g *Gate) WaitForDone(maxDelay time.Duration, label string) bool {
	g.Disable()

	timer := time.NewTimer(maxDelay)
	defer timer.Stop()

	for {
		g.mu.Lock()
		if g.instances == 0 {
			g.mu.Unlock()
			return true
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			remaining := g.InstancesRunning()
			if remaining == 0 {
				return true
			}
			metrics.IncGateDrainTimeout(g.name)
			g.logger.Error().
				Str(xglog.FieldEvent, "gate.drain_timeout").
				Str("label", label).
				Int("remaining", remaining).
				Dur("max_delay", maxDelay).
				Msg("handler instances still running after drain deadline")
			return false
		}
	}
}
