// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session coordinates decryption sessions: it bounds them with a slot
// table, deduplicates key IDs, suppresses retries of failed keys and drives
// license acquisition asynchronously.
//
// Lock order is per-key lock, then Manager.mu. Manager.mu is never held while
// calling into a CDM, a license server or a registered callback.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/keymutex"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/license"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/slots"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/telemetry"
)

const (
	defaultLicenseTimeout = 10 * time.Second
	keyLockShards         = 32
)

// Clock is the time source for key creation and failure stamps.
type Clock interface {
	Now() time.Time
}

// OutputProtection reports whether the display path can satisfy HDCP 2.2.
type OutputProtection interface {
	SupportsHDCP22() bool
}

// Manager is the DRM session coordinator. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	table    *slots.Table
	handles  map[int]*Handle
	seen     map[string]struct{}
	state    model.SessionMgrState
	drmCfg   model.DRMConfig
	data     sessionData
	token    string
	acqCtx   context.Context
	acqStop  context.CancelFunc
	closed   bool
	advisory advisory

	cdms        cdm.Provider
	fetcher     license.Fetcher
	protection  OutputProtection
	licenseURL  string
	timeout     time.Duration
	retryWindow time.Duration
	clock       Clock

	registry workerRegistry
	flight   singleflight.Group
	keyLocks keymutex.KeyMutex
	tracer   trace.Tracer
	logger   zerolog.Logger

	cb Registrations
}

// sessionData is the auxiliary session-scoped state reset by ClearSessionData.
type sessionData struct {
	customData  string
	secInstance string
	contexts    map[model.StreamType]*Handle
	licenseURL  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher sets the license transport used when no license data callback is registered.
func WithFetcher(f license.Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithRetryWindow bounds how long a failed key ID stays suppressed. Zero or less
// suppresses until ClearFailedKeyIDs.
func WithRetryWindow(d time.Duration) Option {
	return func(m *Manager) { m.retryWindow = d }
}

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

func WithOutputProtection(p OutputProtection) Option {
	return func(m *Manager) { m.protection = p }
}

// WithLicenseServerURL overrides the license URL of every helper built by the Manager.
func WithLicenseServerURL(u string) Option {
	return func(m *Manager) { m.licenseURL = u }
}

func WithLicenseTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithDRMConfig sets the initial flags; UpdateDRMConfig changes them later.
func WithDRMConfig(cfg model.DRMConfig) Option {
	return func(m *Manager) { m.drmCfg = cfg }
}

// New returns an active Manager bounded to maxSessions concurrent sessions.
// Negative or oversized bounds are allocation failures.
func New(maxSessions int, cdms cdm.Provider, opts ...Option) (*Manager, error) {
	if cdms == nil {
		return nil, fmt.Errorf("session manager without cdm provider: %w", model.ErrInvalidArgument)
	}
	m := &Manager{
		handles:  make(map[int]*Handle),
		seen:     make(map[string]struct{}),
		state:    model.SessionMgrActive,
		cdms:     cdms,
		timeout:  defaultLicenseTimeout,
		clock:    realClock{},
		keyLocks: keymutex.NewHashed(keyLockShards),
		tracer:   telemetry.Tracer("gstplayer/drm/session"),
		logger:   xglog.WithComponent("drm.session"),
		cb:       newRegistrations(),
	}
	for _, opt := range opts {
		opt(m)
	}
	table, err := slots.New(maxSessions, slots.WithClock(m.clock))
	if err != nil {
		return nil, err
	}
	m.table = table
	m.data.contexts = make(map[model.StreamType]*Handle)
	m.acqCtx, m.acqStop = context.WithCancel(context.Background())
	m.advisory.watermarkVisible = true

	m.logger.Info().
		Str(xglog.FieldEvent, "drm.manager_created").
		Int("max_sessions", maxSessions).
		Msg("drm session manager ready")
	return m, nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// MaxSessions returns the current slot bound.
func (m *Manager) MaxSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Max()
}

// UpdateMaxDRMSessions resizes the slot bound. Sessions in slots beyond a smaller
// bound are closed. Negative bounds are invalid; bounds above
// model.MaxSessionsLimit are allocation failures.
func (m *Manager) UpdateMaxDRMSessions(newMax int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.table.Max()
	if err := m.table.Resize(newMax); err != nil {
		m.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "drm.resize_rejected").
			Int("requested", newMax).
			Int("current", old).
			Msg("rejecting session bound")
		return err
	}
	for idx, h := range m.handles {
		if idx >= newMax {
			m.closeHandleLocked(h)
			delete(m.handles, idx)
		}
	}
	m.logger.Info().
		Str(xglog.FieldEvent, "drm.resized").
		Int("old", old).
		Int("new", newMax).
		Msg("session bound updated")
	return nil
}

// SessionMgrState returns the coordinator-wide gate.
func (m *Manager) SessionMgrState() model.SessionMgrState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetSessionMgrState switches the coordinator between active and inactive.
// Values outside the closed set are logged and ignored.
func (m *Manager) SetSessionMgrState(state model.SessionMgrState) {
	if !state.Valid() {
		m.logger.Warn().
			Str(xglog.FieldEvent, "drm.manager_state_invalid").
			Int("value", int(state)).
			Msg("ignoring out-of-range session manager state")
		return
	}
	m.mu.Lock()
	old := m.state
	m.state = state
	m.mu.Unlock()
	if old != state {
		m.logger.Info().
			Str(xglog.FieldEvent, "drm.manager_state").
			Str(xglog.FieldOldState, old.String()).
			Str(xglog.FieldNewState, state.String()).
			Msg("session manager state changed")
	}
}

// UpdateDRMConfig replaces the flags consulted by subsequent session creation.
func (m *Manager) UpdateDRMConfig(useSecManager, enablePROutputProtection, propagateURIParam, isFakeTune, wideVineKIDWorkaround bool) {
	cfg := model.DRMConfig{
		UseSecManager:            useSecManager,
		EnablePROutputProtection: enablePROutputProtection,
		PropagateURIParam:        propagateURIParam,
		IsFakeTune:               isFakeTune,
		WideVineKIDWorkaround:    wideVineKIDWorkaround,
	}
	m.mu.Lock()
	m.drmCfg = cfg
	m.mu.Unlock()
	m.logger.Debug().
		Str(xglog.FieldEvent, "drm.config_updated").
		Interface("config", cfg).
		Msg("drm config updated")
}

// DRMConfig returns the current flags.
func (m *Manager) DRMConfig() model.DRMConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drmCfg
}

// SetCustomData sets the opaque custom data handed to the CDM when sessions open.
func (m *Manager) SetCustomData(data string) {
	m.mu.Lock()
	m.data.customData = data
	m.mu.Unlock()
}

// SetSecInstance records the secure-manager session the player is bound to.
func (m *Manager) SetSecInstance(id string) {
	m.mu.Lock()
	m.data.secInstance = id
	m.mu.Unlock()
}

// SetSessionLicenseURL overrides the license URL for the current playback only.
func (m *Manager) SetSessionLicenseURL(u string) {
	m.mu.Lock()
	m.data.licenseURL = u
	m.mu.Unlock()
}

// SetAccessToken stores the token attached to license requests when the
// secure manager is in use.
func (m *Manager) SetAccessToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// AccessToken returns the stored token.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close stops accepting work, cancels license acquisitions, waits for them
// within ctx and releases every session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = model.SessionMgrInactive
	m.acqStop()
	m.mu.Unlock()

	err := m.registry.CloseAndWait(ctx)

	m.mu.Lock()
	for idx, h := range m.handles {
		m.closeHandleLocked(h)
		delete(m.handles, idx)
	}
	m.table.ReleaseAll(true)
	m.mu.Unlock()

	m.logger.Info().Str(xglog.FieldEvent, "drm.manager_closed").Msg("drm session manager closed")
	return err
}
