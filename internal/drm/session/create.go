// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
)

// ErrOutputProtection is returned when content demands HDCP 2.2 the display path lacks.
var ErrOutputProtection = errors.New("output protection requirement not met")

type createOptions struct {
	primary bool
}

// CreateOption tunes CreateDrmSession.
type CreateOption func(*createOptions)

// AsPrimary exempts the session's slot from eviction.
func AsPrimary() CreateOption {
	return func(o *createOptions) { o.primary = true }
}

// CreateDrmSession reserves or reuses a slot for the helper's key ID, opens the
// CDM session and starts license acquisition in the background. The returned
// Handle stays owned by the Manager. A key ID that already owns a pending or
// ready session returns the existing Handle without a second license request.
func (m *Manager) CreateDrmSession(ctx context.Context, h helper.Helper, cb helper.Callbacks, stream model.StreamType, md *MetaDataEvent, opts ...CreateOption) (*Handle, error) {
	var invalid string
	switch {
	case h == nil:
		invalid = "nil drm helper"
	case cb == nil:
		invalid = "nil drm callbacks"
	case md == nil:
		invalid = "nil metadata event"
	case !stream.Valid():
		invalid = fmt.Sprintf("unrecognised stream type %d", int(stream))
	}
	if invalid != "" {
		err := fmt.Errorf("create drm session: %s: %w", invalid, model.ErrInvalidArgument)
		if md != nil {
			md.fail(model.ErrCodeInvalidArgument, err.Error())
		}
		return nil, err
	}

	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	state, closed, cfg := m.state, m.closed, m.drmCfg
	m.mu.Unlock()
	if closed || state != model.SessionMgrActive {
		err := fmt.Errorf("create drm session in state %s: %w", state, model.ErrManagerInactive)
		return nil, m.createFailed(md, stream, err)
	}

	m.mu.Lock()
	handle, st, err := m.reserveLocked(h, cb, o.primary)
	if err != nil {
		m.mu.Unlock()
		return nil, m.createFailed(md, stream, err)
	}
	slot := handle.slot
	handle.stream = stream
	if handle.md == nil {
		handle.md = md
	}
	m.data.contexts[stream] = handle
	m.mu.Unlock()

	if st.IsError() {
		return nil, m.createFailed(md, stream, fmt.Errorf("key id %s: %w", handle.hexID, model.ErrKeyIDSuppressed))
	}
	if st == model.KeyReady || st == model.KeyPending {
		m.logger.Debug().
			Str(xglog.FieldEvent, "drm.session_reused").
			Str(xglog.FieldKeyID, handle.hexID).
			Int(xglog.FieldSlot, slot).
			Str(xglog.FieldKeyState, st.String()).
			Msg("key id already has a session")
		return handle, nil
	}

	if _, err := m.initializeHandle(ctx, h, handle, slot); err != nil {
		return nil, m.createFailed(md, stream, err)
	}

	logger := xglog.WithContext(ctx, m.logger)
	logger.Info().
		Str(xglog.FieldEvent, "drm.session_created").
		Str(xglog.FieldDrmSystem, string(h.System())).
		Str(xglog.FieldKeyID, handle.hexID).
		Int(xglog.FieldSlot, slot).
		Str(xglog.FieldMediaType, stream.String()).
		Bool("primary", o.primary).
		Msg("drm session created")

	if cfg.IsFakeTune {
		logger.Info().
			Str(xglog.FieldEvent, "drm.fake_tune").
			Str(xglog.FieldKeyID, handle.hexID).
			Msg("fake tune, skipping license acquisition")
		if err := m.requireLive(handle, slot); err != nil {
			return nil, m.createFailed(md, stream, err)
		}
		return handle, nil
	}
	m.startAcquisition(handle)
	if err := m.requireLive(handle, slot); err != nil {
		return nil, m.createFailed(md, stream, err)
	}
	return handle, nil
}

// requireLive fails when h lost its slot to an eviction.
func (m *Manager) requireLive(h *Handle, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.slot != slot || h.state == model.KeyClosed {
		return fmt.Errorf("key id %s: slot %d evicted during setup: %w", h.hexID, slot, model.ErrSlotUnavailable)
	}
	return nil
}

func (m *Manager) createFailed(md *MetaDataEvent, stream model.StreamType, err error) error {
	code := model.CodeOf(err)
	md.fail(code, err.Error())
	m.cb.profileError(m.cb.ProfError, stream, code)
	m.cb.failure(md, code)
	m.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "drm.session_create_failed").
		Str(xglog.FieldMediaType, stream.String()).
		Str(xglog.FieldErrorCode, code.String()).
		Msg("drm session not created")
	return err
}

// GetDrmSession finds the slot owning the helper's key ID, or reserves one,
// and reports its state. selectedSlot is written only on success. A slot whose
// earlier attempt failed is recycled once its key is no longer suppressed.
func (m *Manager) GetDrmSession(h helper.Helper, selectedSlot *int, cb helper.Callbacks, isPrimary bool) (model.KeyState, error) {
	if h == nil || cb == nil || selectedSlot == nil {
		return model.KeyError, fmt.Errorf("get drm session: nil helper, callbacks or slot: %w", model.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	handle, st, err := m.reserveLocked(h, cb, isPrimary)
	if err != nil {
		return model.KeyError, err
	}
	*selectedSlot = handle.slot
	return st, nil
}

// reserveLocked returns the handle owning the helper's key ID, creating it in
// a free or evicted slot when needed. Caller holds m.mu.
func (m *Manager) reserveLocked(h helper.Helper, cb helper.Callbacks, isPrimary bool) (*Handle, model.KeyState, error) {
	if m.closed {
		return nil, model.KeyError, fmt.Errorf("get drm session: %w", model.ErrManagerInactive)
	}
	keyID, err := keyIDFor(h, m.drmCfg)
	if err != nil {
		return nil, model.KeyError, err
	}

	suppressed := m.table.IsSuppressed(keyID, m.retryWindow)
	if idx, ok := m.table.FindByKeyID(keyID); ok {
		handle := m.handles[idx]
		if handle != nil && !(handle.state.IsError() && !suppressed) {
			m.table.Touch(idx)
			if isPrimary {
				m.table.MarkPrimary(idx)
			}
			return handle, handle.state, nil
		}
		if handle != nil {
			m.closeHandleLocked(handle)
		}
		m.table.Release(idx, false)
	}

	if suppressed {
		metrics.DrmKeyIDSuppressedTotal.Inc()
		return nil, model.KeyError, fmt.Errorf("key id %s: %w", xglog.KeyIDHex(keyID), model.ErrKeyIDSuppressed)
	}

	idx, evicted, err := m.table.Allocate(keyID, isPrimary)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "drm.slot_exhausted").
			Str(xglog.FieldKeyID, xglog.KeyIDHex(keyID)).
			Int("max_sessions", m.table.Max()).
			Msg("no session slot available")
		return nil, model.KeyError, err
	}
	if evicted {
		if old := m.handles[idx]; old != nil {
			m.closeHandleLocked(old)
		}
	}
	handle := newHandle(m, keyID, idx, h, cb)
	m.handles[idx] = handle
	return handle, model.KeyInit, nil
}

// InitializeDrmSession opens the CDM session for a reserved slot. A negative
// slot, or one that holds no key, yields KeyErrorEmptySessionID. A slot that
// was re-allocated to another key ID since h reserved it yields KeyClosed.
func (m *Manager) InitializeDrmSession(ctx context.Context, h helper.Helper, sessionSlot int) (model.KeyState, error) {
	if sessionSlot < 0 {
		return model.KeyErrorEmptySessionID, fmt.Errorf("initialize slot %d: %w", sessionSlot, model.ErrSessionIDEmpty)
	}
	if h == nil {
		return model.KeyError, fmt.Errorf("initialize slot %d: nil helper: %w", sessionSlot, model.ErrInvalidArgument)
	}

	m.mu.Lock()
	handle := m.handles[sessionSlot]
	cfg := m.drmCfg
	m.mu.Unlock()
	if handle == nil {
		return model.KeyErrorEmptySessionID, fmt.Errorf("initialize slot %d: slot holds no key: %w", sessionSlot, model.ErrSessionIDEmpty)
	}
	keyID, err := keyIDFor(h, cfg)
	if err != nil {
		return model.KeyError, err
	}
	if !bytes.Equal(keyID, handle.keyID) {
		return model.KeyClosed, fmt.Errorf("initialize slot %d: slot now holds key id %s, not %s: %w",
			sessionSlot, handle.hexID, xglog.KeyIDHex(keyID), model.ErrSlotUnavailable)
	}
	return m.initializeHandle(ctx, h, handle, sessionSlot)
}

// initializeHandle opens the CDM session for handle, which was reserved in
// sessionSlot. It gives up with KeyClosed once handle no longer owns the slot.
func (m *Manager) initializeHandle(ctx context.Context, h helper.Helper, handle *Handle, sessionSlot int) (model.KeyState, error) {
	m.keyLocks.LockKey(handle.hexID)
	defer func() { _ = m.keyLocks.UnlockKey(handle.hexID) }()

	m.mu.Lock()
	if handle.slot != sessionSlot {
		m.mu.Unlock()
		return model.KeyClosed, fmt.Errorf("initialize slot %d: session evicted: %w", sessionSlot, model.ErrSlotUnavailable)
	}
	if handle.session != nil {
		st := handle.state
		m.mu.Unlock()
		return st, nil
	}
	customData := m.data.customData
	cfg := m.drmCfg
	stream := handle.stream
	m.mu.Unlock()
	if customData == "" {
		customData = h.CustomData()
	}

	fail := func(st model.KeyState, err error) (model.KeyState, error) {
		m.mu.Lock()
		if handle.slot == sessionSlot {
			handle.setStateLocked(st)
		}
		m.mu.Unlock()
		m.cb.profileError(m.cb.ProfError, stream, model.CodeOf(err))
		return st, err
	}

	if cfg.EnablePROutputProtection && h.System() == model.SystemPlayReady && h.IsHdcp22Required() &&
		m.protection != nil && !m.protection.SupportsHDCP22() {
		return fail(model.KeyError, fmt.Errorf("playready content requires hdcp 2.2: %w", ErrOutputProtection))
	}

	system, err := m.cdms.System(h.OcdmSystemID())
	if err != nil {
		return fail(model.KeyError, fmt.Errorf("key system %q: %w: %w", h.OcdmSystemID(), model.ErrUnsupportedSystem, err))
	}

	m.cb.profile(m.cb.ProfBegin, stream)
	sess, err := system.CreateSession(ctx, h.InitData(), customData, events{h: handle})
	if err != nil {
		return fail(model.KeyError, fmt.Errorf("open %s session: %w", h.OcdmSystemID(), err))
	}
	if sess.ID() == "" {
		_ = sess.Close()
		m.logger.Error().
			Str(xglog.FieldEvent, "drm.session_id_empty").
			Str(xglog.FieldKeyID, handle.hexID).
			Int(xglog.FieldSlot, sessionSlot).
			Msg("cdm opened a session without id")
		return fail(model.KeyErrorEmptySessionID, fmt.Errorf("open %s session: %w", h.OcdmSystemID(), model.ErrSessionIDEmpty))
	}

	m.mu.Lock()
	if handle.slot != sessionSlot {
		m.mu.Unlock()
		_ = sess.Close()
		return model.KeyClosed, fmt.Errorf("initialize slot %d: session evicted: %w", sessionSlot, model.ErrSlotUnavailable)
	}
	handle.session = sess
	m.table.SetSession(sessionSlot, sess)
	st := handle.state
	m.mu.Unlock()

	m.cb.profile(m.cb.ProfEnd, stream)
	return st, nil
}

// GetSlotIDForSession returns the slot index of a live session, or -1 for nil,
// uninitialized or released handles.
func (m *Manager) GetSlotIDForSession(h *Handle) int {
	if h == nil {
		return -1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.session == nil {
		return -1
	}
	return m.table.FindBySession(h.session)
}

// IsKeyIDProcessed reports whether keyID was seen before; the first sighting is
// recorded and reported as unprocessed. status is true for a processed key whose
// license has not failed.
func (m *Manager) IsKeyIDProcessed(keyID []byte) (processed bool, status bool) {
	if len(keyID) == 0 {
		return false, false
	}
	hexID := xglog.KeyIDHex(keyID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[hexID]; !ok {
		m.seen[hexID] = struct{}{}
		return false, false
	}
	return true, !m.table.IsSuppressed(keyID, m.retryWindow)
}

// keyIDFor extracts the key ID, applying the Widevine content_id fallback when enabled.
func keyIDFor(h helper.Helper, cfg model.DRMConfig) ([]byte, error) {
	key := h.GetKey()
	if len(key) == 0 && cfg.WideVineKIDWorkaround && h.System() == model.SystemWidevine {
		wv := helper.NewWidevine(helper.Config{WidevineKIDWorkaround: true})
		if wv.ParsePssh(h.InitData()) {
			key = wv.GetKey()
		}
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%s helper yielded no key id: %w", h.System(), model.ErrCorruptMetadata)
	}
	return key, nil
}

// closeHandleLocked detaches h from its slot and marks it closed. The slot
// table owns closing the CDM session. Caller holds m.mu.
func (m *Manager) closeHandleLocked(h *Handle) {
	if h.slot >= 0 && m.handles[h.slot] == h {
		delete(m.handles, h.slot)
	}
	for stream, c := range m.data.contexts {
		if c == h {
			delete(m.data.contexts, stream)
		}
	}
	h.slot = -1
	h.session = nil
	if h.state != model.KeyClosed {
		h.state = model.KeyClosed
		h.broadcastLocked()
	}
}
