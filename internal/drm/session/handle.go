// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"bytes"
	"context"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// Handle observes one decryption session. The Manager owns the session; a
// caller may poll a Handle or Wait on it but never closes it.
type Handle struct {
	m         *Manager
	keyID     []byte
	hexID     string
	helper    helper.Helper
	callbacks helper.Callbacks

	// Guarded by m.mu.
	slot      int
	session   cdm.Session
	state     model.KeyState
	stream    model.StreamType
	md        *MetaDataEvent
	acquiring bool
	changed   chan struct{}
}

func newHandle(m *Manager, keyID []byte, slot int, h helper.Helper, cb helper.Callbacks) *Handle {
	return &Handle{
		m:         m,
		keyID:     bytes.Clone(keyID),
		hexID:     model.KeyID{Data: keyID}.Hex(),
		helper:    h,
		callbacks: cb,
		slot:      slot,
		state:     model.KeyInit,
		changed:   make(chan struct{}),
	}
}

// KeyID returns a copy of the key ID the session decrypts.
func (h *Handle) KeyID() []byte { return bytes.Clone(h.keyID) }

func (h *Handle) System() model.DrmSystem { return h.helper.System() }

func (h *Handle) State() model.KeyState {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.state
}

// Slot returns the slot index, or -1 once the session was released.
func (h *Handle) Slot() int {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.slot
}

// SessionID is the CDM session identifier, empty before initialization.
func (h *Handle) SessionID() string {
	h.m.mu.Lock()
	s := h.session
	h.m.mu.Unlock()
	if s == nil {
		return ""
	}
	return s.ID()
}

// Wait blocks until no license acquisition is in flight for h, the handle is
// closed, or ctx is done. Failure reporting has completed when Wait returns.
func (h *Handle) Wait(ctx context.Context) (model.KeyState, error) {
	for {
		h.m.mu.Lock()
		st, busy, ch := h.state, h.acquiring, h.changed
		h.m.mu.Unlock()
		if !busy || st == model.KeyClosed {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// setStateLocked records a transition and wakes waiters. Caller holds m.mu.
func (h *Handle) setStateLocked(st model.KeyState) {
	if h.slot >= 0 {
		h.m.table.SetState(h.slot, st)
	}
	if h.state == st {
		return
	}
	h.state = st
	h.broadcastLocked()
}

func (h *Handle) broadcastLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// events adapts a Handle to cdm.Events without exposing those methods on Handle.
type events struct{ h *Handle }

func (e events) OnIndividualization(payload string) {
	e.h.m.logger.Info().
		Str(xglog.FieldEvent, "drm.individualization").
		Str(xglog.FieldKeyID, e.h.hexID).
		Int("payload_bytes", len(payload)).
		Msg("cdm requested individualization")
	if e.h.callbacks != nil {
		e.h.callbacks.Individualization(payload)
	}
}

func (e events) OnLicenseRenewal(session cdm.Session, challenge cdm.Challenge) {
	if e.h.callbacks != nil {
		e.h.callbacks.LicenseRenewal(e.h.helper, challenge)
	}
	e.h.m.scheduleRenewal(e.h, session, challenge)
}

func (e events) OnKeyStatusChanged(session cdm.Session, state model.KeyState) {
	m := e.h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.h.session != session || e.h.slot < 0 {
		return
	}
	e.h.setStateLocked(state)
}
