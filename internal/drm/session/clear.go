// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// ClearDrmSession closes every session and forgets processed key IDs.
// forceClearSession also drops failed-key records; without it they stay
// suppressed for the retry window.
func (m *Manager) ClearDrmSession(forceClearSession bool) {
	m.mu.Lock()
	n := len(m.handles)
	for _, h := range m.handles {
		m.closeHandleLocked(h)
	}
	m.table.ReleaseAll(forceClearSession)
	clear(m.seen)
	m.mu.Unlock()

	if n > 0 {
		m.logger.Info().
			Str(xglog.FieldEvent, "drm.sessions_cleared").
			Int("sessions", n).
			Bool("force", forceClearSession).
			Msg("drm sessions cleared")
	}
}

// ClearSessionData resets custom data, the secure-manager instance, the per
// stream session contexts and the per-playback license URL.
func (m *Manager) ClearSessionData() {
	m.mu.Lock()
	m.data = sessionData{contexts: make(map[model.StreamType]*Handle)}
	m.mu.Unlock()
}

// ClearFailedKeyIDs lifts retry suppression for every key ID.
func (m *Manager) ClearFailedKeyIDs() {
	m.mu.Lock()
	m.table.ClearFailedKeyIDs()
	m.mu.Unlock()
}

// ClearAccessToken drops the secure-manager access token.
func (m *Manager) ClearAccessToken() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// NotifyCleanup cancels in-flight license acquisitions. Their sessions return
// to KeyInit and stay retryable.
func (m *Manager) NotifyCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.acqStop()
	m.acqCtx, m.acqStop = context.WithCancel(context.Background())
}
