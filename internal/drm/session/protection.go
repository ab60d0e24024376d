// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// HelperConfig returns the helper settings implied by the current configuration.
func (m *Manager) HelperConfig() helper.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.data.licenseURL
	if u == "" {
		u = m.licenseURL
	}
	return helper.Config{
		LicenseServerURL:      u,
		CustomData:            m.data.customData,
		PROutputProtection:    m.drmCfg.EnablePROutputProtection,
		WidevineKIDWorkaround: m.drmCfg.WideVineKIDWorkaround,
	}
}

// NewHelper parses initData with the preferred supported system.
func (m *Manager) NewHelper(initData []byte, preference ...model.DrmSystem) (helper.Helper, error) {
	return helper.FromInitData(initData, m.HelperConfig(), preference...)
}

// ProcessProtectionUpdate handles new protection data for a stream that already
// has a session, e.g. on key rotation. A registered content protection callback
// decides the outcome; otherwise a session for the new key is created with the
// stream's existing callbacks.
func (m *Manager) ProcessProtectionUpdate(ctx context.Context, stream model.StreamType, initData []byte) (model.KeyState, error) {
	m.mu.Lock()
	cur := m.data.contexts[stream]
	var (
		cb helper.Callbacks
		md *MetaDataEvent
	)
	if cur != nil {
		cb, md = cur.callbacks, cur.md
	}
	m.mu.Unlock()
	if cur == nil {
		return model.KeyError, fmt.Errorf("protection update for %s without session: %w", stream, model.ErrInvalidArgument)
	}

	h, err := helper.ForSystem(cur.System(), m.HelperConfig())
	if err != nil {
		return model.KeyError, err
	}
	if !h.ParsePssh(initData) {
		return model.KeyError, fmt.Errorf("protection update for %s: %w", stream, model.ErrCorruptMetadata)
	}
	if bytes.Equal(h.GetKey(), cur.keyID) {
		return cur.State(), nil
	}

	m.logger.Info().
		Str(xglog.FieldEvent, "drm.key_rotation").
		Str(xglog.FieldMediaType, stream.String()).
		Str(xglog.FieldKeyID, xglog.KeyIDHex(h.GetKey())).
		Msg("new key id for active stream")

	if fn, ok := m.cb.ContentProtection.Get(); ok {
		return fn(h, stream, initData), nil
	}
	if md == nil {
		md = NewMetaDataEvent("")
	}
	next, err := m.CreateDrmSession(ctx, h, cb, stream, md)
	if err != nil {
		return model.KeyError, err
	}
	return next.State(), nil
}
