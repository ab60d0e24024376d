// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// SendProtectionEvent hands DRM init data for media to the session
// coordinator on the task pool. A known systemID is tried before the
// configured system preference. It reports whether the work was scheduled.
func (c *Control) SendProtectionEvent(media model.StreamType, systemID uuid.UUID, initData []byte) bool {
	if !media.Valid() || len(initData) == 0 {
		return false
	}
	return c.scheduleProtection(media, systemID, initData)
}

func (c *Control) scheduleProtection(media model.StreamType, systemID uuid.UUID, initData []byte) bool {
	data := bytes.Clone(initData)
	return c.runIdle(func(ctx context.Context) error {
		return c.handleProtection(ctx, media, systemID, data)
	})
}

func (c *Control) preference(systemID uuid.UUID) []model.DrmSystem {
	first := model.SystemForID(systemID)
	if first == model.SystemNone {
		return c.cfg.PreferredSystems
	}
	out := []model.DrmSystem{first}
	for _, sys := range c.cfg.PreferredSystems {
		if sys != first {
			out = append(out, sys)
		}
	}
	return out
}

// handleProtection creates the session for a track's first init data and
// routes later, different init data through the key rotation path. Repeated
// identical init data is ignored.
func (c *Control) handleProtection(ctx context.Context, media model.StreamType, systemID uuid.UUID, initData []byte) error {
	if c.drm == nil {
		return ErrNoDRM
	}
	ctx = xglog.ContextWithPipelineID(ctx, c.id.String())
	c.mu.Lock()
	st := c.streams[media]
	if st == nil {
		c.mu.Unlock()
		return fmt.Errorf("protection for %s: %w", media, ErrInvalidStream)
	}
	if st.sameInitData(initData) {
		c.mu.Unlock()
		return nil
	}
	st.lastInitData = initData
	st.protectionEvents++
	hasSession := st.drm != nil
	uri := c.contentURI
	c.mu.Unlock()

	if hasSession {
		state, err := c.drm.ProcessProtectionUpdate(ctx, media, initData)
		c.logger.Info().
			Err(err).
			Str(xglog.FieldEvent, "pipeline.protection_update").
			Str(xglog.FieldMediaType, media.String()).
			Str(xglog.FieldKeyState, state.String()).
			Msg("protection update processed")
		return err
	}

	h, err := c.drm.NewHelper(initData, c.preference(systemID)...)
	if err != nil {
		c.forgetInitData(st)
		return fmt.Errorf("protection for %s: %w", media, err)
	}
	var opts []session.CreateOption
	if media == model.StreamVideo {
		opts = append(opts, session.AsPrimary())
	}
	handle, err := c.drm.CreateDrmSession(ctx, h, c, media, session.NewMetaDataEvent(uri), opts...)
	if err != nil {
		c.forgetInitData(st)
		return fmt.Errorf("drm session for %s: %w", media, err)
	}

	c.mu.Lock()
	st.drm = handle
	c.mu.Unlock()
	c.logger.Info().
		Str(xglog.FieldEvent, "pipeline.drm_session").
		Str(xglog.FieldMediaType, media.String()).
		Str(xglog.FieldDrmSystem, string(h.System())).
		Str(xglog.FieldKeyID, xglog.KeyIDHex(handle.KeyID())).
		Msg("drm session attached to track")
	return nil
}

// forgetInitData lets the same init data be retried after a failure.
func (c *Control) forgetInitData(st *stream) {
	c.mu.Lock()
	st.lastInitData = nil
	c.mu.Unlock()
}

// Individualization forwards CDM individualization requests while the pipeline is alive.
func (c *Control) Individualization(payload string) {
	c.gates.idle.Run(func() { c.events.OnIndividualization(payload) })
}

// LicenseRenewal forwards CDM renewal requests while the pipeline is alive.
func (c *Control) LicenseRenewal(h helper.Helper, userData any) {
	c.gates.idle.Run(func() { c.events.OnLicenseRenewal(h.System(), userData) })
}

var _ helper.Callbacks = (*Control)(nil)
