// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/license"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
	"github.com/ManuGH/gstplayer/internal/telemetry"
)

var errSessionGone = errors.New("session released during license acquisition")

// startAcquisition moves h to KeyPending and acquires its license in the background.
func (m *Manager) startAcquisition(h *Handle) {
	m.mu.Lock()
	if h.acquiring || h.slot < 0 || h.session == nil || h.state != model.KeyInit {
		m.mu.Unlock()
		return
	}
	h.acquiring = true
	h.setStateLocked(model.KeyPending)
	ctx := m.acqCtx
	m.mu.Unlock()

	if !m.registry.Go(func() { m.acquire(ctx, h) }) {
		m.mu.Lock()
		h.acquiring = false
		h.setStateLocked(model.KeyInit)
		m.mu.Unlock()
	}
}

func (m *Manager) acquire(ctx context.Context, h *Handle) {
	defer func() {
		m.mu.Lock()
		h.acquiring = false
		h.broadcastLocked()
		m.mu.Unlock()
	}()

	m.mu.Lock()
	sess := h.session
	m.mu.Unlock()
	if sess == nil {
		return
	}

	key := h.hexID + "/" + sess.ID()
	_, _, _ = m.flight.Do(key, func() (any, error) {
		m.keyLocks.LockKey(h.hexID)
		defer func() { _ = m.keyLocks.UnlockKey(h.hexID) }()
		return nil, m.acquireLicense(ctx, h, sess, nil)
	})
}

// scheduleRenewal answers a CDM renewal request in the background.
func (m *Manager) scheduleRenewal(h *Handle, sess cdm.Session, challenge cdm.Challenge) {
	m.mu.Lock()
	live := h.session == sess && h.slot >= 0
	ctx := m.acqCtx
	m.mu.Unlock()
	if !live {
		return
	}
	m.logger.Info().
		Str(xglog.FieldEvent, "drm.license_renewal").
		Str(xglog.FieldKeyID, h.hexID).
		Msg("renewing license")
	m.registry.Go(func() {
		m.keyLocks.LockKey(h.hexID)
		defer func() { _ = m.keyLocks.UnlockKey(h.hexID) }()
		_ = m.acquireLicense(ctx, h, sess, &challenge)
	})
}

// acquireLicense runs one license round trip for sess. A nil challenge asks the
// CDM for a fresh one. Cancellation leaves the key retryable; any other failure
// marks it failed.
func (m *Manager) acquireLicense(ctx context.Context, h *Handle, sess cdm.Session, challenge *cdm.Challenge) (err error) {
	m.mu.Lock()
	if h.session != sess || h.slot < 0 {
		m.mu.Unlock()
		return errSessionGone
	}
	slot, stream, md := h.slot, h.stream, h.md
	cfg, token := m.drmCfg, m.token
	override := m.data.licenseURL
	if override == "" {
		override = m.licenseURL
	}
	m.mu.Unlock()

	system := string(h.helper.System())
	ctx, span := m.tracer.Start(ctx, "drm.license_acquire",
		trace.WithAttributes(telemetry.DrmAttributes(system, h.hexID, stream.String(), slot, false)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	m.cb.profile(m.cb.LAProfBegin, stream)

	defer func() {
		elapsed := time.Since(start)
		if err == nil {
			metrics.RecordLicenseResult(system, "success", elapsed)
			m.cb.profile(m.cb.LAProfEnd, stream)
			m.cb.profilingUpdate("license_acquire", elapsed)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.licenseFailed(h, sess, stream, md, err)
		result := "failure"
		if errors.Is(err, context.Canceled) {
			result = "canceled"
		}
		metrics.RecordLicenseResult(system, result, elapsed)
	}()

	var ch cdm.Challenge
	if challenge != nil {
		ch = *challenge
	} else {
		ch, err = sess.GenerateChallenge(ctx, h.helper.InitData())
		if err != nil {
			return fmt.Errorf("generate challenge: %w", err)
		}
	}

	req := h.helper.GenerateLicenseRequest(ch)
	req, err = decorateRequest(req, cfg, token, override, md)
	if err != nil {
		return err
	}
	span.SetAttributes(telemetry.LicenseAttributes(req.URL, 0)...)

	body, err := m.fetch(ctx, req)
	if err != nil {
		return err
	}
	span.SetAttributes(telemetry.LicenseAttributes(req.URL, len(body))...)

	if _, err := sess.ProcessLicense(ctx, body); err != nil {
		return fmt.Errorf("process license: %w: %w", model.ErrLicenseFailure, err)
	}

	m.mu.Lock()
	if h.session == sess && h.slot >= 0 {
		h.setStateLocked(model.KeyReady)
	}
	m.mu.Unlock()

	m.logger.Info().
		Str(xglog.FieldEvent, "drm.license_acquired").
		Str(xglog.FieldDrmSystem, system).
		Str(xglog.FieldKeyID, h.hexID).
		Int(xglog.FieldSlot, slot).
		Dur("elapsed", time.Since(start)).
		Msg("license acquired")
	return nil
}

func (m *Manager) licenseFailed(h *Handle, sess cdm.Session, stream model.StreamType, md *MetaDataEvent, err error) {
	if errors.Is(err, errSessionGone) {
		return
	}
	if errors.Is(err, context.Canceled) {
		m.mu.Lock()
		if h.session == sess && h.slot >= 0 && h.state == model.KeyPending {
			h.setStateLocked(model.KeyInit)
		}
		m.mu.Unlock()
		return
	}

	code := model.ErrCodeLicenseRequestFailed
	m.mu.Lock()
	if h.session == sess && h.slot >= 0 {
		m.table.MarkFailed(h.slot)
		h.setStateLocked(model.KeyError)
	}
	m.mu.Unlock()

	if md != nil {
		md.fail(code, err.Error())
		var serr *license.StatusError
		if errors.As(err, &serr) {
			md.setResponseCode(serr.StatusCode)
		}
	}
	m.logger.Error().
		Err(err).
		Str(xglog.FieldEvent, "drm.license_failed").
		Str(xglog.FieldKeyID, h.hexID).
		Str(xglog.FieldMediaType, stream.String()).
		Msg("license acquisition failed, key id suppressed")
	m.cb.profileError(m.cb.LAProfError, stream, code)
	if md != nil {
		m.cb.failure(md, code)
	}
}

func (m *Manager) fetch(ctx context.Context, req helper.LicenseRequest) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	switch fn, ok := m.cb.LicenseData.Get(); {
	case ok:
		body, err = fn(ctx, req)
	case m.fetcher != nil:
		body, err = m.fetcher.Fetch(ctx, req)
	default:
		return nil, fmt.Errorf("no license transport registered: %w", model.ErrLicenseFailure)
	}
	if err != nil && !errors.Is(err, model.ErrLicenseFailure) {
		err = fmt.Errorf("%w: %w", model.ErrLicenseFailure, err)
	}
	return body, err
}

// decorateRequest applies the URL override, URI parameter propagation and the
// access token without mutating the helper's request.
func decorateRequest(req helper.LicenseRequest, cfg model.DRMConfig, token, override string, md *MetaDataEvent) (helper.LicenseRequest, error) {
	out := req
	out.Headers = req.Headers.Clone()
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	if override != "" {
		out.URL = override
	}

	if cfg.PropagateURIParam && md != nil && md.ContentURI != "" {
		merged, err := propagateQuery(out.URL, md.ContentURI)
		if err != nil {
			return out, fmt.Errorf("propagate uri params: %w: %w", model.ErrLicenseFailure, err)
		}
		out.URL = merged
	}

	if cfg.UseSecManager {
		if token == "" {
			return out, fmt.Errorf("secure manager enabled without access token: %w", model.ErrLicenseFailure)
		}
		out.Headers.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}

// propagateQuery copies the content URI's query parameters onto the license URL.
// Parameters already present on the license URL win.
func propagateQuery(licenseURL, contentURI string) (string, error) {
	lu, err := url.Parse(licenseURL)
	if err != nil {
		return "", err
	}
	cu, err := url.Parse(contentURI)
	if err != nil {
		return "", err
	}
	q := lu.Query()
	for k, vs := range cu.Query() {
		if _, exists := q[k]; exists {
			continue
		}
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	lu.RawQuery = q.Encode()
	return lu.String(), nil
}
