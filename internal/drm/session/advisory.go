// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"bytes"
	"math"

	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// PlaybackState is advisory telemetry consumed by watermarking and profiling.
type PlaybackState struct {
	Live           bool    `json:"live"`
	CurrentLatency float64 `json:"currentLatency"`
	AtLivePoint    bool    `json:"atLivePoint"`
	LiveOffsetMs   float64 `json:"liveOffsetMs"`
	Speed          int     `json:"speed"`
	PositionMs     float64 `json:"positionMs"`
	FirstFrameSeen bool    `json:"firstFrameSeen"`
	VideoMuted     bool    `json:"videoMuted"`
}

// WatermarkEvent is the last watermark session notification.
type WatermarkEvent struct {
	SessionHandle uint32 `json:"sessionHandle"`
	Status        uint32 `json:"status"`
	SystemData    []byte `json:"systemData"`
}

type advisory struct {
	playback         PlaybackState
	windowWidth      int
	windowHeight     int
	watermarkVisible bool
	lastWatermark    *WatermarkEvent
}

// SetPlaybackSpeedState records the player's speed and live position.
func (m *Manager) SetPlaybackSpeedState(live bool, currentLatency float64, atLivePoint bool, liveOffsetMs float64, speed int, positionMs float64, firstFrameSeen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &m.advisory.playback
	p.Live = live
	p.CurrentLatency = finite(currentLatency)
	p.AtLivePoint = atLivePoint
	p.LiveOffsetMs = finite(liveOffsetMs)
	p.Speed = speed
	p.PositionMs = finite(positionMs)
	p.FirstFrameSeen = firstFrameSeen
}

// SetVideoMute records whether video is muted along with the live position.
func (m *Manager) SetVideoMute(live bool, currentLatency float64, atLivePoint bool, liveOffsetMs float64, videoMuted bool, positionMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &m.advisory.playback
	p.Live = live
	p.CurrentLatency = finite(currentLatency)
	p.AtLivePoint = atLivePoint
	p.LiveOffsetMs = finite(liveOffsetMs)
	p.VideoMuted = videoMuted
	p.PositionMs = finite(positionMs)
}

// SetVideoWindowSize records the video rectangle. Non-positive sizes are ignored.
func (m *Manager) SetVideoWindowSize(width, height int) {
	if width <= 0 || height <= 0 {
		m.logger.Warn().
			Str(xglog.FieldEvent, "drm.window_size_ignored").
			Int("width", width).
			Int("height", height).
			Msg("ignoring non-positive video window size")
		return
	}
	m.mu.Lock()
	m.advisory.windowWidth, m.advisory.windowHeight = width, height
	m.mu.Unlock()
}

// WatermarkSessionHandlerWrapper forwards a watermark session notification.
// systemData is treated as opaque bytes.
func (m *Manager) WatermarkSessionHandlerWrapper(sessionHandle, status uint32, systemData string) {
	ev := WatermarkEvent{SessionHandle: sessionHandle, Status: status, SystemData: []byte(systemData)}
	m.mu.Lock()
	m.advisory.lastWatermark = &ev
	m.mu.Unlock()

	m.logger.Debug().
		Str(xglog.FieldEvent, "drm.watermark_session").
		Uint32("session_handle", sessionHandle).
		Uint32("status", status).
		Int("system_data_bytes", len(systemData)).
		Msg("watermark session update")

	if fn, ok := m.cb.Watermark.Get(); ok {
		fn(sessionHandle, status, bytes.Clone(ev.SystemData))
	}
}

// HideWatermarkOnDetach hides the watermark once; later calls do nothing.
func (m *Manager) HideWatermarkOnDetach() {
	m.mu.Lock()
	if !m.advisory.watermarkVisible {
		m.mu.Unlock()
		return
	}
	m.advisory.watermarkVisible = false
	m.mu.Unlock()
	m.logger.Info().Str(xglog.FieldEvent, "drm.watermark_hidden").Msg("watermark hidden on detach")
}

// Playback returns the advisory playback state.
func (m *Manager) Playback() PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advisory.playback
}

// VideoWindowSize returns the last accepted window size.
func (m *Manager) VideoWindowSize() (width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advisory.windowWidth, m.advisory.windowHeight
}

// Watermark reports visibility and the last watermark notification, if any.
func (m *Manager) Watermark() (visible bool, last *WatermarkEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advisory.lastWatermark != nil {
		ev := *m.advisory.lastWatermark
		ev.SystemData = bytes.Clone(ev.SystemData)
		last = &ev
	}
	return m.advisory.watermarkVisible, last
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
