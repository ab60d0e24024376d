// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"slices"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/slots"
)

// Snapshot is a point-in-time copy of coordinator state for diagnostics.
type Snapshot struct {
	State            string          `json:"state"`
	MaxSessions      int             `json:"maxSessions"`
	ActiveSessions   int             `json:"activeSessions"`
	Slots            []slots.Info    `json:"slots"`
	FailedKeyIDs     []string        `json:"failedKeyIds"`
	ProcessedKeyIDs  int             `json:"processedKeyIds"`
	Config           model.DRMConfig `json:"config"`
	AccessTokenSet   bool            `json:"accessTokenSet"`
	CustomDataSet    bool            `json:"customDataSet"`
	Playback         PlaybackState   `json:"playback"`
	WindowWidth      int             `json:"windowWidth"`
	WindowHeight     int             `json:"windowHeight"`
	WatermarkVisible bool            `json:"watermarkVisible"`
	LicenseWorkers   int             `json:"licenseWorkers"`
}

// Snapshot copies the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	failed := m.table.FailedKeyIDs()
	slices.Sort(failed)
	return Snapshot{
		State:            m.state.String(),
		MaxSessions:      m.table.Max(),
		ActiveSessions:   m.table.Occupied(),
		Slots:            m.table.Snapshot(),
		FailedKeyIDs:     failed,
		ProcessedKeyIDs:  len(m.seen),
		Config:           m.drmCfg,
		AccessTokenSet:   m.token != "",
		CustomDataSet:    m.data.customData != "",
		Playback:         m.advisory.playback,
		WindowWidth:      m.advisory.windowWidth,
		WindowHeight:     m.advisory.windowHeight,
		WatermarkVisible: m.advisory.watermarkVisible,
		LicenseWorkers:   m.registry.Running(),
	}
}
