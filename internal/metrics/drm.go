// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DrmSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gstplayer_drm_sessions_active",
		Help: "Number of occupied DRM session slots.",
	})

	DrmSessionsMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gstplayer_drm_sessions_max",
		Help: "Configured upper bound of concurrent DRM session slots.",
	})

	DrmSlotEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gstplayer_drm_slot_evictions_total",
		Help: "Total number of least-recently-used session slots evicted to admit a new key ID.",
	})

	DrmLicenseRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_drm_license_requests_total",
		Help: "License acquisitions by DRM system and result.",
	}, []string{"system", "result"})

	drmLicenseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gstplayer_drm_license_duration_seconds",
		Help:    "Time from license challenge generation to key readiness.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"system"})

	DrmKeyStateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_drm_key_state_total",
		Help: "Session slot key state transitions by target state.",
	}, []string{"state"})

	DrmKeyIDSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gstplayer_drm_keyid_suppressed_total",
		Help: "Session requests suppressed because the key ID recently failed license acquisition.",
	})
)

// RecordLicenseResult counts one license acquisition and observes its latency.
func RecordLicenseResult(system, result string, d time.Duration) {
	if system == "" {
		system = "unknown"
	}
	DrmLicenseRequestsTotal.WithLabelValues(system, result).Inc()
	if d > 0 {
		drmLicenseDuration.WithLabelValues(system).Observe(d.Seconds())
	}
}

// RecordKeyState counts a slot entering state.
func RecordKeyState(state string) {
	DrmKeyStateTotal.WithLabelValues(state).Inc()
}
