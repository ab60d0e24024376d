// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestBreakerRecorderKeepsStateOneHot(t *testing.T) {
	r := NewBreakerRecorder("license_test", "closed", "half-open", "open")
	opened := time.Unix(1_700_000_000, 0)

	r.Transition("open", opened)
	assert.Equal(t, 1.0, counterValue(t, breakerState.WithLabelValues("license_test", "open")))
	assert.Equal(t, 0.0, counterValue(t, breakerState.WithLabelValues("license_test", "closed")))
	assert.Equal(t, 0.0, counterValue(t, breakerState.WithLabelValues("license_test", "half-open")))
	assert.Equal(t, float64(opened.Unix()), counterValue(t, breakerChanged.WithLabelValues("license_test")))

	r.Transition("closed", opened.Add(time.Minute))
	assert.Equal(t, 0.0, counterValue(t, breakerState.WithLabelValues("license_test", "open")))
	assert.Equal(t, 1.0, counterValue(t, breakerState.WithLabelValues("license_test", "closed")))
	assert.Equal(t, float64(opened.Add(time.Minute).Unix()), counterValue(t, breakerChanged.WithLabelValues("license_test")))
}

func TestBreakerRecorderTripsStayPerComponent(t *testing.T) {
	a := NewBreakerRecorder("license_a", "closed", "open")
	b := NewBreakerRecorder("license_b", "closed", "open")
	before := counterValue(t, breakerTrips.WithLabelValues("license_a", string(TripThreshold)))

	a.Trip(TripThreshold)
	a.Trip(TripThreshold)
	b.Trip(TripHalfOpenRetry)

	assert.Equal(t, before+2, counterValue(t, breakerTrips.WithLabelValues("license_a", string(TripThreshold))))
	assert.Equal(t, 0.0, counterValue(t, breakerTrips.WithLabelValues("license_b", string(TripThreshold))))
	assert.Equal(t, 1.0, counterValue(t, breakerTrips.WithLabelValues("license_b", string(TripHalfOpenRetry))))
}

func TestBusDropReasonDefaultsLabels(t *testing.T) {
	before := counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}

func TestRecordLicenseResult(t *testing.T) {
	before := counterValue(t, DrmLicenseRequestsTotal.WithLabelValues("unknown", "ok"))
	RecordLicenseResult("", "ok", 300*time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, DrmLicenseRequestsTotal.WithLabelValues("unknown", "ok")))

	ch := make(chan prometheus.Metric, 1)
	drmLicenseDuration.WithLabelValues("unknown").(prometheus.Histogram).Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	assert.GreaterOrEqual(t, m.Histogram.GetSampleCount(), uint64(1))
}

func TestGateAndPipelineCounters(t *testing.T) {
	before := counterValue(t, GateDrainTimeoutsTotal.WithLabelValues("metrics_test"))
	IncGateDrainTimeout("metrics_test")
	assert.Equal(t, before+1, counterValue(t, GateDrainTimeoutsTotal.WithLabelValues("metrics_test")))

	IncBuffer("video", "pushed")
	IncStateTransition("PAUSED", "PLAYING")
	assert.GreaterOrEqual(t, counterValue(t, PipelineBuffersTotal.WithLabelValues("video", "pushed")), 1.0)
	assert.GreaterOrEqual(t, counterValue(t, PipelineStateTransitionsTotal.WithLabelValues("PAUSED", "PLAYING")), 1.0)
}
