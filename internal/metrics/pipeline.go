// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineBuffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_pipeline_buffers_total",
		Help: "Buffers offered to the pipeline by media type and result (pushed, dropped, error).",
	}, []string{"media", "result"})

	PipelineStateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_pipeline_state_transitions_total",
		Help: "Pipeline element state transitions.",
	}, []string{"from", "to"})

	PipelineUnderflowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_pipeline_underflows_total",
		Help: "Buffer underflows detected by pad probes, by media type.",
	}, []string{"media"})

	TaskPoolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gstplayer_taskpool_queued",
		Help: "Deferred pipeline tasks submitted but not yet finished.",
	})
)

// IncBuffer records a buffer offered to the pipeline.
func IncBuffer(media, result string) {
	PipelineBuffersTotal.WithLabelValues(media, result).Inc()
}

// IncStateTransition records an element state change.
func IncStateTransition(from, to string) {
	PipelineStateTransitionsTotal.WithLabelValues(from, to).Inc()
}
