// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateDrainTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_gate_drain_timeouts_total",
		Help: "Times a handler gate failed to drain in-flight callbacks before its deadline.",
	}, []string{"gate"})

	GateAbortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_gate_aborted_total",
		Help: "Callback invocations that observed a disabled gate and returned without work.",
	}, []string{"gate"})

	GateUnderflowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_gate_underflow_total",
		Help: "Scope releases that would have driven a gate's instance count below zero.",
	}, []string{"gate"})
)

func IncGateDrainTimeout(gate string) { GateDrainTimeoutsTotal.WithLabelValues(gate).Inc() }
func IncGateAborted(gate string)      { GateAbortedTotal.WithLabelValues(gate).Inc() }
func IncGateUnderflow(gate string)    { GateUnderflowTotal.WithLabelValues(gate).Inc() }
