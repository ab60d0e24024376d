// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_bus_dropped_total",
		Help: "Total number of pipeline bus message drops by message kind and reason",
	}, []string{"kind", "reason"})

	BusMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_bus_messages_total",
		Help: "Total number of pipeline bus messages dispatched to handlers",
	}, []string{"kind", "handler"})
)

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(kind, reason string) {
	if kind == "" {
		kind = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(kind, reason).Inc()
}

// IncBusMessage records a dispatched bus message. handler is "sync" or "watch".
func IncBusMessage(kind, handler string) {
	BusMessagesTotal.WithLabelValues(kind, handler).Inc()
}
