// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TripReason labels why a license breaker opened.
type TripReason string

const (
	TripThreshold     TripReason = "threshold_exceeded"
	TripHalfOpenRetry TripReason = "half_open_failure"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gstplayer_circuit_breaker_state",
		Help: "One-hot state of each breaker guarding the license server",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gstplayer_circuit_breaker_trips_total",
		Help: "Breaker transitions into open, by trip reason",
	}, []string{"component", "reason"})

	breakerChanged = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gstplayer_circuit_breaker_last_transition_timestamp_seconds",
		Help: "Unix time of the last breaker state change",
	}, []string{"component"})
)

// BreakerRecorder publishes the series of one named breaker. The label
// vectors are curried once so transitions only touch that breaker's children.
type BreakerRecorder struct {
	states  []string
	state   *prometheus.GaugeVec
	trips   *prometheus.CounterVec
	changed prometheus.Gauge
}

// NewBreakerRecorder binds the breaker series to component. states is the
// closed set of state labels kept one-hot.
func NewBreakerRecorder(component string, states ...string) *BreakerRecorder {
	l := prometheus.Labels{"component": component}
	return &BreakerRecorder{
		states:  states,
		state:   breakerState.MustCurryWith(l),
		trips:   breakerTrips.MustCurryWith(l),
		changed: breakerChanged.With(l),
	}
}

// Transition marks current as the only set state.
func (r *BreakerRecorder) Transition(current string, at time.Time) {
	for _, s := range r.states {
		v := 0.0
		if s == current {
			v = 1
		}
		r.state.WithLabelValues(s).Set(v)
	}
	r.changed.Set(float64(at.Unix()))
}

// Trip counts one transition into open.
func (r *BreakerRecorder) Trip(reason TripReason) {
	r.trips.WithLabelValues(string(reason)).Inc()
}
