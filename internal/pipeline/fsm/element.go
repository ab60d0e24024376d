// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsm

import (
	"context"
	"fmt"
	"strings"
)

// State is a GStreamer element state.
type State string

const (
	StateVoidPending State = "VOID_PENDING"
	StateNull        State = "NULL"
	StateReady       State = "READY"
	StatePaused      State = "PAUSED"
	StatePlaying     State = "PLAYING"
	// StateUnknown absorbs any value outside the element state enumeration.
	StateUnknown State = "UNKNOWN"
)

// Event moves an element one step up or down the state ladder.
type Event string

const (
	EventSetup    Event = "setup"    // NULL -> READY
	EventPreroll  Event = "preroll"  // READY -> PAUSED
	EventPlay     Event = "play"     // PAUSED -> PLAYING
	EventPause    Event = "pause"    // PLAYING -> PAUSED
	EventStop     Event = "stop"     // PAUSED -> READY
	EventTeardown Event = "teardown" // READY -> NULL
)

// ParseState maps a state name, case-insensitive, to a State. Anything
// unrecognised is StateUnknown.
func ParseState(name string) State {
	switch s := State(strings.ToUpper(strings.TrimSpace(name))); s {
	case StateVoidPending, StateNull, StateReady, StatePaused, StatePlaying:
		return s
	}
	return StateUnknown
}

// Level is the rung of s on the state ladder: NULL is 1, PLAYING is 4.
// VOID_PENDING and UNKNOWN are 0.
func (s State) Level() int {
	switch s {
	case StateNull:
		return 1
	case StateReady:
		return 2
	case StatePaused:
		return 3
	case StatePlaying:
		return 4
	}
	return 0
}

// Valid reports whether s is a concrete rung of the ladder.
func (s State) Valid() bool { return s.Level() > 0 }

var ladder = []State{StateNull, StateReady, StatePaused, StatePlaying}

var (
	upEvents   = []Event{EventSetup, EventPreroll, EventPlay}
	downEvents = []Event{EventTeardown, EventStop, EventPause}
)

// ElementTransitions returns the six single-step edges of the element ladder.
// action, when non-nil, runs for every edge.
func ElementTransitions(action func(ctx context.Context, from, to State, ev Event) error) []Transition[State, Event] {
	out := make([]Transition[State, Event], 0, 2*len(upEvents))
	for i, ev := range upEvents {
		out = append(out, Transition[State, Event]{From: ladder[i], Event: ev, To: ladder[i+1], Action: action})
	}
	for i, ev := range downEvents {
		out = append(out, Transition[State, Event]{From: ladder[i+1], Event: ev, To: ladder[i], Action: action})
	}
	return out
}

// NewElement returns a machine in NULL over the element ladder.
func NewElement(action func(ctx context.Context, from, to State, ev Event) error) (*Machine[State, Event], error) {
	return New(StateNull, ElementTransitions(action))
}

// Steps lists the events that walk an element from one state to another, one
// rung at a time, as GStreamer does. from == to yields no steps.
func Steps(from, to State) ([]Event, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("steps %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	var out []Event
	for l := from.Level(); l < to.Level(); l++ {
		out = append(out, upEvents[l-1])
	}
	for l := from.Level(); l > to.Level(); l-- {
		out = append(out, downEvents[l-2])
	}
	return out, nil
}

// Walk fires the single-step events that take m from its current state to
// target. It stops at the first failing step; the machine is then left on the
// last rung it reached.
func Walk(ctx context.Context, m *Machine[State, Event], target State) error {
	steps, err := Steps(m.State(), target)
	if err != nil {
		return err
	}
	for _, ev := range steps {
		if _, err := m.Fire(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
