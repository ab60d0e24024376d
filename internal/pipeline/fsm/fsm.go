// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fsm provides a strict transition-table state machine and the
// GStreamer element state model built on it.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidTransition    = errors.New("fsm: invalid transition")
	ErrConcurrentTransition = errors.New("fsm: concurrent transition")
)

// Transition is one edge of the table. Guard may veto the edge and Action
// carries its side effects; neither runs under the machine lock.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine applies events against a fixed table. An event with no edge from
// the current state is rejected, never ignored.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	edges map[edge[S, E]]Transition[S, E]
}

// New builds a machine starting in initial. Two edges sharing a source state
// and event are a table error.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[edge[S, E]]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := edge[S, E]{t.From, t.Event}
		if _, dup := edges[k]; dup {
			return nil, fmt.Errorf("fsm: duplicate edge %s on %s", t.From, t.Event)
		}
		edges[k] = t
	}
	return &Machine[S, E]{state: initial, edges: edges}, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Allowed reports whether event has an edge from the current state.
func (m *Machine[S, E]) Allowed(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[edge[S, E]{m.state, event}]
	return ok
}

// Fire applies event and returns the resulting state. On any failure the
// state is left where it was. If another Fire or Reset moved the machine
// while the guard or action ran, ErrConcurrentTransition is returned and the
// newer state wins.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.edges[edge[S, E]{from, event}]
	m.mu.Unlock()
	if !ok {
		return from, fmt.Errorf("%s on %s: %w", event, from, ErrInvalidTransition)
	}

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, t.To, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return m.state, fmt.Errorf("%s on %s, now %s: %w", event, from, m.state, ErrConcurrentTransition)
	}
	m.state = t.To
	return t.To, nil
}

// Reset forces the machine into s without running any transition.
func (m *Machine[S, E]) Reset(s S) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
