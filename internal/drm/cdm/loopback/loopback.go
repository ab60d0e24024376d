// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package loopback is an in-process CDM for running the player without a
// platform decryption stack. It walks sessions through the real key state
// sequence but decrypts nothing: any non-empty license unlocks the key.
package loopback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// KeySystems are the systems NewProvider answers for.
var KeySystems = []string{model.OCDMWidevine, model.OCDMPlayReady, model.OCDMClearKey}

// Provider serves one System per key system.
type Provider struct {
	systems map[string]*System
}

// NewProvider returns a provider for keySystems, or for KeySystems when none
// are given.
func NewProvider(keySystems ...string) *Provider {
	if len(keySystems) == 0 {
		keySystems = KeySystems
	}
	p := &Provider{systems: make(map[string]*System, len(keySystems))}
	for _, ks := range keySystems {
		p.systems[ks] = &System{name: ks}
	}
	return p
}

func (p *Provider) System(keySystem string) (cdm.System, error) {
	s, ok := p.systems[keySystem]
	if !ok {
		return nil, fmt.Errorf("loopback: %w: %q", cdm.ErrUnknownKeySystem, keySystem)
	}
	return s, nil
}

// System opens loopback sessions for one key system.
type System struct {
	name string
	seq  atomic.Uint64
}

func (s *System) KeySystem() string { return s.name }

func (s *System) CreateSession(_ context.Context, _ []byte, _ string, events cdm.Events) (cdm.Session, error) {
	return &session{
		id:     fmt.Sprintf("%s/loopback-%d", s.name, s.seq.Add(1)),
		events: events,
		state:  model.KeyInit,
	}, nil
}

type session struct {
	id     string
	events cdm.Events

	mu    sync.Mutex
	state model.KeyState
}

func (s *session) ID() string { return s.id }

func (s *session) GenerateChallenge(_ context.Context, initData []byte) (cdm.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == model.KeyClosed {
		return cdm.Challenge{}, cdm.ErrSessionClosed
	}
	s.state = model.KeyPending
	return cdm.Challenge{Data: append([]byte(s.id+":"), initData...)}, nil
}

func (s *session) ProcessLicense(_ context.Context, license []byte) (model.KeyState, error) {
	s.mu.Lock()
	if s.state == model.KeyClosed {
		s.mu.Unlock()
		return model.KeyClosed, cdm.ErrSessionClosed
	}
	if len(license) == 0 {
		s.state = model.KeyError
	} else {
		s.state = model.KeyReady
	}
	st := s.state
	s.mu.Unlock()

	if s.events != nil {
		s.events.OnKeyStatusChanged(s, st)
	}
	if st != model.KeyReady {
		return st, fmt.Errorf("loopback: empty license")
	}
	return st, nil
}

func (s *session) State() model.KeyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == model.KeyClosed {
		return cdm.ErrSessionClosed
	}
	s.state = model.KeyClosed
	return nil
}
