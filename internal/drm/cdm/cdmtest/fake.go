// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cdmtest provides a scriptable in-memory CDM for tests.
package cdmtest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// ValidLicense is the license body FakeSession accepts by default.
var ValidLicense = []byte("fake-license-ok")

// FakeSystem is a deterministic CDM. Behaviour knobs may be set before use.
type FakeSystem struct {
	Name string
	// EmptySessionID makes CreateSession return sessions without an ID.
	EmptySessionID bool
	// CreateErr is returned by CreateSession when non-nil.
	CreateErr error
	// ChallengeErr is returned by GenerateChallenge when non-nil.
	ChallengeErr error
	// Accept decides whether a license body unlocks the key; defaults to bytes.Equal(ValidLicense).
	Accept func(license []byte) bool

	seq     atomic.Int64
	mu      sync.Mutex
	created []*FakeSession
}

// NewFakeSystem returns a FakeSystem named keySystem.
func NewFakeSystem(keySystem string) *FakeSystem {
	return &FakeSystem{Name: keySystem}
}

func (f *FakeSystem) KeySystem() string { return f.Name }

func (f *FakeSystem) CreateSession(_ context.Context, initData []byte, customData string, events cdm.Events) (cdm.Session, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	id := ""
	if !f.EmptySessionID {
		id = fmt.Sprintf("%s-%d", f.Name, f.seq.Add(1))
	}
	s := &FakeSession{
		system:     f,
		id:         id,
		initData:   bytes.Clone(initData),
		customData: customData,
		events:     events,
		state:      model.KeyInit,
	}
	f.mu.Lock()
	f.created = append(f.created, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session created so far.
func (f *FakeSystem) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.created...)
}

// OpenSessions counts sessions that have not been closed.
func (f *FakeSystem) OpenSessions() int {
	n := 0
	for _, s := range f.Sessions() {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// FakeSession implements cdm.Session.
type FakeSession struct {
	system     *FakeSystem
	id         string
	initData   []byte
	customData string
	events     cdm.Events

	mu     sync.Mutex
	state  model.KeyState
	closed bool
}

func (s *FakeSession) ID() string { return s.id }

// InitData returns the init data the session was opened with.
func (s *FakeSession) InitData() []byte { return bytes.Clone(s.initData) }

// CustomData returns the custom data the session was opened with.
func (s *FakeSession) CustomData() string { return s.customData }

func (s *FakeSession) GenerateChallenge(_ context.Context, initData []byte) (cdm.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cdm.Challenge{}, cdm.ErrSessionClosed
	}
	if s.system.ChallengeErr != nil {
		return cdm.Challenge{}, s.system.ChallengeErr
	}
	s.state = model.KeyPending
	data := append([]byte("challenge:"), initData...)
	return cdm.Challenge{Data: data, URL: "https://license.invalid/" + s.system.Name}, nil
}

func (s *FakeSession) ProcessLicense(_ context.Context, license []byte) (model.KeyState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.KeyClosed, cdm.ErrSessionClosed
	}
	accept := s.system.Accept
	if accept == nil {
		accept = func(b []byte) bool { return bytes.Equal(b, ValidLicense) }
	}
	if accept(license) {
		s.state = model.KeyReady
	} else {
		s.state = model.KeyError
	}
	state := s.state
	events := s.events
	s.mu.Unlock()

	if events != nil {
		events.OnKeyStatusChanged(s, state)
	}
	if state != model.KeyReady {
		return state, fmt.Errorf("cdm rejected license of %d bytes", len(license))
	}
	return state, nil
}

func (s *FakeSession) State() model.KeyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cdm.ErrSessionClosed
	}
	s.closed = true
	s.state = model.KeyClosed
	return nil
}

// Closed reports whether Close has been called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// TriggerRenewal simulates the CDM asking for a license renewal.
func (s *FakeSession) TriggerRenewal() {
	if s.events != nil {
		s.events.OnLicenseRenewal(s, cdm.Challenge{Data: []byte("renewal"), URL: "https://license.invalid/renew"})
	}
}

// TriggerIndividualization simulates a device individualization request.
func (s *FakeSession) TriggerIndividualization(payload string) {
	if s.events != nil {
		s.events.OnIndividualization(payload)
	}
}

// Provider serves a fixed set of fake systems.
type Provider struct {
	mu      sync.Mutex
	systems map[string]*FakeSystem
}

// NewProvider returns a provider knowing the given systems.
func NewProvider(systems ...*FakeSystem) *Provider {
	p := &Provider{systems: make(map[string]*FakeSystem)}
	for _, s := range systems {
		p.systems[s.Name] = s
	}
	return p
}

func (p *Provider) System(keySystem string) (cdm.System, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.systems[keySystem]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cdm.ErrUnknownKeySystem, keySystem)
	}
	return s, nil
}

// Fake returns the named fake system or nil.
func (p *Provider) Fake(keySystem string) *FakeSystem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.systems[keySystem]
}
