// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cdm declares the content decryption module surface the session
// coordinator drives. Concrete CDMs (OCDM on the box, fakes in tests) live
// behind these interfaces; the coordinator owns every Session it creates.
package cdm

import (
	"context"
	"errors"

	"github.com/ManuGH/gstplayer/internal/drm/model"
)

var (
	ErrUnknownKeySystem = errors.New("cdm: unknown key system")
	ErrSessionClosed    = errors.New("cdm: session closed")
)

// Challenge is the opaque license request body produced by a CDM session.
type Challenge struct {
	Data []byte
	// URL is the destination the CDM suggests; helpers may override it.
	URL string
}

// Session is one decryption context.
type Session interface {
	// ID is the CDM-assigned session identifier; empty means the CDM failed to open it.
	ID() string
	GenerateChallenge(ctx context.Context, initData []byte) (Challenge, error)
	// ProcessLicense feeds the license response and returns the resulting key state.
	ProcessLicense(ctx context.Context, license []byte) (model.KeyState, error)
	State() model.KeyState
	Close() error
}

// Events receives asynchronous CDM notifications; the coordinator forwards them
// to the caller-supplied callbacks.
type Events interface {
	OnIndividualization(payload string)
	OnLicenseRenewal(session Session, challenge Challenge)
	OnKeyStatusChanged(session Session, state model.KeyState)
}

// System opens sessions for one key system (e.g. "com.widevine.alpha").
type System interface {
	KeySystem() string
	CreateSession(ctx context.Context, initData []byte, customData string, events Events) (Session, error)
}

// Provider resolves key system strings to CDM systems.
type Provider interface {
	System(keySystem string) (System, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(keySystem string) (System, error)

func (f ProviderFunc) System(keySystem string) (System, error) { return f(keySystem) }
