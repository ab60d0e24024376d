// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model holds the value types shared by the DRM session components.
package model

import "fmt"

// KeyState is the lifecycle of one session slot.
//
//	KEY_INIT -> KEY_PENDING -> {KEY_READY | KEY_ERROR}
//	KEY_READY -> KEY_CLOSED (teardown)
//	KEY_INIT -> KEY_ERROR_EMPTY_SESSION_ID (invalid slot)
type KeyState int

const (
	KeyInit KeyState = iota
	KeyPending
	KeyReady
	KeyError
	KeyErrorEmptySessionID
	KeyClosed
)

func (s KeyState) String() string {
	switch s {
	case KeyInit:
		return "KEY_INIT"
	case KeyPending:
		return "KEY_PENDING"
	case KeyReady:
		return "KEY_READY"
	case KeyError:
		return "KEY_ERROR"
	case KeyErrorEmptySessionID:
		return "KEY_ERROR_EMPTY_SESSION_ID"
	case KeyClosed:
		return "KEY_CLOSED"
	default:
		return fmt.Sprintf("KEY_STATE(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition happens without an explicit retry.
func (s KeyState) IsTerminal() bool {
	switch s {
	case KeyClosed, KeyError, KeyErrorEmptySessionID:
		return true
	}
	return false
}

// IsError reports whether the state is one of the error arms.
func (s KeyState) IsError() bool {
	return s == KeyError || s == KeyErrorEmptySessionID
}

// SessionMgrState gates creation of new decryption sessions for the whole coordinator.
type SessionMgrState int

const (
	SessionMgrActive SessionMgrState = iota
	SessionMgrInactive
	// SessionMgrUnknown is what out-of-range integers map to.
	SessionMgrUnknown
)

// ParseSessionMgrState maps a raw value onto the closed set of states.
func ParseSessionMgrState(v int) SessionMgrState {
	switch SessionMgrState(v) {
	case SessionMgrActive, SessionMgrInactive:
		return SessionMgrState(v)
	}
	return SessionMgrUnknown
}

// Valid reports whether s is Active or Inactive.
func (s SessionMgrState) Valid() bool {
	return s == SessionMgrActive || s == SessionMgrInactive
}

func (s SessionMgrState) String() string {
	switch s {
	case SessionMgrActive:
		return "eSESSIONMGR_ACTIVE"
	case SessionMgrInactive:
		return "eSESSIONMGR_INACTIVE"
	default:
		return "eSESSIONMGR_UNKNOWN"
	}
}
