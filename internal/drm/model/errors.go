// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"errors"
	"fmt"
)

// Error classes. Public coordinator APIs surface these as ErrorCode output values;
// internal code wraps them with %w and tests match with errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAllocationFailure = errors.New("allocation failure")
	ErrLicenseFailure    = errors.New("license acquisition failed")
	ErrManagerInactive   = errors.New("drm session manager inactive")
	ErrSlotUnavailable   = errors.New("no drm session slot available")
	ErrUnsupportedSystem = errors.New("unsupported drm system")
	ErrCorruptMetadata   = errors.New("corrupt drm metadata")
	ErrKeyIDSuppressed   = errors.New("key id suppressed after failed license acquisition")
	ErrSessionIDEmpty    = errors.New("drm session id empty")
)

// MaxSessionsLimit is the largest session bound the coordinator will allocate.
// Larger requests are allocation failures rather than silently clamped.
const MaxSessionsLimit = 256

// ErrorCode is the numeric error reported through output parameters.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeSessionIDEmpty
	ErrCodeManagerInactive
	ErrCodeSlotUnavailable
	ErrCodeLicenseRequestFailed
	ErrCodeCorruptDrmMetadata
	ErrCodeDrmInitFailed
	ErrCodeUnsupportedDrmSystem
	ErrCodeAllocationFailure
	ErrCodeKeyIDSuppressed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeSessionIDEmpty:
		return "session_id_empty"
	case ErrCodeManagerInactive:
		return "session_manager_inactive"
	case ErrCodeSlotUnavailable:
		return "slot_unavailable"
	case ErrCodeLicenseRequestFailed:
		return "license_request_failed"
	case ErrCodeCorruptDrmMetadata:
		return "corrupt_drm_metadata"
	case ErrCodeDrmInitFailed:
		return "drm_init_failed"
	case ErrCodeUnsupportedDrmSystem:
		return "unsupported_drm_system"
	case ErrCodeAllocationFailure:
		return "allocation_failure"
	case ErrCodeKeyIDSuppressed:
		return "keyid_suppressed"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// Failed reports whether c is any non-zero code.
func (c ErrorCode) Failed() bool { return c != ErrNone }

// CodeOf classifies err into the code carried through output parameters.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrNone
	case errors.Is(err, ErrSessionIDEmpty):
		return ErrCodeSessionIDEmpty
	case errors.Is(err, ErrInvalidArgument):
		return ErrCodeInvalidArgument
	case errors.Is(err, ErrAllocationFailure):
		return ErrCodeAllocationFailure
	case errors.Is(err, ErrManagerInactive):
		return ErrCodeManagerInactive
	case errors.Is(err, ErrSlotUnavailable):
		return ErrCodeSlotUnavailable
	case errors.Is(err, ErrUnsupportedSystem):
		return ErrCodeUnsupportedDrmSystem
	case errors.Is(err, ErrCorruptMetadata):
		return ErrCodeCorruptDrmMetadata
	case errors.Is(err, ErrKeyIDSuppressed):
		return ErrCodeKeyIDSuppressed
	case errors.Is(err, ErrLicenseFailure):
		return ErrCodeLicenseRequestFailed
	default:
		return ErrCodeDrmInitFailed
	}
}
