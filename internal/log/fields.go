// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import "encoding/hex"

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldPipelineID    = "pipeline_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldGate      = "gate"
	FieldMediaType = "media_type"
	FieldElement   = "element"

	// DRM fields
	FieldKeyID     = "key_id"
	FieldSlot      = "slot"
	FieldDrmSystem = "drm_system"
	FieldKeyState  = "key_state"
	FieldErrorCode = "error_code"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)

// KeyIDHex renders a raw key identifier the way every log line expects it.
func KeyIDHex(keyID []byte) string {
	if len(keyID) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(keyID)
}
