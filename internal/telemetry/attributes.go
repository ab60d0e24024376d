// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the player.
const (
	// DRM attributes
	DrmSystemKey    = "drm.system"
	DrmKeyIDKey     = "drm.key_id"
	DrmSlotKey      = "drm.slot"
	DrmStreamKey    = "drm.stream_type"
	DrmKeyStateKey  = "drm.key_state"
	DrmPrimaryKey   = "drm.primary"
	LicenseURLKey   = "license.url"
	LicenseBytesKey = "license.bytes"

	// Pipeline attributes
	PipelineMediaKey   = "pipeline.media"
	PipelineElementKey = "pipeline.element"
	PipelineFromKey    = "pipeline.state_from"
	PipelineToKey      = "pipeline.state_to"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// DrmAttributes creates DRM session span attributes. A negative slot is omitted.
func DrmAttributes(system, keyIDHex, streamType string, slot int, primary bool) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if system != "" {
		attrs = append(attrs, attribute.String(DrmSystemKey, system))
	}
	if keyIDHex != "" {
		attrs = append(attrs, attribute.String(DrmKeyIDKey, keyIDHex))
	}
	if streamType != "" {
		attrs = append(attrs, attribute.String(DrmStreamKey, streamType))
	}
	if slot >= 0 {
		attrs = append(attrs, attribute.Int(DrmSlotKey, slot))
	}
	return append(attrs, attribute.Bool(DrmPrimaryKey, primary))
}

// LicenseAttributes describes a license round trip.
func LicenseAttributes(url string, responseBytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LicenseURLKey, url),
		attribute.Int(LicenseBytesKey, responseBytes),
	}
}

// PipelineStateAttributes describes a pipeline state change.
func PipelineStateAttributes(media, from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PipelineMediaKey, media),
		attribute.String(PipelineFromKey, from),
		attribute.String(PipelineToKey, to),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
