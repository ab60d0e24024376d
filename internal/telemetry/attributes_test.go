// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestDrmAttributes(t *testing.T) {
	m := attrMap(DrmAttributes("widevine", "a1b2", "video", 3, true))
	assert.Equal(t, "widevine", m[DrmSystemKey].AsString())
	assert.Equal(t, "a1b2", m[DrmKeyIDKey].AsString())
	assert.Equal(t, "video", m[DrmStreamKey].AsString())
	assert.Equal(t, int64(3), m[DrmSlotKey].AsInt64())
	assert.True(t, m[DrmPrimaryKey].AsBool())
}

func TestDrmAttributes_OmitsEmpty(t *testing.T) {
	m := attrMap(DrmAttributes("", "", "", -1, false))
	assert.Len(t, m, 1)
	assert.Contains(t, m, DrmPrimaryKey)
}

func TestLicenseAttributes(t *testing.T) {
	m := attrMap(LicenseAttributes("https://lic.example", 512))
	assert.Equal(t, "https://lic.example", m[LicenseURLKey].AsString())
	assert.Equal(t, int64(512), m[LicenseBytesKey].AsInt64())
}

func TestPipelineStateAttributes(t *testing.T) {
	m := attrMap(PipelineStateAttributes("video", "PAUSED", "PLAYING"))
	assert.Equal(t, "PAUSED", m[PipelineFromKey].AsString())
	assert.Equal(t, "PLAYING", m[PipelineToKey].AsString())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes(errors.New("x"), "license_failure"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "license_failure", m[ErrorTypeKey].AsString())
}
