// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"time"

	"github.com/ManuGH/gstplayer/internal/callback"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

type (
	// ProfileFunc marks the start or end of a profiled phase for a stream.
	ProfileFunc func(stream model.StreamType)
	// ProfileErrorFunc marks a profiled phase as failed.
	ProfileErrorFunc func(stream model.StreamType, code model.ErrorCode)
	// LicenseDataFunc performs the license round trip. When registered it takes
	// precedence over the configured fetcher.
	LicenseDataFunc func(ctx context.Context, req helper.LicenseRequest) ([]byte, error)
	// ContentProtectionFunc handles new protection data for an active stream.
	ContentProtectionFunc func(h helper.Helper, stream model.StreamType, initData []byte) model.KeyState
	SetFailureFunc        func(md *MetaDataEvent, code model.ErrorCode)
	MetaDataFunc          func(md *MetaDataEvent)
	ProfilingUpdateFunc   func(bucket string, d time.Duration)
	WatermarkFunc         func(sessionHandle, status uint32, systemData []byte)
)

// Registrations holds every single-slot callback of the Manager.
type Registrations struct {
	LAProfBegin       *callback.Slot[ProfileFunc]
	LAProfEnd         *callback.Slot[ProfileFunc]
	LAProfError       *callback.Slot[ProfileErrorFunc]
	ProfBegin         *callback.Slot[ProfileFunc]
	ProfEnd           *callback.Slot[ProfileFunc]
	ProfError         *callback.Slot[ProfileErrorFunc]
	LicenseData       *callback.Slot[LicenseDataFunc]
	ContentProtection *callback.Slot[ContentProtectionFunc]
	SetFailure        *callback.Slot[SetFailureFunc]
	MetaData          *callback.Slot[MetaDataFunc]
	ProfilingUpdate   *callback.Slot[ProfilingUpdateFunc]
	Watermark         *callback.Slot[WatermarkFunc]
}

func newRegistrations() Registrations {
	return Registrations{
		LAProfBegin:       callback.Named[ProfileFunc]("LAProfBegin"),
		LAProfEnd:         callback.Named[ProfileFunc]("LAProfEnd"),
		LAProfError:       callback.Named[ProfileErrorFunc]("LAProfError"),
		ProfBegin:         callback.Named[ProfileFunc]("ProfBegin"),
		ProfEnd:           callback.Named[ProfileFunc]("ProfEnd"),
		ProfError:         callback.Named[ProfileErrorFunc]("ProfError"),
		LicenseData:       callback.Named[LicenseDataFunc]("LicenseData"),
		ContentProtection: callback.Named[ContentProtectionFunc]("HandleContentProtection"),
		SetFailure:        callback.Named[SetFailureFunc]("SetFailure"),
		MetaData:          callback.Named[MetaDataFunc]("MetaData"),
		ProfilingUpdate:   callback.Named[ProfilingUpdateFunc]("ProfilingUpdate"),
		Watermark:         callback.Named[WatermarkFunc]("Watermark"),
	}
}

// Callbacks exposes the registration slots, e.g. to check IsSet.
func (m *Manager) Callbacks() *Registrations { return &m.cb }

func (m *Manager) RegisterLAProfBegin(fn ProfileFunc)       { m.cb.LAProfBegin.Register(fn) }
func (m *Manager) RegisterLAProfEnd(fn ProfileFunc)         { m.cb.LAProfEnd.Register(fn) }
func (m *Manager) RegisterLAProfError(fn ProfileErrorFunc)  { m.cb.LAProfError.Register(fn) }
func (m *Manager) RegisterProfBegin(fn ProfileFunc)         { m.cb.ProfBegin.Register(fn) }
func (m *Manager) RegisterProfEnd(fn ProfileFunc)           { m.cb.ProfEnd.Register(fn) }
func (m *Manager) RegisterProfError(fn ProfileErrorFunc)    { m.cb.ProfError.Register(fn) }
func (m *Manager) RegisterLicenseDataCb(fn LicenseDataFunc) { m.cb.LicenseData.Register(fn) }
func (m *Manager) RegisterSetFailure(fn SetFailureFunc)     { m.cb.SetFailure.Register(fn) }
func (m *Manager) RegisterMetaDataCb(fn MetaDataFunc)       { m.cb.MetaData.Register(fn) }
func (m *Manager) RegisterWatermarkCb(fn WatermarkFunc)     { m.cb.Watermark.Register(fn) }

func (m *Manager) RegisterHandleContentProtectionCb(fn ContentProtectionFunc) {
	m.cb.ContentProtection.Register(fn)
}

func (m *Manager) RegisterProfilingUpdateCb(fn ProfilingUpdateFunc) {
	m.cb.ProfilingUpdate.Register(fn)
}

func (r *Registrations) profile(slot *callback.Slot[ProfileFunc], stream model.StreamType) {
	if fn, ok := slot.Get(); ok {
		fn(stream)
	}
}

func (r *Registrations) profileError(slot *callback.Slot[ProfileErrorFunc], stream model.StreamType, code model.ErrorCode) {
	if fn, ok := slot.Get(); ok {
		fn(stream, code)
	}
}

func (r *Registrations) profilingUpdate(bucket string, d time.Duration) {
	if fn, ok := r.ProfilingUpdate.Get(); ok {
		fn(bucket, d)
	}
}

func (r *Registrations) failure(md *MetaDataEvent, code model.ErrorCode) {
	if fn, ok := r.SetFailure.Get(); ok {
		fn(md, code)
	}
	if fn, ok := r.MetaData.Get(); ok {
		fn(md)
	}
}
