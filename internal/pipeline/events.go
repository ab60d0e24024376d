// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"time"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

// Events receives pipeline notifications. Methods run on bus, timer or task
// goroutines, never on the caller's goroutine, and must not call
// DestroyPipeline synchronously.
type Events interface {
	OnStateChanged(old, new fsm.State)
	OnEOS()
	OnError(err error)
	OnFirstFrame(media model.StreamType)
	OnBufferUnderflow(media model.StreamType)
	OnPosition(pos time.Duration)
	OnIndividualization(payload string)
	OnLicenseRenewal(system model.DrmSystem, userData any)
}

// NopEvents ignores every notification. Embed it to implement a subset.
type NopEvents struct{}

func (NopEvents) OnStateChanged(fsm.State, fsm.State)   {}
func (NopEvents) OnEOS()                                {}
func (NopEvents) OnError(error)                         {}
func (NopEvents) OnFirstFrame(model.StreamType)         {}
func (NopEvents) OnBufferUnderflow(model.StreamType)    {}
func (NopEvents) OnPosition(time.Duration)              {}
func (NopEvents) OnIndividualization(string)            {}
func (NopEvents) OnLicenseRenewal(model.DrmSystem, any) {}

var _ Events = NopEvents{}
