// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/pipeline"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

// logEvents reports player notifications to the log. The daemon has no
// application above it to forward them to.
type logEvents struct {
	logger zerolog.Logger
}

func (e logEvents) OnStateChanged(old, new fsm.State) {
	e.logger.Info().Str(xglog.FieldEvent, "player.state").Str(xglog.FieldOldState, string(old)).Str(xglog.FieldNewState, string(new)).Msg("player state")
}

func (e logEvents) OnEOS() {
	e.logger.Info().Str(xglog.FieldEvent, "player.eos").Msg("end of stream")
}

func (e logEvents) OnError(err error) {
	e.logger.Error().Err(err).Str(xglog.FieldEvent, "player.error").Msg("playback error")
}

func (e logEvents) OnFirstFrame(media model.StreamType) {
	e.logger.Info().Str(xglog.FieldEvent, "player.first_frame").Str(xglog.FieldMediaType, media.String()).Msg("first frame")
}

func (e logEvents) OnBufferUnderflow(media model.StreamType) {
	e.logger.Warn().Str(xglog.FieldEvent, "player.underflow").Str(xglog.FieldMediaType, media.String()).Msg("buffer underflow")
}

func (e logEvents) OnPosition(pos time.Duration) {
	e.logger.Trace().Str(xglog.FieldEvent, "player.position").Dur("position", pos).Msg("position")
}

func (e logEvents) OnIndividualization(payload string) {
	e.logger.Info().Str(xglog.FieldEvent, "player.individualization").Int("payload_bytes", len(payload)).Msg("individualization requested")
}

func (e logEvents) OnLicenseRenewal(system model.DrmSystem, _ any) {
	e.logger.Info().Str(xglog.FieldEvent, "player.license_renewal").Str(xglog.FieldDrmSystem, string(system)).Msg("license renewal requested")
}

var _ pipeline.Events = logEvents{}
