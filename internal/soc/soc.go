// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package soc answers platform capability queries for the pipeline and the
// DRM coordinator. Answers are pure reads; nothing here mutates hardware state.
package soc

import (
	"strings"

	"github.com/ManuGH/gstplayer/internal/config"
	"github.com/ManuGH/gstplayer/internal/drm/session"
)

// Capabilities is the query surface the pipeline consumes.
type Capabilities interface {
	Platform() string
	UseAppSrcForProgressive() bool
	SupportsAC4() bool
	RequiredQueuedFrames() int
	HasSecureVideoPath() bool
	SupportsHDCP22() bool
	AudioSinkName() string
	// DecoderOverrides maps codecs to platform decoder elements.
	DecoderOverrides() map[string]string
}

// Static answers from configuration.
type Static struct {
	cfg config.SoCConfig
}

// NewStatic returns a provider over cfg. An empty audio sink falls back to autoaudiosink.
func NewStatic(cfg config.SoCConfig) *Static {
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	if cfg.Platform == "" {
		cfg.Platform = "generic"
	}
	if cfg.AudioSinkName == "" {
		cfg.AudioSinkName = "autoaudiosink"
	}
	return &Static{cfg: cfg}
}

func (s *Static) Platform() string              { return s.cfg.Platform }
func (s *Static) UseAppSrcForProgressive() bool { return s.cfg.UseAppSrcForProgressive }
func (s *Static) SupportsAC4() bool             { return s.cfg.SupportsAC4 }
func (s *Static) HasSecureVideoPath() bool      { return s.cfg.HasSecureVideoPath }
func (s *Static) SupportsHDCP22() bool          { return s.cfg.SupportsHDCP22 }
func (s *Static) AudioSinkName() string         { return s.cfg.AudioSinkName }

// RequiredQueuedFrames is the number of video frames that must be queued
// before first-frame is reported. Never less than one.
func (s *Static) RequiredQueuedFrames() int {
	if s.cfg.RequiredQueuedFrames < 1 {
		return 1
	}
	return s.cfg.RequiredQueuedFrames
}

var platformDecoders = map[string]map[string]string{
	"broadcom": {"h264": "brcmvideodecoder", "h265": "brcmvideodecoder_h265", "aac": "brcmaudiodecoder"},
	"realtek":  {"h264": "omxh264dec", "h265": "omxh265dec", "vp9": "omxvp9dec"},
}

func (s *Static) DecoderOverrides() map[string]string {
	src := platformDecoders[s.cfg.Platform]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

var (
	_ Capabilities             = (*Static)(nil)
	_ session.OutputProtection = (*Static)(nil)
)
