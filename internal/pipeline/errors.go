// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import "errors"

var (
	ErrNoBackend         = errors.New("pipeline: no graph backend")
	ErrNotCreated        = errors.New("pipeline: not created")
	ErrAlreadyCreated    = errors.New("pipeline: already created")
	ErrNotConfigured     = errors.New("pipeline: not configured")
	ErrAlreadyConfigured = errors.New("pipeline: already configured")
	ErrInvalidStream     = errors.New("pipeline: invalid stream")
	ErrUnsupportedCodec  = errors.New("pipeline: codec not supported on this platform")
	ErrInvalidRate       = errors.New("pipeline: invalid playback rate")
	ErrNoDRM             = errors.New("pipeline: no drm coordinator")
	// ErrTeardownUnsafe means callbacks were still running when the drain
	// deadline passed. The pipeline is left in place; DestroyPipeline may be retried.
	ErrTeardownUnsafe = errors.New("pipeline: teardown unsafe, handlers still running")
)
