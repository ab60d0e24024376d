// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"bytes"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/drm/session"
	"github.com/ManuGH/gstplayer/internal/pipeline/decoder"
)

// StreamFormat describes one track the application will inject.
type StreamFormat struct {
	Media     model.StreamType
	Codec     string
	Protected bool
}

// SendResult carries the per-buffer flags of SendBuffer.
type SendResult struct {
	// Discontinuity is set on the first buffer after configure, a flush or an underflow.
	Discontinuity bool
	FirstBuffer   bool
	// SegmentNeeded reports that no segment was active, so one was sent ahead of this buffer.
	SegmentNeeded bool
	// KeyFrame is set for video buffers holding an IDR access unit.
	KeyFrame bool
}

// StreamStatus is a read-only view of one track's bookkeeping.
type StreamStatus struct {
	Media                string        `json:"media"`
	Codec                string        `json:"codec"`
	Protected            bool          `json:"protected"`
	PendingSeek          bool          `json:"pendingSeek"`
	EOSReached           bool          `json:"eosReached"`
	FirstBufferProcessed bool          `json:"firstBufferProcessed"`
	SegmentStart         time.Duration `json:"segmentStart"`
	BufferUnderrun       bool          `json:"bufferUnderrun"`
	ResetPosition        bool          `json:"resetPosition"`
	Buffers              uint64        `json:"buffers"`
	ProtectionEvents     int           `json:"protectionEvents"`
	DrmKeyState          string        `json:"drmKeyState,omitempty"`
}

type stream struct {
	format StreamFormat

	pendingSeek          bool
	eosReached           bool
	firstBufferProcessed bool
	segmentSent          bool
	segmentStart         time.Duration
	resetPosition        bool
	bufferUnderrun       bool
	buffers              uint64

	queued             int
	firstFrameReported bool

	lastInitData     []byte
	protectionEvents int
	drm              *session.Handle
}

func newStream(f StreamFormat) *stream {
	return &stream{format: f, pendingSeek: true, resetPosition: true}
}

// flush resets per-segment state. A negative position keeps the next segment
// anchored on the first buffer's timestamp.
func (s *stream) flush(position time.Duration) {
	s.pendingSeek = true
	s.eosReached = false
	s.firstBufferProcessed = false
	s.segmentSent = false
	s.bufferUnderrun = false
	s.queued = 0
	if position < 0 {
		s.resetPosition = true
		s.segmentStart = 0
		return
	}
	s.resetPosition = false
	s.segmentStart = position
}

func (s *stream) status() StreamStatus {
	st := StreamStatus{
		Media:                s.format.Media.String(),
		Codec:                s.format.Codec,
		Protected:            s.format.Protected,
		PendingSeek:          s.pendingSeek,
		EOSReached:           s.eosReached,
		FirstBufferProcessed: s.firstBufferProcessed,
		SegmentStart:         s.segmentStart,
		BufferUnderrun:       s.bufferUnderrun,
		ResetPosition:        s.resetPosition,
		Buffers:              s.buffers,
		ProtectionEvents:     s.protectionEvents,
	}
	if s.drm != nil {
		st.DrmKeyState = s.drm.State().String()
	}
	return st
}

func (s *stream) needsKeyFrame() bool {
	return s.format.Media == model.StreamVideo && s.format.Codec == decoder.CodecH264
}

func (s *stream) sameInitData(initData []byte) bool {
	return s.lastInitData != nil && bytes.Equal(s.lastInitData, initData)
}

// isIDR reports whether an Annex B buffer carries an IDR slice.
func isIDR(data []byte) bool {
	var au h264.AnnexB
	if au.Unmarshal(data) != nil {
		return false
	}
	return h264.IsRandomAccess(au)
}
