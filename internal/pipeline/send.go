// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"time"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
)

func (c *Control) dropped(media model.StreamType) {
	metrics.IncBuffer(media.String(), "dropped")
}

// SendBuffer injects one buffer on media. It returns false without side
// effects when the injection gate is closed, the track is unknown or at EOS,
// or the graph refuses the data. Video H.264 tracks drop buffers until the
// first IDR access unit. A segment event is sent ahead of the buffer when none
// is active.
func (c *Control) SendBuffer(media model.StreamType, data []byte, pts, dts, duration time.Duration) (SendResult, bool) {
	scope := c.gates.appsrc.Acquire()
	defer scope.Release()
	if scope.ShouldAbort() {
		c.dropped(media)
		return SendResult{}, false
	}

	c.mu.Lock()
	g, st, rate := c.graph, c.streams[media], c.rate
	if g == nil || st == nil || st.eosReached {
		c.mu.Unlock()
		c.dropped(media)
		return SendResult{}, false
	}
	res := SendResult{
		FirstBuffer:   !st.firstBufferProcessed,
		Discontinuity: st.pendingSeek || st.bufferUnderrun,
		SegmentNeeded: !st.segmentSent,
	}
	if media == model.StreamVideo {
		res.KeyFrame = isIDR(data)
	}
	if res.FirstBuffer && st.needsKeyFrame() && !res.KeyFrame {
		c.mu.Unlock()
		c.dropped(media)
		c.logger.Debug().
			Str(xglog.FieldEvent, "pipeline.await_keyframe").
			Dur("pts", pts).
			Msg("dropping video until first IDR")
		return res, false
	}
	segStart := st.segmentStart
	if st.resetPosition {
		segStart = pts
	}
	c.mu.Unlock()

	if media == model.StreamSubtitle {
		return c.sendSubtitle(st, res, data, pts)
	}

	if res.SegmentNeeded {
		if err := g.PushEvent(media, graph.Event{Kind: graph.EventSegment, Start: segStart, Rate: rate}); err != nil {
			metrics.IncBuffer(media.String(), "error")
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, "pipeline.segment_failed").Str(xglog.FieldMediaType, media.String()).Msg("segment event rejected")
			return res, false
		}
		c.mu.Lock()
		st.segmentSent = true
		st.segmentStart = segStart
		st.resetPosition = false
		c.mu.Unlock()
	}

	flow, err := g.Push(media, graph.Buffer{
		Data:     data,
		PTS:      pts,
		DTS:      dts,
		Duration: duration,
		Discont:  res.Discontinuity,
		KeyFrame: res.KeyFrame,
	})
	switch flow {
	case graph.FlowOK:
		c.mu.Lock()
		st.firstBufferProcessed = true
		st.pendingSeek = false
		st.bufferUnderrun = false
		st.buffers++
		c.mu.Unlock()
		metrics.IncBuffer(media.String(), "pushed")
		return res, true
	case graph.FlowEOS:
		c.mu.Lock()
		st.eosReached = true
		c.mu.Unlock()
		c.dropped(media)
		return res, false
	case graph.FlowFlushing:
		c.dropped(media)
		return res, false
	default:
		metrics.IncBuffer(media.String(), "error")
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "pipeline.push_failed").
			Str(xglog.FieldMediaType, media.String()).
			Msg("buffer rejected by graph")
		return res, false
	}
}

func (c *Control) sendSubtitle(st *stream, res SendResult, data []byte, pts time.Duration) (SendResult, bool) {
	if c.subs == nil {
		c.dropped(model.StreamSubtitle)
		return res, false
	}
	if err := c.subs.SendData(pts, data); err != nil {
		metrics.IncBuffer(model.StreamSubtitle.String(), "error")
		return res, false
	}
	c.mu.Lock()
	st.firstBufferProcessed = true
	st.pendingSeek = false
	st.segmentSent = true
	st.resetPosition = false
	st.buffers++
	c.mu.Unlock()
	metrics.IncBuffer(model.StreamSubtitle.String(), "pushed")
	return res, true
}

// SendSegmentEvent starts a new segment on media at start.
func (c *Control) SendSegmentEvent(media model.StreamType, start time.Duration, rate float64) bool {
	if !validRate(rate) {
		return false
	}
	ok := false
	c.gates.appsrc.Run(func() {
		c.mu.Lock()
		g, st := c.graph, c.streams[media]
		c.mu.Unlock()
		if g == nil || st == nil {
			return
		}
		if media != model.StreamSubtitle {
			if err := g.PushEvent(media, graph.Event{Kind: graph.EventSegment, Start: start, Rate: rate}); err != nil {
				return
			}
		}
		c.mu.Lock()
		st.segmentSent = true
		st.segmentStart = start
		st.resetPosition = false
		c.mu.Unlock()
		ok = true
	})
	return ok
}

// SendEOS marks the end of data on media.
func (c *Control) SendEOS(media model.StreamType) bool {
	ok := false
	c.gates.appsrc.Run(func() {
		c.mu.Lock()
		g, st := c.graph, c.streams[media]
		if g == nil || st == nil || st.eosReached {
			c.mu.Unlock()
			return
		}
		st.eosReached = true
		c.mu.Unlock()
		if err := g.PushEvent(media, graph.Event{Kind: graph.EventEOS}); err != nil {
			c.mu.Lock()
			st.eosReached = false
			c.mu.Unlock()
			c.logger.Warn().Err(err).Str(xglog.FieldEvent, "pipeline.eos_failed").Str(xglog.FieldMediaType, media.String()).Msg("eos rejected")
			return
		}
		c.logger.Debug().Str(xglog.FieldEvent, "pipeline.eos_sent").Str(xglog.FieldMediaType, media.String()).Msg("eos sent")
		ok = true
	})
	return ok
}
