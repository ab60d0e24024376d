// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
)

// setState walks the element machine to target one rung at a time. Callers hold opMu.
func (c *Control) setState(ctx context.Context, target fsm.State) error {
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	if m == nil {
		return ErrNotCreated
	}
	if err := fsm.Walk(ctx, m, target); err != nil {
		c.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "pipeline.state_change_failed").
			Str(xglog.FieldOldState, string(m.State())).
			Str(xglog.FieldNewState, string(target)).
			Msg("element state change failed")
		return fmt.Errorf("set state %s: %w", target, err)
	}
	return nil
}

func (c *Control) applyState(ctx context.Context, from, to fsm.State, _ fsm.Event) error {
	c.mu.Lock()
	g := c.graph
	c.mu.Unlock()
	if g == nil {
		return ErrNotConfigured
	}
	c.logger.Debug().
		Str(xglog.FieldEvent, "pipeline.state_step").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("element state step")
	return g.SetState(ctx, to)
}

func (c *Control) requireGraph() (graph.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.created:
		return nil, ErrNotCreated
	case c.graph == nil:
		return nil, ErrNotConfigured
	}
	return c.graph, nil
}

// Play moves the pipeline to PLAYING and resumes subtitles.
func (c *Control) Play(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if _, err := c.requireGraph(); err != nil {
		return err
	}
	if err := c.setState(ctx, fsm.StatePlaying); err != nil {
		return err
	}
	if c.subs != nil {
		_ = c.subs.Pause(false)
	}
	return nil
}

// Pause moves the pipeline to PAUSED and pauses subtitles.
func (c *Control) Pause(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if _, err := c.requireGraph(); err != nil {
		return err
	}
	if err := c.setState(ctx, fsm.StatePaused); err != nil {
		return err
	}
	if c.subs != nil {
		_ = c.subs.Pause(true)
	}
	return nil
}

func validRate(rate float64) bool {
	return rate != 0 && !math.IsNaN(rate) && !math.IsInf(rate, 0)
}

// SetPlaybackRate changes the rate applied to subsequent segments.
func (c *Control) SetPlaybackRate(rate float64) error {
	if !validRate(rate) {
		return fmt.Errorf("rate %v: %w: %w", rate, ErrInvalidRate, model.ErrInvalidArgument)
	}
	g, err := c.requireGraph()
	if err != nil {
		return err
	}
	if err := g.SetRate(rate); err != nil {
		return err
	}
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	return nil
}

// Flush drops queued data on every track and restarts segments at position.
// A negative position anchors the next segments on the first injected buffer.
func (c *Control) Flush(position time.Duration, rate float64) error {
	if !validRate(rate) {
		return fmt.Errorf("rate %v: %w: %w", rate, ErrInvalidRate, model.ErrInvalidArgument)
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	g, err := c.requireGraph()
	if err != nil {
		return err
	}

	c.mu.Lock()
	medias := make([]model.StreamType, 0, len(c.streams))
	for media, st := range c.streams {
		st.flush(position)
		medias = append(medias, media)
	}
	c.rate = rate
	c.mu.Unlock()

	for _, media := range medias {
		if err := g.PushEvent(media, graph.Event{Kind: graph.EventFlushStart}); err != nil {
			return fmt.Errorf("flush start %s: %w", media, err)
		}
		if err := g.PushEvent(media, graph.Event{Kind: graph.EventFlushStop}); err != nil {
			return fmt.Errorf("flush stop %s: %w", media, err)
		}
	}
	if err := g.SetRate(rate); err != nil {
		return err
	}
	if c.subs != nil {
		_ = c.subs.Reset()
	}
	c.logger.Info().
		Str(xglog.FieldEvent, "pipeline.flushed").
		Dur("position", position).
		Float64("rate", rate).
		Msg("pipeline flushed")
	return nil
}

// SetVideoMute forwards the mute state to the subtitle renderer.
func (c *Control) SetVideoMute(muted bool) {
	c.mu.Lock()
	changed := c.videoMuted != muted
	c.videoMuted = muted
	c.mu.Unlock()
	if changed && c.subs != nil {
		_ = c.subs.Mute(muted)
	}
}
