// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"time"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
	"github.com/ManuGH/gstplayer/internal/pipeline/bus"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
)

// onBusSync runs on the posting goroutine. Errors are recorded before the
// watch sees them; protection messages are consumed here and handed to the
// task pool. Everything is dropped once the gate is closed.
func (c *Control) onBusSync(msg bus.Message) bus.SyncReply {
	scope := c.gates.busSync.Acquire()
	defer scope.Release()
	if scope.ShouldAbort() {
		return bus.SyncDrop
	}

	switch msg.Kind {
	case bus.KindError:
		c.mu.Lock()
		c.lastErr = msg.Err
		c.mu.Unlock()
	case bus.KindProtection:
		if !c.scheduleProtection(msg.Media, msg.SystemID, msg.InitData) {
			c.logger.Warn().
				Str(xglog.FieldEvent, "pipeline.protection_dropped").
				Str(xglog.FieldMediaType, msg.Media.String()).
				Msg("protection event not scheduled")
		}
		return bus.SyncDrop
	}
	return bus.SyncPass
}

// onBusWatch runs on the bus watch goroutine.
func (c *Control) onBusWatch(msg bus.Message) bool {
	scope := c.gates.busWatch.Acquire()
	defer scope.Release()
	if scope.ShouldAbort() {
		return true
	}

	switch msg.Kind {
	case bus.KindStateChanged:
		c.mu.Lock()
		c.busState = msg.NewState
		c.mu.Unlock()
		metrics.IncStateTransition(string(msg.OldState), string(msg.NewState))
		c.logger.Debug().
			Str(xglog.FieldEvent, "pipeline.state_changed").
			Str(xglog.FieldElement, msg.Source).
			Str(xglog.FieldOldState, string(msg.OldState)).
			Str(xglog.FieldNewState, string(msg.NewState)).
			Msg("state changed")
		c.events.OnStateChanged(msg.OldState, msg.NewState)
	case bus.KindEOS:
		c.logger.Info().Str(xglog.FieldEvent, "pipeline.eos").Msg("end of stream")
		c.events.OnEOS()
	case bus.KindError:
		c.logger.Error().
			Err(msg.Err).
			Str(xglog.FieldEvent, "pipeline.error").
			Str(xglog.FieldElement, msg.Source).
			Msg("pipeline error")
		c.events.OnError(msg.Err)
	case bus.KindWarning:
		c.logger.Warn().Err(msg.Err).Str(xglog.FieldEvent, "pipeline.warning").Str(xglog.FieldElement, msg.Source).Msg("pipeline warning")
	case bus.KindUnderflow:
		c.mu.Lock()
		if st := c.streams[msg.Media]; st != nil {
			st.bufferUnderrun = true
		}
		c.mu.Unlock()
		metrics.PipelineUnderflowsTotal.WithLabelValues(msg.Media.String()).Inc()
		c.logger.Warn().
			Str(xglog.FieldEvent, "pipeline.underflow").
			Str(xglog.FieldMediaType, msg.Media.String()).
			Msg("buffer underflow")
		c.events.OnBufferUnderflow(msg.Media)
	case bus.KindBuffering:
		c.logger.Debug().Str(xglog.FieldEvent, "pipeline.buffering").Int("percent", msg.Percent).Msg("buffering")
	case bus.KindAsyncDone:
		c.logger.Debug().Str(xglog.FieldEvent, "pipeline.async_done").Msg("preroll complete")
	}
	return true
}

// onPadProbe runs on the pushing goroutine for every buffer reaching a sink.
// First frame is reported once enough video frames are queued.
func (c *Control) onPadProbe(media model.StreamType, _ graph.Buffer) {
	scope := c.gates.probe.Acquire()
	defer scope.Release()
	if scope.ShouldAbort() {
		return
	}

	c.mu.Lock()
	st := c.streams[media]
	if st == nil {
		c.mu.Unlock()
		return
	}
	st.queued++
	fire := media == model.StreamVideo && !st.firstFrameReported && st.queued >= c.soc.RequiredQueuedFrames()
	if fire {
		st.firstFrameReported = true
	}
	c.mu.Unlock()

	if fire {
		c.runIdle(func(context.Context) error {
			c.logger.Info().Str(xglog.FieldEvent, "pipeline.first_frame").Msg("first video frame queued")
			c.events.OnFirstFrame(media)
			return nil
		})
	}
}

// runIdle queues fn on the task pool under the idle gate. The gate instance is
// held from scheduling until fn returns, so draining the gate also drains the queue.
func (c *Control) runIdle(fn func(ctx context.Context) error) bool {
	scope := c.gates.idle.Acquire()
	if scope.ShouldAbort() {
		scope.Release()
		return false
	}
	owned := scope.Move()

	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool == nil {
		owned.Release()
		return false
	}
	err := pool.Submit(func(ctx context.Context) error {
		defer owned.Release()
		if owned.ShouldAbort() {
			return nil
		}
		return fn(ctx)
	})
	if err != nil {
		owned.Release()
		return false
	}
	return true
}

func (c *Control) runPositionTimer(stop, done chan struct{}, interval time.Duration) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.gates.timer.Run(c.onPositionTick)
		}
	}
}

func (c *Control) onPositionTick() {
	c.mu.Lock()
	g, state := c.graph, c.busState
	c.mu.Unlock()
	if g == nil || state != fsm.StatePlaying {
		return
	}
	pos := g.Position()
	if c.subs != nil {
		_ = c.subs.SendTimestamp(pos)
	}
	c.events.OnPosition(pos)
}
