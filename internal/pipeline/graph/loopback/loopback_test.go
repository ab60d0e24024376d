// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/pipeline/bus"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
)

type recorder struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (r *recorder) Post(_ context.Context, m bus.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) kinds() []bus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Kind, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func build(t *testing.T, rec *recorder, streams ...graph.StreamSpec) *Graph {
	t.Helper()
	g, err := New().Build(context.Background(), graph.Spec{
		ID:        uuid.New(),
		Streams:   streams,
		AudioSink: "autoaudiosink",
		UseAppSrc: true,
	}, rec)
	require.NoError(t, err)
	return g.(*Graph)
}

func TestBuildRejectsEmptyAndDuplicate(t *testing.T) {
	_, err := New().Build(context.Background(), graph.Spec{}, nil)
	require.ErrorIs(t, err, graph.ErrNoStreams)

	_, err = New().Build(context.Background(), graph.Spec{Streams: []graph.StreamSpec{
		{Media: model.StreamVideo}, {Media: model.StreamVideo},
	}}, nil)
	require.Error(t, err)
}

func TestStateWalkPostsEachRung(t *testing.T) {
	rec := &recorder{}
	g := build(t, rec, graph.StreamSpec{Media: model.StreamVideo, Decoder: "avdec_h264"})

	require.NoError(t, g.SetState(context.Background(), fsm.StatePaused))
	assert.Equal(t, fsm.StatePaused, g.State())
	assert.Equal(t, []bus.Kind{bus.KindStateChanged, bus.KindStateChanged, bus.KindAsyncDone}, rec.kinds())

	require.NoError(t, g.SetState(context.Background(), fsm.StateNull))
	assert.Equal(t, fsm.StateNull, g.State())
	rec.mu.Lock()
	last := rec.msgs[len(rec.msgs)-1]
	rec.mu.Unlock()
	assert.Equal(t, fsm.StateReady, last.OldState)
	assert.Equal(t, fsm.StateNull, last.NewState)
}

func TestFailState(t *testing.T) {
	rec := &recorder{}
	b := New()
	b.FailState = fsm.StatePlaying
	gg, err := b.Build(context.Background(), graph.Spec{Streams: []graph.StreamSpec{{Media: model.StreamAudio}}}, rec)
	require.NoError(t, err)

	err = gg.SetState(context.Background(), fsm.StatePlaying)
	require.ErrorIs(t, err, graph.ErrStateChange)
	assert.Equal(t, fsm.StatePaused, gg.State())
	assert.Contains(t, rec.kinds(), bus.KindError)
}

func TestPushFlowAndProbe(t *testing.T) {
	rec := &recorder{}
	g := build(t, rec,
		graph.StreamSpec{Media: model.StreamVideo},
		graph.StreamSpec{Media: model.StreamAudio},
	)

	flow, err := g.Push(model.StreamVideo, graph.Buffer{Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, graph.FlowFlushing, flow)

	_, err = g.Push(model.StreamSubtitle, graph.Buffer{})
	require.ErrorIs(t, err, graph.ErrNoStream)

	var probed []time.Duration
	g.SetProbe(func(media model.StreamType, buf graph.Buffer) { probed = append(probed, buf.PTS) })
	require.NoError(t, g.SetState(context.Background(), fsm.StatePlaying))

	flow, err = g.Push(model.StreamVideo, graph.Buffer{Data: []byte{1}, PTS: 40 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, graph.FlowOK, flow)
	assert.Equal(t, []time.Duration{40 * time.Millisecond}, probed)
	assert.Equal(t, 40*time.Millisecond, g.Position())

	require.NoError(t, g.PushEvent(model.StreamVideo, graph.Event{Kind: graph.EventFlushStart}))
	flow, _ = g.Push(model.StreamVideo, graph.Buffer{})
	assert.Equal(t, graph.FlowFlushing, flow)
	require.NoError(t, g.PushEvent(model.StreamVideo, graph.Event{Kind: graph.EventFlushStop}))
	require.NoError(t, g.PushEvent(model.StreamVideo, graph.Event{Kind: graph.EventSegment, Start: 5 * time.Second}))
	assert.Equal(t, 5*time.Second, g.Position())
}

func TestEOSPostedOnceAllBranchesDone(t *testing.T) {
	rec := &recorder{}
	g := build(t, rec,
		graph.StreamSpec{Media: model.StreamVideo},
		graph.StreamSpec{Media: model.StreamAudio},
		graph.StreamSpec{Media: model.StreamSubtitle},
	)
	require.NoError(t, g.SetState(context.Background(), fsm.StatePaused))

	require.NoError(t, g.PushEvent(model.StreamVideo, graph.Event{Kind: graph.EventEOS}))
	assert.NotContains(t, rec.kinds(), bus.KindEOS)
	flow, _ := g.Push(model.StreamVideo, graph.Buffer{})
	assert.Equal(t, graph.FlowEOS, flow)

	require.NoError(t, g.PushEvent(model.StreamAudio, graph.Event{Kind: graph.EventEOS}))
	assert.Contains(t, rec.kinds(), bus.KindEOS)
}

func TestElementsAndClose(t *testing.T) {
	g := build(t, &recorder{},
		graph.StreamSpec{Media: model.StreamVideo, Decoder: "avdec_h264", Protected: true},
		graph.StreamSpec{Media: model.StreamAudio, Decoder: "avdec_aac"},
	)
	assert.Equal(t, []string{
		"appsrc_video", "decryptor_video", "avdec_h264", "videosink",
		"appsrc_audio", "avdec_aac", "autoaudiosink",
	}, g.Elements())

	require.NoError(t, g.Close())
	assert.True(t, g.Closed())
	require.ErrorIs(t, g.SetState(context.Background(), fsm.StatePaused), graph.ErrClosed)
	_, err := g.Push(model.StreamVideo, graph.Buffer{})
	require.ErrorIs(t, err, graph.ErrClosed)
}

func TestInjectedBusMessages(t *testing.T) {
	rec := &recorder{}
	g := build(t, rec, graph.StreamSpec{Media: model.StreamVideo})

	g.Starve(model.StreamVideo)
	g.Demux(model.StreamVideo, model.WidevineSystemID, []byte{1, 2, 3})
	g.Fail(assert.AnError)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.msgs, 3)
	assert.Equal(t, bus.KindUnderflow, rec.msgs[0].Kind)
	assert.Equal(t, bus.KindProtection, rec.msgs[1].Kind)
	assert.Equal(t, model.WidevineSystemID, rec.msgs[1].SystemID)
	assert.Equal(t, []byte{1, 2, 3}, rec.msgs[1].InitData)
	assert.ErrorIs(t, rec.msgs[2].Err, assert.AnError)
	assert.Contains(t, rec.msgs[2].Source, "pipeline-")
}
