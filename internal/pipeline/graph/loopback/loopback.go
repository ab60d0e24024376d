// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package loopback is an in-process graph backend. Buffers are accepted and
// counted instead of decoded, which lets the controller and daemon run without
// a GStreamer runtime.
package loopback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/pipeline/bus"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
	"github.com/ManuGH/gstplayer/internal/pipeline/graph"
)

// Backend builds loopback graphs. FailState, when set, makes transitions into
// that state fail.
type Backend struct {
	FailState fsm.State

	mu    sync.Mutex
	built []*Graph
}

func New() *Backend { return &Backend{} }

func (b *Backend) Build(_ context.Context, spec graph.Spec, poster bus.Poster) (graph.Graph, error) {
	if len(spec.Streams) == 0 {
		return nil, graph.ErrNoStreams
	}
	g := &Graph{
		spec:     spec,
		poster:   poster,
		state:    fsm.StateNull,
		rate:     1,
		failInto: b.FailState,
		branches: make(map[model.StreamType]*branch, len(spec.Streams)),
	}
	for _, s := range spec.Streams {
		if _, dup := g.branches[s.Media]; dup {
			return nil, fmt.Errorf("duplicate %s branch", s.Media)
		}
		g.branches[s.Media] = &branch{spec: s}
	}
	b.mu.Lock()
	b.built = append(b.built, g)
	b.mu.Unlock()
	return g, nil
}

// Graphs returns every graph built so far.
func (b *Backend) Graphs() []*Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Graph(nil), b.built...)
}

// Last returns the most recently built graph, or nil.
func (b *Backend) Last() *Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.built) == 0 {
		return nil
	}
	return b.built[len(b.built)-1]
}

type branch struct {
	spec     graph.StreamSpec
	buffers  []graph.Buffer
	events   []graph.Event
	flushing bool
	eos      bool
	lastPTS  time.Duration
	segStart time.Duration
}

// Graph is a loopback pipeline.
type Graph struct {
	spec     graph.Spec
	poster   bus.Poster
	failInto fsm.State

	mu       sync.Mutex
	state    fsm.State
	rate     float64
	closed   bool
	probe    graph.ProbeFunc
	eventErr error
	branches map[model.StreamType]*branch
}

func (g *Graph) post(msg bus.Message) {
	if g.poster == nil {
		return
	}
	msg.Source = "pipeline-" + g.spec.ID.String()
	_ = g.poster.Post(context.Background(), msg)
}

// SetState walks to the requested state one rung at a time, posting a
// state-changed message per rung.
func (g *Graph) SetState(ctx context.Context, to fsm.State) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return graph.ErrClosed
	}
	from := g.state
	g.mu.Unlock()

	steps, err := fsm.Steps(from, to)
	if err != nil {
		return err
	}
	cur := from
	for range steps {
		next := nextRung(cur, to)
		if g.failInto != "" && next == g.failInto {
			err := fmt.Errorf("%s -> %s: %w", cur, next, graph.ErrStateChange)
			g.post(bus.Message{Kind: bus.KindError, Err: err})
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		g.state = next
		if next.Level() < fsm.StatePaused.Level() {
			for _, br := range g.branches {
				br.eos = false
				br.lastPTS = 0
			}
		}
		g.mu.Unlock()
		g.post(bus.Message{Kind: bus.KindStateChanged, OldState: cur, NewState: next})
		cur = next
	}
	if len(steps) > 0 && to == fsm.StatePaused && from.Level() < to.Level() {
		g.post(bus.Message{Kind: bus.KindAsyncDone})
	}
	return nil
}

func nextRung(cur, to fsm.State) fsm.State {
	ladder := []fsm.State{fsm.StateNull, fsm.StateReady, fsm.StatePaused, fsm.StatePlaying}
	if to.Level() > cur.Level() {
		return ladder[cur.Level()]
	}
	return ladder[cur.Level()-2]
}

func (g *Graph) State() fsm.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Graph) Push(media model.StreamType, buf graph.Buffer) (graph.Flow, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return graph.FlowError, graph.ErrClosed
	}
	br, ok := g.branches[media]
	if !ok {
		g.mu.Unlock()
		return graph.FlowError, fmt.Errorf("%s: %w", media, graph.ErrNoStream)
	}
	switch {
	case br.eos:
		g.mu.Unlock()
		return graph.FlowEOS, nil
	case br.flushing || g.state.Level() < fsm.StatePaused.Level():
		g.mu.Unlock()
		return graph.FlowFlushing, nil
	}
	stored := buf
	stored.Data = append([]byte(nil), buf.Data...)
	br.buffers = append(br.buffers, stored)
	if buf.PTS > br.lastPTS {
		br.lastPTS = buf.PTS
	}
	probe := g.probe
	g.mu.Unlock()

	if probe != nil {
		probe(media, buf)
	}
	return graph.FlowOK, nil
}

func (g *Graph) PushEvent(media model.StreamType, ev graph.Event) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return graph.ErrClosed
	}
	if g.eventErr != nil {
		err := g.eventErr
		g.mu.Unlock()
		return err
	}
	br, ok := g.branches[media]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%s: %w", media, graph.ErrNoStream)
	}
	br.events = append(br.events, ev)
	allEOS := false
	switch ev.Kind {
	case graph.EventFlushStart:
		br.flushing = true
	case graph.EventFlushStop:
		br.flushing = false
		br.eos = false
		br.lastPTS = 0
	case graph.EventSegment:
		br.segStart = ev.Start
	case graph.EventEOS:
		br.eos = true
		allEOS = media != model.StreamSubtitle
		for _, other := range g.branches {
			if other.spec.Media != model.StreamSubtitle && !other.eos {
				allEOS = false
			}
		}
	}
	g.mu.Unlock()

	if allEOS {
		g.post(bus.Message{Kind: bus.KindEOS, Media: media})
	}
	return nil
}

func (g *Graph) SetRate(rate float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return graph.ErrClosed
	}
	g.rate = rate
	return nil
}

// Position is the segment start plus the furthest video PTS, or audio when
// there is no video branch.
func (g *Graph) Position() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, media := range []model.StreamType{model.StreamVideo, model.StreamAudio} {
		if br, ok := g.branches[media]; ok {
			if br.lastPTS < br.segStart {
				return br.segStart
			}
			return br.lastPTS
		}
	}
	return 0
}

func (g *Graph) SetProbe(fn graph.ProbeFunc) {
	g.mu.Lock()
	g.probe = fn
	g.mu.Unlock()
}

func (g *Graph) Elements() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, media := range model.AllStreamTypes {
		br, ok := g.branches[media]
		if !ok {
			continue
		}
		src := "appsrc"
		if !g.spec.UseAppSrc {
			src = "souphttpsrc"
		}
		out = append(out, fmt.Sprintf("%s_%s", src, media))
		if br.spec.Protected {
			out = append(out, "decryptor_"+media.String())
		}
		if br.spec.Decoder != "" {
			out = append(out, br.spec.Decoder)
		}
		switch media {
		case model.StreamAudio, model.StreamAuxAudio:
			out = append(out, g.spec.AudioSink)
		case model.StreamSubtitle:
			out = append(out, "subtecsink")
		default:
			out = append(out, "videosink")
		}
	}
	return out
}

func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.probe = nil
	return nil
}

// Buffers returns a copy of the buffers accepted on media.
func (g *Graph) Buffers(media model.StreamType) []graph.Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if br, ok := g.branches[media]; ok {
		return append([]graph.Buffer(nil), br.buffers...)
	}
	return nil
}

// Events returns a copy of the events pushed on media.
func (g *Graph) Events(media model.StreamType) []graph.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	if br, ok := g.branches[media]; ok {
		return append([]graph.Event(nil), br.events...)
	}
	return nil
}

func (g *Graph) Rate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

func (g *Graph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// RejectEvents makes every later PushEvent fail with err, as a source pad
// refusing events would. A nil err accepts events again.
func (g *Graph) RejectEvents(err error) {
	g.mu.Lock()
	g.eventErr = err
	g.mu.Unlock()
}

// Starve reports a buffer underflow on media, as a queue running dry would.
func (g *Graph) Starve(media model.StreamType) {
	g.post(bus.Message{Kind: bus.KindUnderflow, Media: media})
}

// Demux reports protection data found in the stream, as a demuxer would.
func (g *Graph) Demux(media model.StreamType, systemID uuid.UUID, initData []byte) {
	g.post(bus.Message{Kind: bus.KindProtection, Media: media, SystemID: systemID, InitData: append([]byte(nil), initData...)})
}

// Fail posts a fatal error.
func (g *Graph) Fail(err error) {
	g.post(bus.Message{Kind: bus.KindError, Err: err})
}

var _ graph.Backend = (*Backend)(nil)
var _ graph.Graph = (*Graph)(nil)
