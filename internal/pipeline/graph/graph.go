// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package graph is the port between the pipeline controller and an element
// graph implementation. The controller never touches elements directly; it
// describes the graph it wants and pushes buffers and events into it.
package graph

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/pipeline/bus"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

var (
	ErrNoStream    = errors.New("graph: stream not in graph")
	ErrClosed      = errors.New("graph: closed")
	ErrNoStreams   = errors.New("graph: spec has no streams")
	ErrStateChange = errors.New("graph: state change failed")
)

// StreamSpec describes one elementary stream branch: source, optional
// decryptor, decoder and sink.
type StreamSpec struct {
	Media     model.StreamType
	Codec     string
	Decoder   string
	Protected bool
}

// Spec is everything a backend needs to build one pipeline.
type Spec struct {
	ID        uuid.UUID
	Streams   []StreamSpec
	AudioSink string
	// UseAppSrc selects appsrc injection over a progressive source element.
	UseAppSrc bool
	// SecureVideo routes decrypted video through the secure video path.
	SecureVideo bool
}

// Buffer is one chunk of elementary stream data.
type Buffer struct {
	Data     []byte
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	Discont  bool
	KeyFrame bool
}

// Flow is the result of pushing a buffer.
type Flow int

const (
	FlowOK Flow = iota
	// FlowFlushing means the branch is not accepting data (below PAUSED or mid-flush).
	FlowFlushing
	FlowEOS
	FlowError
)

func (f Flow) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	default:
		return "error"
	}
}

// EventKind identifies an in-band event.
type EventKind int

const (
	EventSegment EventKind = iota
	EventEOS
	EventFlushStart
	EventFlushStop
)

// Event is an in-band event pushed downstream on one branch.
type Event struct {
	Kind  EventKind
	Start time.Duration
	Rate  float64
}

// ProbeFunc observes buffers as they reach a branch's sink pad. It runs on the
// pushing goroutine.
type ProbeFunc func(media model.StreamType, buf Buffer)

// Graph is one built pipeline.
type Graph interface {
	SetState(ctx context.Context, to fsm.State) error
	State() fsm.State
	Push(media model.StreamType, buf Buffer) (Flow, error)
	PushEvent(media model.StreamType, ev Event) error
	SetRate(rate float64) error
	Position() time.Duration
	SetProbe(fn ProbeFunc)
	// Elements lists element names in link order, for diagnostics.
	Elements() []string
	Close() error
}

// Backend builds graphs. Messages from the built graph go to poster.
type Backend interface {
	Build(ctx context.Context, spec Spec, poster bus.Poster) (Graph, error)
}
