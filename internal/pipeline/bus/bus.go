// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus carries pipeline messages from elements to the controller, in
// the manner of a GStreamer bus: a synchronous handler runs on the posting
// goroutine and a single asynchronous watch drains a buffered queue.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/model"
	"github.com/ManuGH/gstplayer/internal/pipeline/fsm"
)

// Kind classifies a bus message.
type Kind string

const (
	KindStateChanged Kind = "state_changed"
	KindEOS          Kind = "eos"
	KindError        Kind = "error"
	KindWarning      Kind = "warning"
	KindBuffering    Kind = "buffering"
	KindAsyncDone    Kind = "async_done"
	// KindProtection carries DRM init data found by a demuxer.
	KindProtection Kind = "protection"
	KindUnderflow  Kind = "underflow"
)

// Message is one bus message. Fields beyond Kind and Source are set per kind.
type Message struct {
	Kind      Kind
	Source    string
	Timestamp time.Time

	OldState fsm.State
	NewState fsm.State
	Err      error
	Percent  int
	Media    model.StreamType
	SystemID uuid.UUID
	InitData []byte
}

// Subscriber receives messages for one topic until closed.
type Subscriber interface {
	C() <-chan Message
	// Done is closed by Close; readers select on it instead of waiting for C to close.
	Done() <-chan struct{}
	Close() error
}

// Bus is topic based publish/subscribe.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Poster is what elements need to report to their pipeline.
type Poster interface {
	Post(ctx context.Context, msg Message) error
}
