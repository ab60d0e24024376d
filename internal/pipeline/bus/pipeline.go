// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
)

var (
	ErrClosed      = errors.New("bus: closed")
	ErrWatchExists = errors.New("bus: watch already installed")
)

// SyncReply tells Post what to do with a message after the sync handler saw it.
type SyncReply int

const (
	SyncPass SyncReply = iota
	SyncDrop
)

// SyncHandler runs on the posting goroutine before the message is queued.
type SyncHandler func(Message) SyncReply

// WatchFunc handles queued messages on the watch goroutine. Returning false
// removes the watch.
type WatchFunc func(Message) bool

const watchTopic = "watch"

// Pipeline is the bus of one pipeline: at most one sync handler and one watch.
type Pipeline struct {
	name   string
	mem    *MemoryBus
	logger zerolog.Logger

	mu     sync.Mutex
	sync   SyncHandler
	sub    Subscriber
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline returns an empty bus whose watch queue holds buffer messages.
func NewPipeline(name string, buffer int) *Pipeline {
	return &Pipeline{
		name:   name,
		mem:    NewMemoryBus(buffer),
		logger: xglog.WithComponent("pipeline.bus").With().Str(xglog.FieldPipelineID, name).Logger(),
	}
}

// SetSyncHandler installs h, replacing any previous handler. nil removes it.
func (p *Pipeline) SetSyncHandler(h SyncHandler) {
	p.mu.Lock()
	p.sync = h
	p.mu.Unlock()
}

// Post runs the sync handler and, unless it drops the message, queues it for
// the watch. With no watch installed the message is discarded after the sync
// handler. Post blocks while the watch queue is full, until ctx ends.
func (p *Pipeline) Post(ctx context.Context, msg Message) error {
	p.mu.Lock()
	closed, h := p.closed, p.sync
	p.mu.Unlock()
	if closed {
		metrics.IncBusDropReason(string(msg.Kind), "closed")
		return ErrClosed
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if h != nil {
		metrics.IncBusMessage(string(msg.Kind), "sync")
		if h(msg) == SyncDrop {
			return nil
		}
	}
	return p.mem.Publish(ctx, watchTopic, msg)
}

// AddWatch starts the watch goroutine. Only one watch may be installed.
func (p *Pipeline) AddWatch(fn WatchFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.sub != nil {
		return ErrWatchExists
	}
	sub, err := p.mem.Subscribe(context.Background(), watchTopic)
	if err != nil {
		return err
	}
	p.sub = sub
	p.wg.Add(1)
	go p.watch(sub, fn)
	return nil
}

func (p *Pipeline) watch(sub Subscriber, fn WatchFunc) {
	defer p.wg.Done()
	for {
		select {
		case <-sub.Done():
			return
		case msg := <-sub.C():
			metrics.IncBusMessage(string(msg.Kind), "watch")
			if !fn(msg) {
				p.logger.Debug().Str(xglog.FieldEvent, "bus.watch_removed").Msg("watch returned false")
				p.detach(sub)
				return
			}
		}
	}
}

func (p *Pipeline) detach(sub Subscriber) {
	_ = sub.Close()
	p.mu.Lock()
	if p.sub == sub {
		p.sub = nil
	}
	p.mu.Unlock()
}

// RemoveWatch stops the watch and waits for its goroutine. Queued messages are
// discarded. It must not be called from inside the watch function.
func (p *Pipeline) RemoveWatch() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
	p.wg.Wait()
}

// Close removes the watch and the sync handler; later posts fail with ErrClosed.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.sync = nil
	p.mu.Unlock()
	p.RemoveWatch()
}

var _ Poster = (*Pipeline)(nil)
