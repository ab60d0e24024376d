// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package taskpool runs deferred pipeline work on a bounded set of goroutines.
// Each task gets its own goroutine, joined by Close.
package taskpool

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
)

var ErrClosed = errors.New("taskpool: closed")

// Task is one unit of deferred work. ctx is cancelled when Close gives up waiting.
type Task func(ctx context.Context) error

// Pool bounds concurrent tasks. Task errors are logged and never stop the pool.
type Pool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// New returns a pool running at most workers tasks at a time.
func New(name string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		logger: xglog.WithComponent("taskpool").With().Str("pool", name).Logger(),
	}
	p.g.SetLimit(workers)
	return p
}

// Submit schedules t, blocking while the pool is at its limit.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	metrics.TaskPoolQueued.Inc()
	p.g.Go(p.wrap(t))
	return nil
}

// TrySubmit schedules t only if a worker is free. It reports whether t was scheduled.
func (p *Pool) TrySubmit(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	metrics.TaskPoolQueued.Inc()
	if !p.g.TryGo(p.wrap(t)) {
		metrics.TaskPoolQueued.Dec()
		return false
	}
	return true
}

func (p *Pool) wrap(t Task) func() error {
	return func() error {
		defer metrics.TaskPoolQueued.Dec()
		if err := t(p.ctx); err != nil {
			p.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "taskpool.task_failed").
				Msg("deferred task failed")
		}
		return nil
	}
}

// Close stops accepting tasks and waits for running ones. If ctx ends first,
// running tasks are cancelled and still joined before Close returns ctx.Err().
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn().
			Str(xglog.FieldEvent, "taskpool.close_cancelled").
			Msg("tasks cancelled after close deadline")
		return ctx.Err()
	}
}
