// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	pipelineIDKey ctxKey = iota
	correlationIDKey
)

// ContextWithPipelineID tags ctx with the pipeline an operation belongs to.
func ContextWithPipelineID(ctx context.Context, id string) context.Context {
	return withValue(ctx, pipelineIDKey, id)
}

// ContextWithCorrelationID tags ctx with a request or operation correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return withValue(ctx, correlationIDKey, id)
}

func PipelineIDFromContext(ctx context.Context) string    { return stringValue(ctx, pipelineIDKey) }
func CorrelationIDFromContext(ctx context.Context) string { return stringValue(ctx, correlationIDKey) }

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, k, v)
}

func stringValue(ctx context.Context, k ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(k).(string)
	return v
}

// WithContext returns logger with the pipeline and correlation IDs carried by
// ctx. Without either, logger is returned unchanged.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	pid, cid := PipelineIDFromContext(ctx), CorrelationIDFromContext(ctx)
	if pid == "" && cid == "" {
		return logger
	}
	b := logger.With()
	if pid != "" {
		b = b.Str(FieldPipelineID, pid)
	}
	if cid != "" {
		b = b.Str(FieldCorrelationID, cid)
	}
	return b.Logger()
}

// WithComponentFromContext is WithContext over the context logger, tagged
// with component.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := WithContext(ctx, *FromContext(ctx))
	return l.With().Str(FieldComponent, component).Logger()
}

// FromContext returns the logger attached to ctx, falling back to the base
// logger when none is attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	b := Base()
	return &b
}
