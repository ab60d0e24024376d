// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithPipelineID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{name: "nil context", ctx: nil, id: "s-1", want: "s-1"},
		{name: "background context", ctx: context.Background(), id: "s-2", want: "s-2"},
		{name: "empty id", ctx: context.Background(), id: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithPipelineID(tt.ctx, tt.id)
			assert.Equal(t, tt.want, PipelineIDFromContext(ctx))
		})
	}
}

func TestFromContextNilReturnsBase(t *testing.T) {
	assert.Empty(t, PipelineIDFromContext(nil))
	assert.Empty(t, CorrelationIDFromContext(nil))
	require.NotNil(t, FromContext(nil))
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithPipelineID(context.Background(), "pl-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")

	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pl-1", entry[FieldPipelineID])
	assert.Equal(t, "corr-1", entry[FieldCorrelationID])
}

func TestWithContextNoFieldsKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithContext(context.Background(), logger)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, FieldPipelineID)
	assert.NotContains(t, entry, FieldCorrelationID)
}

func TestWithComponentFromContextUsesAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := base.WithContext(ContextWithCorrelationID(context.Background(), "req-7"))

	l := WithComponentFromContext(ctx, "readiness")
	l.Info().Msg("probe")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "readiness", entry[FieldComponent])
	assert.Equal(t, "req-7", entry[FieldCorrelationID])
}

func TestDerive(t *testing.T) {
	l := Derive(func(c *zerolog.Context) {
		*c = c.Str("key", "value")
	})
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}

func TestKeyIDHex(t *testing.T) {
	assert.Equal(t, "<empty>", KeyIDHex(nil))
	assert.Equal(t, "0aff", KeyIDHex([]byte{0x0a, 0xff}))
}
