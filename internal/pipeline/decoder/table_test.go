// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	tab, err := Default(nil)
	require.NoError(t, err)

	dec, err := tab.Decoder(" H264 ")
	require.NoError(t, err)
	assert.Equal(t, "avdec_h264", dec)

	codec, ok := tab.Codec("ac4dec")
	require.True(t, ok)
	assert.Equal(t, CodecAC4, codec)

	_, err = tab.Decoder("theora")
	require.ErrorIs(t, err, ErrUnknownCodec)
	_, ok = tab.Codec("nosuchdec")
	assert.False(t, ok)
}

func TestOverridesReplaceDefaults(t *testing.T) {
	tab, err := Default(map[string]string{"H264": "v4l2h264dec"})
	require.NoError(t, err)

	dec, err := tab.Decoder(CodecH264)
	require.NoError(t, err)
	assert.Equal(t, "v4l2h264dec", dec)
	_, ok := tab.Codec("avdec_h264")
	assert.False(t, ok)
}

func TestDuplicateDecoderRejected(t *testing.T) {
	_, err := New(map[string]string{"aac": "faad", "mp4a": "faad"})
	require.ErrorIs(t, err, ErrDuplicateDecoder)
}
