// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package decoder maps stream codecs to GStreamer decoder element names and back.
package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vishalkuo/bimap"
)

var (
	ErrDuplicateDecoder = errors.New("decoder: element mapped to two codecs")
	ErrUnknownCodec     = errors.New("decoder: unknown codec")
)

// Codec names as the pipeline receives them from the application.
const (
	CodecH264 = "h264"
	CodecH265 = "h265"
	CodecVP9  = "vp9"
	CodecAV1  = "av1"
	CodecAAC  = "aac"
	CodecAC3  = "ac3"
	CodecEAC3 = "eac3"
	CodecAC4  = "ac4"
	CodecMP3  = "mp3"
	CodecOpus = "opus"
)

var defaults = map[string]string{
	CodecH264: "avdec_h264",
	CodecH265: "avdec_h265",
	CodecVP9:  "vp9dec",
	CodecAV1:  "dav1ddec",
	CodecAAC:  "avdec_aac",
	CodecAC3:  "avdec_ac3",
	CodecEAC3: "avdec_eac3",
	CodecAC4:  "ac4dec",
	CodecMP3:  "mpg123audiodec",
	CodecOpus: "opusdec",
}

// Table is a read-only codec <-> decoder element table.
type Table struct {
	m *bimap.BiMap[string, string]
}

// New builds a table from codec -> decoder pairs. Codec names are matched
// case-insensitively. Two codecs may not share a decoder.
func New(pairs map[string]string) (*Table, error) {
	m := bimap.NewBiMap[string, string]()
	for codec, dec := range pairs {
		codec = normalize(codec)
		if prev, ok := m.GetInverse(dec); ok && prev != codec {
			return nil, fmt.Errorf("%s used by %s and %s: %w", dec, prev, codec, ErrDuplicateDecoder)
		}
		m.Insert(codec, dec)
	}
	m.MakeImmutable()
	return &Table{m: m}, nil
}

// Default returns the stock software decoder table, with overrides applied on top.
func Default(overrides map[string]string) (*Table, error) {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[normalize(k)] = v
	}
	return New(merged)
}

// Decoder returns the decoder element for codec.
func (t *Table) Decoder(codec string) (string, error) {
	dec, ok := t.m.Get(normalize(codec))
	if !ok {
		return "", fmt.Errorf("%q: %w", codec, ErrUnknownCodec)
	}
	return dec, nil
}

// Codec returns the codec a decoder element handles.
func (t *Table) Codec(decoder string) (string, bool) {
	return t.m.GetInverse(decoder)
}

func normalize(codec string) string {
	return strings.ToLower(strings.TrimSpace(codec))
}
