// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "fmt"

// StreamType identifies the elementary stream a session or buffer belongs to.
type StreamType int

const (
	StreamVideo StreamType = iota
	StreamAudio
	StreamSubtitle
	StreamAuxAudio
	StreamIFrame

	streamTypeCount
)

// AllStreamTypes lists the recognised stream types in index order.
var AllStreamTypes = []StreamType{StreamVideo, StreamAudio, StreamSubtitle, StreamAuxAudio, StreamIFrame}

// Valid reports whether t names a recognised stream type.
func (t StreamType) Valid() bool {
	return t >= 0 && t < streamTypeCount
}

func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamSubtitle:
		return "subtitle"
	case StreamAuxAudio:
		return "aux_audio"
	case StreamIFrame:
		return "iframe"
	default:
		return fmt.Sprintf("stream(%d)", int(t))
	}
}
