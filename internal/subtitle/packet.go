// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package subtitle frames subtitle data and control packets for an external
// renderer. Every packet is a 12 byte little-endian header (type, counter,
// payload size) followed by the payload.
package subtitle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// PacketType identifies a packet on the channel.
type PacketType uint32

const (
	PacketData PacketType = iota + 1
	PacketTimestamp
	PacketMute
	PacketUnmute
	PacketPause
	PacketResume
	PacketReset
	PacketTTMLSelection
	PacketWebVTTSelection
)

func (t PacketType) String() string {
	switch t {
	case PacketData:
		return "data"
	case PacketTimestamp:
		return "timestamp"
	case PacketMute:
		return "mute"
	case PacketUnmute:
		return "unmute"
	case PacketPause:
		return "pause"
	case PacketResume:
		return "resume"
	case PacketReset:
		return "reset"
	case PacketTTMLSelection:
		return "ttml_selection"
	case PacketWebVTTSelection:
		return "webvtt_selection"
	}
	return fmt.Sprintf("packet(%d)", uint32(t))
}

const headerSize = 12

// MaxPayload bounds a single packet payload.
const MaxPayload = 4 << 20

var (
	ErrPayloadTooLarge = errors.New("subtitle: payload too large")
	ErrShortPayload    = errors.New("subtitle: payload shorter than its type requires")
)

// Packet is one decoded packet.
type Packet struct {
	Type    PacketType
	Counter uint32
	Payload []byte
}

// PTS returns the presentation time carried by data and timestamp packets.
func (p Packet) PTS() (time.Duration, error) {
	if p.Type != PacketData && p.Type != PacketTimestamp {
		return 0, fmt.Errorf("%s packet has no timestamp", p.Type)
	}
	if len(p.Payload) < 8 {
		return 0, ErrShortPayload
	}
	return time.Duration(int64(binary.LittleEndian.Uint64(p.Payload))) * time.Millisecond, nil
}

// Body returns the cue bytes of a data packet.
func (p Packet) Body() []byte {
	if p.Type != PacketData || len(p.Payload) < 8 {
		return nil
	}
	return p.Payload[8:]
}

// Dimensions returns the display size carried by selection packets.
func (p Packet) Dimensions() (width, height uint32, err error) {
	if p.Type != PacketTTMLSelection && p.Type != PacketWebVTTSelection {
		return 0, 0, fmt.Errorf("%s packet has no dimensions", p.Type)
	}
	if len(p.Payload) < 8 {
		return 0, 0, ErrShortPayload
	}
	return binary.LittleEndian.Uint32(p.Payload), binary.LittleEndian.Uint32(p.Payload[4:]), nil
}

func (p Packet) marshal() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%d bytes: %w", len(p.Payload), ErrPayloadTooLarge)
	}
	out := make([]byte, headerSize+len(p.Payload))
	binary.LittleEndian.PutUint32(out[0:], uint32(p.Type))
	binary.LittleEndian.PutUint32(out[4:], p.Counter)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(p.Payload)))
	copy(out[headerSize:], p.Payload)
	return out, nil
}

// ReadPacket decodes the next packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Packet{}, err
	}
	size := binary.LittleEndian.Uint32(hdr[8:])
	if size > MaxPayload {
		return Packet{}, fmt.Errorf("%d bytes: %w", size, ErrPayloadTooLarge)
	}
	p := Packet{
		Type:    PacketType(binary.LittleEndian.Uint32(hdr[0:])),
		Counter: binary.LittleEndian.Uint32(hdr[4:]),
		Payload: make([]byte, size),
	}
	if _, err := io.ReadFull(r, p.Payload); err != nil {
		return Packet{}, fmt.Errorf("read %s payload: %w", p.Type, err)
	}
	return p, nil
}
