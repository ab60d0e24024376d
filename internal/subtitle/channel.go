// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package subtitle

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/gstplayer/internal/log"
)

// Sink is the surface the pipeline pushes subtitle traffic into.
type Sink interface {
	SendData(pts time.Duration, cue []byte) error
	SendTimestamp(position time.Duration) error
	Mute(muted bool) error
	Pause(paused bool) error
	Reset() error
}

// Channel writes framed packets to w. Counters start at 1 and increase by one
// per packet. Writes are serialized.
type Channel struct {
	mu      sync.Mutex
	w       io.Writer
	counter uint32
	logger  zerolog.Logger
}

func NewChannel(w io.Writer) *Channel {
	return &Channel{w: w, logger: xglog.WithComponent("subtitle")}
}

func (c *Channel) send(t PacketType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := Packet{Type: t, Counter: c.counter + 1, Payload: payload}
	buf, err := p.marshal()
	if err != nil {
		return err
	}
	if _, err := c.w.Write(buf); err != nil {
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "subtitle.write_failed").
			Str("packet", t.String()).
			Msg("subtitle packet not delivered")
		return fmt.Errorf("write %s packet: %w", t, err)
	}
	c.counter = p.Counter
	return nil
}

func ptsPayload(pts time.Duration, extra int) []byte {
	b := make([]byte, 8, 8+extra)
	binary.LittleEndian.PutUint64(b, uint64(pts.Milliseconds()))
	return b
}

// SendData frames one cue with its presentation time.
func (c *Channel) SendData(pts time.Duration, cue []byte) error {
	return c.send(PacketData, append(ptsPayload(pts, len(cue)), cue...))
}

// SendTimestamp reports the current playback position to the renderer.
func (c *Channel) SendTimestamp(position time.Duration) error {
	return c.send(PacketTimestamp, ptsPayload(position, 0))
}

func (c *Channel) Mute(muted bool) error {
	if muted {
		return c.send(PacketMute, nil)
	}
	return c.send(PacketUnmute, nil)
}

func (c *Channel) Pause(paused bool) error {
	if paused {
		return c.send(PacketPause, nil)
	}
	return c.send(PacketResume, nil)
}

// Reset tells the renderer to drop every queued cue, as after a flush.
func (c *Channel) Reset() error { return c.send(PacketReset, nil) }

func (c *Channel) SelectTTML(width, height uint32) error {
	return c.send(PacketTTMLSelection, dims(width, height))
}

func (c *Channel) SelectWebVTT(width, height uint32) error {
	return c.send(PacketWebVTTSelection, dims(width, height))
}

func dims(w, h uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, w)
	binary.LittleEndian.PutUint32(b[4:], h)
	return b
}

var _ Sink = (*Channel)(nil)
