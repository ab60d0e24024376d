// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/abema/go-mp4"
	"github.com/google/uuid"

	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// PSSH is one decoded protection system specific header box.
type PSSH struct {
	Version  uint8
	SystemID uuid.UUID
	KIDs     [][]byte
	Data     []byte
}

// ParsePSSH decodes every pssh box found at the top level of initData.
func ParsePSSH(initData []byte) ([]PSSH, error) {
	if len(initData) == 0 {
		return nil, fmt.Errorf("empty init data: %w", model.ErrCorruptMetadata)
	}
	found, err := mp4.ExtractBoxWithPayload(bytes.NewReader(initData), nil, mp4.BoxPath{mp4.BoxTypePssh()})
	if err != nil {
		return nil, fmt.Errorf("read pssh boxes: %w: %w", model.ErrCorruptMetadata, err)
	}
	out := make([]PSSH, 0, len(found))
	for _, bip := range found {
		p, ok := bip.Payload.(*mp4.Pssh)
		if !ok {
			continue
		}
		box := PSSH{
			Version:  p.Version,
			SystemID: uuid.UUID(p.SystemID),
			Data:     bytes.Clone(p.Data),
		}
		for _, k := range p.KIDs {
			box.KIDs = append(box.KIDs, bytes.Clone(k.KID[:]))
		}
		out = append(out, box)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pssh box in %d bytes: %w", len(initData), model.ErrCorruptMetadata)
	}
	return out, nil
}

// BuildPSSH encodes a pssh box. Version 1 is used when kids is non-empty.
func BuildPSSH(systemID uuid.UUID, kids [][]byte, data []byte) []byte {
	version := uint8(0)
	if len(kids) > 0 {
		version = 1
	}
	size := 8 + 4 + 16 + 4 + len(data)
	if version == 1 {
		size += 4 + 16*len(kids)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(size))
	buf = append(buf, 'p', 's', 's', 'h')
	buf = append(buf, version, 0, 0, 0)
	buf = append(buf, systemID[:]...)
	if version == 1 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(kids)))
		for _, k := range kids {
			var kid [16]byte
			copy(kid[:], k)
			buf = append(buf, kid[:]...)
		}
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	return buf
}

// findSystem returns the first box for systemID.
func findSystem(boxes []PSSH, ids ...uuid.UUID) (PSSH, bool) {
	for _, b := range boxes {
		for _, id := range ids {
			if b.SystemID == id {
				return b, true
			}
		}
	}
	return PSSH{}, false
}
