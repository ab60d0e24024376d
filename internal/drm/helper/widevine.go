// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// WidevinePsshData field numbers.
const (
	wvFieldKeyID     protowire.Number = 2
	wvFieldContentID protowire.Number = 4
)

// Widevine is the helper for com.widevine.alpha.
type Widevine struct {
	base
}

// NewWidevine returns an unparsed Widevine helper.
func NewWidevine(cfg Config) *Widevine {
	return &Widevine{base: base{cfg: cfg, system: model.SystemWidevine, ocdm: model.OCDMWidevine, codec: "cenc"}}
}

func (w *Widevine) ParsePssh(initData []byte) bool {
	boxes, err := ParsePSSH(initData)
	if err != nil {
		return false
	}
	box, ok := findSystem(boxes, model.WidevineSystemID)
	if !ok {
		return false
	}
	keyIDs := box.KIDs
	if len(keyIDs) == 0 {
		keyIDs = w.keyIDsFromData(box.Data)
	}
	return w.store(initData, keyIDs, "")
}

// keyIDsFromData walks the WidevinePsshData protobuf for key_id entries.
func (w *Widevine) keyIDsFromData(data []byte) [][]byte {
	var keyIDs [][]byte
	var contentID []byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			break
		}
		data = data[n:]
		if typ == protowire.BytesType && (num == wvFieldKeyID || num == wvFieldContentID) {
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				break
			}
			if num == wvFieldKeyID {
				keyIDs = append(keyIDs, bytes.Clone(v))
			} else {
				contentID = bytes.Clone(v)
			}
			data = data[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			break
		}
		data = data[m:]
	}
	if len(keyIDs) == 0 && w.cfg.WidevineKIDWorkaround && len(contentID) > 0 {
		keyIDs = append(keyIDs, contentID)
	}
	return keyIDs
}

func (w *Widevine) GenerateLicenseRequest(challenge cdm.Challenge) LicenseRequest {
	return w.request(challenge, "application/octet-stream")
}

func (w *Widevine) IsHdcp22Required() bool { return false }

// WidevinePsshData encodes a minimal WidevinePsshData message carrying keyIDs.
func WidevinePsshData(keyIDs [][]byte, contentID []byte) []byte {
	var out []byte
	for _, k := range keyIDs {
		out = protowire.AppendTag(out, wvFieldKeyID, protowire.BytesType)
		out = protowire.AppendBytes(out, k)
	}
	if len(contentID) > 0 {
		out = protowire.AppendTag(out, wvFieldContentID, protowire.BytesType)
		out = protowire.AppendBytes(out, contentID)
	}
	return out
}
