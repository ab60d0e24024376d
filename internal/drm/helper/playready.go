// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

const (
	prRecordRightsManagementHeader = 1
	prSOAPAction                   = "http://schemas.microsoft.com/DRM/2007/03/protocols/AcquireLicense"
)

var errNoRightsHeader = errors.New("playready object has no rights management header")

// wrmHeader covers header versions 4.0 (DATA/KID text) through 4.3 (DATA/PROTECTINFO/KIDS/KID@VALUE).
type wrmHeader struct {
	XMLName xml.Name `xml:"WRMHEADER"`
	Version string   `xml:"version,attr"`
	Data    struct {
		KID         string `xml:"KID"`
		LAURL       string `xml:"LA_URL"`
		ProtectInfo struct {
			KID struct {
				Value string `xml:"VALUE,attr"`
			} `xml:"KID"`
			KIDs []struct {
				Value string `xml:"VALUE,attr"`
			} `xml:"KIDS>KID"`
		} `xml:"PROTECTINFO"`
		KIDs []struct {
			Value string `xml:"VALUE,attr"`
		} `xml:"KIDS>KID"`
	} `xml:"DATA"`
}

// PlayReady is the helper for com.microsoft.playready.
type PlayReady struct {
	base
}

// NewPlayReady returns an unparsed PlayReady helper.
func NewPlayReady(cfg Config) *PlayReady {
	return &PlayReady{base: base{cfg: cfg, system: model.SystemPlayReady, ocdm: model.OCDMPlayReady, codec: "cenc"}}
}

func (p *PlayReady) ParsePssh(initData []byte) bool {
	boxes, err := ParsePSSH(initData)
	if err != nil {
		return false
	}
	box, ok := findSystem(boxes, model.PlayReadySystemID)
	if !ok {
		return false
	}
	hdr, err := parsePlayReadyObject(box.Data)
	if err != nil {
		if len(box.KIDs) > 0 {
			return p.store(initData, box.KIDs, "")
		}
		return false
	}
	keyIDs := box.KIDs
	if len(keyIDs) == 0 {
		keyIDs = hdr.keyIDs()
	}
	return p.store(initData, keyIDs, strings.TrimSpace(hdr.Data.LAURL))
}

func (p *PlayReady) GenerateLicenseRequest(challenge cdm.Challenge) LicenseRequest {
	req := p.request(challenge, "text/xml; charset=utf-8")
	req.Headers.Set("SOAPAction", prSOAPAction)
	return req
}

func (p *PlayReady) IsHdcp22Required() bool { return p.cfg.PROutputProtection }

func parsePlayReadyObject(data []byte) (*wrmHeader, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("playready object of %d bytes: %w", len(data), model.ErrCorruptMetadata)
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	rest := data[6:]
	for i := 0; i < count && len(rest) >= 4; i++ {
		typ := binary.LittleEndian.Uint16(rest[0:2])
		n := int(binary.LittleEndian.Uint16(rest[2:4]))
		if len(rest) < 4+n {
			return nil, fmt.Errorf("playready record %d truncated: %w", i, model.ErrCorruptMetadata)
		}
		value := rest[4 : 4+n]
		rest = rest[4+n:]
		if typ != prRecordRightsManagementHeader {
			continue
		}
		utf8, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(value)
		if err != nil {
			return nil, fmt.Errorf("decode rights header: %w: %w", model.ErrCorruptMetadata, err)
		}
		var hdr wrmHeader
		if err := xml.Unmarshal(utf8, &hdr); err != nil {
			return nil, fmt.Errorf("parse rights header: %w: %w", model.ErrCorruptMetadata, err)
		}
		return &hdr, nil
	}
	return nil, errNoRightsHeader
}

func (h *wrmHeader) keyIDs() [][]byte {
	var encoded []string
	if v := strings.TrimSpace(h.Data.KID); v != "" {
		encoded = append(encoded, v)
	}
	if v := h.Data.ProtectInfo.KID.Value; v != "" {
		encoded = append(encoded, v)
	}
	for _, k := range h.Data.ProtectInfo.KIDs {
		encoded = append(encoded, k.Value)
	}
	for _, k := range h.Data.KIDs {
		encoded = append(encoded, k.Value)
	}
	var out [][]byte
	for _, e := range encoded {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(e))
		if err != nil || len(raw) != 16 {
			continue
		}
		out = append(out, guidToUUID(raw))
	}
	return out
}

// guidToUUID converts a little-endian GUID (PlayReady KID layout) to UUID byte order.
func guidToUUID(g []byte) []byte {
	u := bytes.Clone(g)
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	return u
}

// PlayReadyObject builds a PlayReady object holding a v4.0 rights header for kid
// (UUID byte order) and an optional license acquisition URL.
func PlayReadyObject(kid []byte, laURL string) []byte {
	guid := guidToUUID(kid) // the swap is its own inverse
	var sb strings.Builder
	sb.WriteString(`<WRMHEADER xmlns="http://schemas.microsoft.com/DRM/2007/03/PlayReadyHeader" version="4.0.0.0"><DATA>`)
	sb.WriteString("<KID>" + base64.StdEncoding.EncodeToString(guid) + "</KID>")
	if laURL != "" {
		sb.WriteString("<LA_URL>")
		_ = xml.EscapeText(&sb, []byte(laURL))
		sb.WriteString("</LA_URL>")
	}
	sb.WriteString("</DATA></WRMHEADER>")

	utf16, _ := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(sb.String()))

	rec := make([]byte, 0, 4+len(utf16))
	rec = binary.LittleEndian.AppendUint16(rec, prRecordRightsManagementHeader)
	rec = binary.LittleEndian.AppendUint16(rec, uint16(len(utf16)))
	rec = append(rec, utf16...)

	out := make([]byte, 0, 6+len(rec))
	out = binary.LittleEndian.AppendUint32(out, uint32(6+len(rec)))
	out = binary.LittleEndian.AppendUint16(out, 1)
	return append(out, rec...)
}
