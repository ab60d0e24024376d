// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package helper parses protection system headers and builds license requests
// for the DRM systems the player supports. The session coordinator consumes
// helpers through the Helper interface only.
package helper

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// LicenseRequest is an opaque license round trip description. Its body layout
// belongs to the DRM system; the coordinator never inspects it.
type LicenseRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Payload []byte
}

// Helper is the per-stream protection system adapter.
type Helper interface {
	System() model.DrmSystem
	// OcdmSystemID is the key system string handed to the CDM.
	OcdmSystemID() string
	// ParsePssh consumes protection system init data and reports whether a key ID was found.
	ParsePssh(initData []byte) bool
	InitData() []byte
	// GetKey returns the primary key ID extracted by ParsePssh.
	GetKey() []byte
	GenerateLicenseRequest(challenge cdm.Challenge) LicenseRequest
	IsHdcp22Required() bool
	DrmCodecType() string
	CustomData() string
}

// Callbacks receives CDM driven events on behalf of the player.
type Callbacks interface {
	Individualization(payload string)
	LicenseRenewal(h Helper, userData any)
}

// Config carries the knobs shared by all helpers.
type Config struct {
	// LicenseServerURL overrides any URL embedded in the stream or suggested by the CDM.
	LicenseServerURL string
	CustomData       string
	// PROutputProtection makes PlayReady content demand HDCP 2.2.
	PROutputProtection bool
	// WidevineKIDWorkaround uses the Widevine content_id when the header lists no key_id.
	WidevineKIDWorkaround bool
}

// base carries the state every helper needs. Parsed fields are guarded because
// the pipeline may re-parse on key rotation while the coordinator reads.
type base struct {
	cfg    Config
	system model.DrmSystem
	ocdm   string
	codec  string

	mu         sync.RWMutex
	initData   []byte
	keyIDs     [][]byte
	embeddedLA string
}

func (b *base) System() model.DrmSystem { return b.system }
func (b *base) OcdmSystemID() string    { return b.ocdm }
func (b *base) DrmCodecType() string    { return b.codec }
func (b *base) CustomData() string      { return b.cfg.CustomData }

func (b *base) InitData() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bytes.Clone(b.initData)
}

func (b *base) GetKey() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.keyIDs) == 0 {
		return nil
	}
	return bytes.Clone(b.keyIDs[0])
}

// KeyIDs returns every key ID found in the header.
func (b *base) KeyIDs() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, 0, len(b.keyIDs))
	for _, k := range b.keyIDs {
		out = append(out, bytes.Clone(k))
	}
	return out
}

func (b *base) store(initData []byte, keyIDs [][]byte, laURL string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initData = bytes.Clone(initData)
	b.keyIDs = keyIDs
	b.embeddedLA = laURL
	return len(keyIDs) > 0
}

// licenseURL applies precedence: configured override, then the URL embedded in
// the header, then the CDM suggestion.
func (b *base) licenseURL(challenge cdm.Challenge) string {
	if b.cfg.LicenseServerURL != "" {
		return b.cfg.LicenseServerURL
	}
	b.mu.RLock()
	la := b.embeddedLA
	b.mu.RUnlock()
	if la != "" {
		return la
	}
	return challenge.URL
}

func (b *base) request(challenge cdm.Challenge, contentType string) LicenseRequest {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return LicenseRequest{
		Method:  http.MethodPost,
		URL:     b.licenseURL(challenge),
		Headers: h,
		Payload: bytes.Clone(challenge.Data),
	}
}
