// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// ClearKey is the helper for org.w3.clearkey. Key IDs come from v1 pssh boxes.
type ClearKey struct {
	base
}

// NewClearKey returns an unparsed ClearKey helper.
func NewClearKey(cfg Config) *ClearKey {
	return &ClearKey{base: base{cfg: cfg, system: model.SystemClearKey, ocdm: model.OCDMClearKey, codec: "cenc"}}
}

func (c *ClearKey) ParsePssh(initData []byte) bool {
	boxes, err := ParsePSSH(initData)
	if err != nil {
		return false
	}
	box, ok := findSystem(boxes, model.ClearKeySystemID, model.CommonSystemID)
	if !ok {
		return false
	}
	return c.store(initData, box.KIDs, "")
}

func (c *ClearKey) GenerateLicenseRequest(challenge cdm.Challenge) LicenseRequest {
	return c.request(challenge, "application/json")
}

func (c *ClearKey) IsHdcp22Required() bool { return false }
