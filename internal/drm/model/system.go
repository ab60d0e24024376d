// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"strings"

	"github.com/google/uuid"
)

// DrmSystem names a content protection system.
type DrmSystem string

const (
	SystemNone      DrmSystem = "none"
	SystemWidevine  DrmSystem = "widevine"
	SystemPlayReady DrmSystem = "playready"
	SystemClearKey  DrmSystem = "clearkey"
)

// Protection system IDs as they appear in PSSH boxes.
var (
	WidevineSystemID  = uuid.MustParse("edef8ba9-79d6-4ace-a3c8-27dcd51d21ed")
	PlayReadySystemID = uuid.MustParse("9a04f079-9840-4286-ab92-e65be0885f95")
	ClearKeySystemID  = uuid.MustParse("e2719d58-a985-b3c9-781a-b030af78d30e")
	CommonSystemID    = uuid.MustParse("1077efec-c0b2-4d02-ace3-3c1e52e2fb4b")
)

// OCDM key system strings.
const (
	OCDMWidevine  = "com.widevine.alpha"
	OCDMPlayReady = "com.microsoft.playready"
	OCDMClearKey  = "org.w3.clearkey"
)

// SystemForID maps a PSSH system ID to a DrmSystem.
func SystemForID(id uuid.UUID) DrmSystem {
	switch id {
	case WidevineSystemID:
		return SystemWidevine
	case PlayReadySystemID:
		return SystemPlayReady
	case ClearKeySystemID, CommonSystemID:
		return SystemClearKey
	}
	return SystemNone
}

// ParseDrmSystem maps a configured system name, case-insensitive, to a DrmSystem.
func ParseDrmSystem(name string) (DrmSystem, bool) {
	switch s := DrmSystem(strings.ToLower(strings.TrimSpace(name))); s {
	case SystemWidevine, SystemPlayReady, SystemClearKey:
		return s, true
	}
	return SystemNone, false
}

// KeySystem returns the OCDM key system string for s, or "" for SystemNone.
func (s DrmSystem) KeySystem() string {
	switch s {
	case SystemWidevine:
		return OCDMWidevine
	case SystemPlayReady:
		return OCDMPlayReady
	case SystemClearKey:
		return OCDMClearKey
	}
	return ""
}
