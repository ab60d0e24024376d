// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"fmt"

	"github.com/ManuGH/gstplayer/internal/drm/model"
)

// DefaultPreference is the order in which systems are tried when init data
// carries headers for several of them.
var DefaultPreference = []model.DrmSystem{model.SystemWidevine, model.SystemPlayReady, model.SystemClearKey}

// ForSystem returns an unparsed helper for system.
func ForSystem(system model.DrmSystem, cfg Config) (Helper, error) {
	switch system {
	case model.SystemWidevine:
		return NewWidevine(cfg), nil
	case model.SystemPlayReady:
		return NewPlayReady(cfg), nil
	case model.SystemClearKey:
		return NewClearKey(cfg), nil
	}
	return nil, fmt.Errorf("helper for %q: %w", system, model.ErrUnsupportedSystem)
}

// FromInitData picks the first system in preference that appears in initData,
// parses it, and returns the helper.
func FromInitData(initData []byte, cfg Config, preference ...model.DrmSystem) (Helper, error) {
	boxes, err := ParsePSSH(initData)
	if err != nil {
		return nil, err
	}
	if len(preference) == 0 {
		preference = DefaultPreference
	}
	present := make(map[model.DrmSystem]bool, len(boxes))
	for _, b := range boxes {
		present[model.SystemForID(b.SystemID)] = true
	}
	for _, system := range preference {
		if !present[system] {
			continue
		}
		h, err := ForSystem(system, cfg)
		if err != nil {
			return nil, err
		}
		if !h.ParsePssh(initData) {
			return nil, fmt.Errorf("%s header carries no key id: %w", system, model.ErrCorruptMetadata)
		}
		return h, nil
	}
	return nil, fmt.Errorf("no preferred system among %d pssh boxes: %w", len(boxes), model.ErrUnsupportedSystem)
}
