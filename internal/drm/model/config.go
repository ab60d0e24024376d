// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// DRMConfig holds the flags consulted by session creation.
type DRMConfig struct {
	UseSecManager            bool
	EnablePROutputProtection bool
	PropagateURIParam        bool
	IsFakeTune               bool
	WideVineKIDWorkaround    bool
}
