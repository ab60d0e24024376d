// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"bytes"
	"encoding/hex"
	"time"
)

// KeyID is a content key identifier plus the bookkeeping the coordinator keeps for it.
type KeyID struct {
	Data         []byte
	CreationTime time.Time
	// Failed is set once license acquisition failed; retries are suppressed until cleared.
	Failed bool
	// Primary exempts the owning slot from eviction.
	Primary bool
}

// NewKeyID copies data so callers may reuse their buffer.
func NewKeyID(data []byte, now time.Time) KeyID {
	return KeyID{Data: bytes.Clone(data), CreationTime: now}
}

// Empty reports whether the identifier carries no bytes.
func (k KeyID) Empty() bool { return len(k.Data) == 0 }

// Matches reports whether k identifies the same key as data.
func (k KeyID) Matches(data []byte) bool {
	return len(k.Data) > 0 && bytes.Equal(k.Data, data)
}

// Hex renders the identifier for logs and map keys.
func (k KeyID) Hex() string { return hex.EncodeToString(k.Data) }
