// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package slots implements the bounded table of DRM session slots.
//
// A Table is not synchronised: the session coordinator serialises every call
// under its slot-table mutex. Slot indices are stable for the lifetime of the
// slot; only the session object and key bookkeeping inside a slot change.
package slots

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
	xglog "github.com/ManuGH/gstplayer/internal/log"
	"github.com/ManuGH/gstplayer/internal/metrics"
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Slot is one unit of concurrent decryption capacity.
type Slot struct {
	Index   int
	KeyID   model.KeyID
	Session cdm.Session
	State   model.KeyState

	lastUsed uint64
}

// Free reports whether the slot holds no key.
func (s *Slot) Free() bool { return s.KeyID.Empty() }

// Info is a copy of a slot's bookkeeping, safe to hand out.
type Info struct {
	Index     int       `json:"index"`
	KeyID     string    `json:"keyId,omitempty"`
	State     string    `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	Primary   bool      `json:"primary"`
	Failed    bool      `json:"failed"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Table is the bounded array of session slots.
type Table struct {
	slots  []*Slot
	tick   uint64
	failed map[string]time.Time
	clock  clock
	logger zerolog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source used for key creation and failure stamps.
func WithClock(c clock) Option {
	return func(t *Table) { t.clock = c }
}

// New returns a table with maxSlots free slots.
func New(maxSlots int, opts ...Option) (*Table, error) {
	if err := checkSize(maxSlots); err != nil {
		return nil, err
	}
	t := &Table{
		failed: make(map[string]time.Time),
		clock:  realClock{},
		logger: xglog.WithComponent("drm.slots"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.grow(maxSlots)
	metrics.DrmSessionsMax.Set(float64(maxSlots))
	return t, nil
}

func checkSize(n int) error {
	if n < 0 {
		return fmt.Errorf("session slot bound %d: %w: %w", n, model.ErrInvalidArgument, model.ErrAllocationFailure)
	}
	if n > model.MaxSessionsLimit {
		return fmt.Errorf("session slot bound %d exceeds %d: %w", n, model.MaxSessionsLimit, model.ErrAllocationFailure)
	}
	return nil
}

func (t *Table) grow(n int) {
	for i := len(t.slots); i < n; i++ {
		t.slots = append(t.slots, &Slot{Index: i, State: model.KeyInit})
	}
}

// Max returns the configured slot bound.
func (t *Table) Max() int { return len(t.slots) }

// Occupied counts slots holding a key.
func (t *Table) Occupied() int {
	n := 0
	for _, s := range t.slots {
		if !s.Free() {
			n++
		}
	}
	return n
}

// Resize changes the bound. Growing appends free slots; shrinking releases the
// slots whose index falls outside the new bound. Indices below newMax never move.
func (t *Table) Resize(newMax int) error {
	if err := checkSize(newMax); err != nil {
		return err
	}
	if newMax < len(t.slots) {
		for _, s := range t.slots[newMax:] {
			t.releaseSlot(s, true)
		}
		t.slots = t.slots[:newMax]
	} else {
		t.grow(newMax)
	}
	metrics.DrmSessionsMax.Set(float64(newMax))
	t.updateGauge()
	return nil
}

// Get returns the slot at index or nil when out of range.
func (t *Table) Get(index int) *Slot {
	if index < 0 || index >= len(t.slots) {
		return nil
	}
	return t.slots[index]
}

// FindByKeyID returns the index of the slot owning keyID.
func (t *Table) FindByKeyID(keyID []byte) (int, bool) {
	if len(keyID) == 0 {
		return -1, false
	}
	for _, s := range t.slots {
		if s.KeyID.Matches(keyID) {
			return s.Index, true
		}
	}
	return -1, false
}

// FindBySession returns the index of the slot holding session, or -1 for nil or unknown sessions.
func (t *Table) FindBySession(session cdm.Session) int {
	if session == nil {
		return -1
	}
	for _, s := range t.slots {
		if s.Session != nil && s.Session == session {
			return s.Index
		}
	}
	return -1
}

// Allocate binds keyID to a free slot, evicting the least recently used
// non-primary slot when the table is full. The returned bool reports eviction.
func (t *Table) Allocate(keyID []byte, primary bool) (int, bool, error) {
	if len(keyID) == 0 {
		return -1, false, fmt.Errorf("allocate slot: empty key id: %w", model.ErrInvalidArgument)
	}
	if idx, ok := t.FindByKeyID(keyID); ok {
		return -1, false, fmt.Errorf("allocate slot: key id %s already owns slot %d: %w",
			xglog.KeyIDHex(keyID), idx, model.ErrInvalidArgument)
	}

	target, evicted := t.pickSlot()
	if target == nil {
		return -1, false, fmt.Errorf("all %d slots are primary or the bound is zero: %w", len(t.slots), model.ErrSlotUnavailable)
	}
	if evicted {
		t.logger.Info().
			Str(xglog.FieldEvent, "drm.slot_evicted").
			Int(xglog.FieldSlot, target.Index).
			Str(xglog.FieldKeyID, target.KeyID.Hex()).
			Str("new_key_id", xglog.KeyIDHex(keyID)).
			Msg("evicting least recently used session slot")
		metrics.DrmSlotEvictionsTotal.Inc()
		t.releaseSlot(target, false)
	}

	target.KeyID = model.NewKeyID(keyID, t.clock.Now())
	target.KeyID.Primary = primary
	target.State = model.KeyInit
	t.touch(target)
	t.updateGauge()
	return target.Index, evicted, nil
}

func (t *Table) pickSlot() (*Slot, bool) {
	for _, s := range t.slots {
		if s.Free() {
			return s, false
		}
	}
	var lru *Slot
	for _, s := range t.slots {
		if s.KeyID.Primary {
			continue
		}
		if lru == nil || s.lastUsed < lru.lastUsed {
			lru = s
		}
	}
	return lru, lru != nil
}

// Touch marks the slot as most recently used.
func (t *Table) Touch(index int) {
	if s := t.Get(index); s != nil {
		t.touch(s)
	}
}

func (t *Table) touch(s *Slot) {
	t.tick++
	s.lastUsed = t.tick
}

// MarkPrimary exempts the slot from eviction.
func (t *Table) MarkPrimary(index int) {
	if s := t.Get(index); s != nil && !s.Free() {
		s.KeyID.Primary = true
	}
}

// SetState records a key state transition.
func (t *Table) SetState(index int, state model.KeyState) {
	s := t.Get(index)
	if s == nil || s.State == state {
		return
	}
	t.logger.Debug().
		Str(xglog.FieldEvent, "drm.key_state").
		Int(xglog.FieldSlot, index).
		Str(xglog.FieldKeyID, s.KeyID.Hex()).
		Str(xglog.FieldOldState, s.State.String()).
		Str(xglog.FieldNewState, state.String()).
		Msg("slot key state changed")
	s.State = state
	metrics.RecordKeyState(state.String())
}

// SetSession stores the decryption session for the slot, closing any previous one.
func (t *Table) SetSession(index int, session cdm.Session) {
	s := t.Get(index)
	if s == nil {
		return
	}
	if s.Session != nil && s.Session != session {
		t.closeSession(s)
	}
	s.Session = session
}

// MarkFailed flags the slot's key ID as failed, suppressing retries.
func (t *Table) MarkFailed(index int) {
	s := t.Get(index)
	if s == nil || s.Free() {
		return
	}
	s.KeyID.Failed = true
	t.failed[s.KeyID.Hex()] = t.clock.Now()
}

// IsSuppressed reports whether keyID failed within window. A non-positive window
// suppresses until ClearFailedKeyIDs.
func (t *Table) IsSuppressed(keyID []byte, window time.Duration) bool {
	if len(keyID) == 0 {
		return false
	}
	at, ok := t.failed[model.KeyID{Data: keyID}.Hex()]
	if !ok {
		return false
	}
	if window <= 0 {
		return true
	}
	return t.clock.Now().Sub(at) < window
}

// ForgetFailure drops the failure record of one key so it can be retried.
func (t *Table) ForgetFailure(keyID []byte) {
	hexID := model.KeyID{Data: keyID}.Hex()
	delete(t.failed, hexID)
	if idx, ok := t.FindByKeyID(keyID); ok {
		t.slots[idx].KeyID.Failed = false
	}
}

// Release tears down the slot's session and frees it. forceClear also drops the
// failed-key record; without it the record survives for the suppression window.
func (t *Table) Release(index int, forceClear bool) {
	if s := t.Get(index); s != nil {
		t.releaseSlot(s, forceClear)
		t.updateGauge()
	}
}

func (t *Table) releaseSlot(s *Slot, forceClear bool) {
	if s.Session != nil {
		t.closeSession(s)
		s.Session = nil
	}
	if forceClear && !s.Free() {
		delete(t.failed, s.KeyID.Hex())
	}
	s.KeyID = model.KeyID{}
	s.State = model.KeyInit
	s.lastUsed = 0
}

func (t *Table) closeSession(s *Slot) {
	if err := s.Session.Close(); err != nil {
		t.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "drm.session_close_failed").
			Int(xglog.FieldSlot, s.Index).
			Msg("closing decryption session")
	}
}

// ReleaseAll frees every slot.
func (t *Table) ReleaseAll(forceClear bool) {
	for _, s := range t.slots {
		t.releaseSlot(s, forceClear)
	}
	if forceClear {
		clear(t.failed)
	}
	t.updateGauge()
}

// ClearFailedKeyIDs resets every failure mark. Calling it again is a no-op.
func (t *Table) ClearFailedKeyIDs() {
	for _, s := range t.slots {
		s.KeyID.Failed = false
	}
	clear(t.failed)
}

// FailedKeyIDs returns the hex IDs currently suppressed, in no particular order.
func (t *Table) FailedKeyIDs() []string {
	out := make([]string, 0, len(t.failed))
	for k := range t.failed {
		out = append(out, k)
	}
	return out
}

// Snapshot copies slot bookkeeping in index order.
func (t *Table) Snapshot() []Info {
	out := make([]Info, 0, len(t.slots))
	for _, s := range t.slots {
		info := Info{Index: s.Index, State: s.State.String()}
		if !s.Free() {
			info.KeyID = s.KeyID.Hex()
			info.Primary = s.KeyID.Primary
			info.Failed = s.KeyID.Failed
			info.CreatedAt = s.KeyID.CreationTime
		}
		if s.Session != nil {
			info.SessionID = s.Session.ID()
		}
		out = append(out, info)
	}
	return out
}

// KeyIDs returns copies of every bound key ID in index order.
func (t *Table) KeyIDs() [][]byte {
	var out [][]byte
	for _, s := range t.slots {
		if !s.Free() {
			out = append(out, bytes.Clone(s.KeyID.Data))
		}
	}
	return out
}

func (t *Table) updateGauge() {
	metrics.DrmSessionsActive.Set(float64(t.Occupied()))
}
