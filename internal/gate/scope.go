// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package gate

import (
	"sync/atomic"

	"github.com/ManuGH/gstplayer/internal/metrics"
)

// Scope is the obligation to release one gate instance.
// A scope is released exactly once: Release is idempotent and Move transfers the
// obligation, leaving the source empty.
type Scope struct {
	gate atomic.Pointer[Gate]
}

// ShouldAbort reports whether the guarded callback must return without side effects.
// An empty (released or moved-from) scope always aborts.
func (s *Scope) ShouldAbort() bool {
	g := s.gate.Load()
	if g == nil {
		return true
	}
	if !g.IsEnabled() {
		metrics.IncGateAborted(g.name)
		return true
	}
	return false
}

// Release decrements the owning gate's instance count once. Later calls are no-ops.
func (s *Scope) Release() {
	if g := s.gate.Swap(nil); g != nil {
		g.release()
	}
}

// Move hands the release obligation to a new scope; s owes nothing afterwards.
func (s *Scope) Move() *Scope {
	out := &Scope{}
	out.gate.Store(s.gate.Swap(nil))
	return out
}

// Owned reports whether the scope still owes a release.
func (s *Scope) Owned() bool {
	return s.gate.Load() != nil
}
