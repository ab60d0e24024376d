// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package callback models single-slot callback registration points.
//
// A Slot is either Unset or Set(fn). Registering replaces the previous function
// entirely, registering a nil function clears the slot, and invoking an unset
// slot through Must panics with ErrBadCall: callers are expected to check IsSet
// (or use Get) first.
package callback

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrBadCall is the panic value class raised when an unset callback is invoked.
var ErrBadCall = errors.New("bad function call")

// Slot holds at most one function of type F. The zero value is an unset slot.
type Slot[F any] struct {
	mu   sync.RWMutex
	name string
	fn   F
	set  bool
}

// Named returns an unset slot whose name appears in ErrBadCall panics.
func Named[F any](name string) *Slot[F] {
	return &Slot[F]{name: name}
}

// Register stores fn, overwriting any previous registration. A nil fn clears the slot.
func (s *Slot[F]) Register(fn F) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isNil(fn) {
		var zero F
		s.fn, s.set = zero, false
		return
	}
	s.fn, s.set = fn, true
}

// Clear resets the slot to Unset.
func (s *Slot[F]) Clear() {
	s.mu.Lock()
	var zero F
	s.fn, s.set = zero, false
	s.mu.Unlock()
}

// IsSet reports whether a callable is registered.
func (s *Slot[F]) IsSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Get returns the registered callable and whether one is set.
func (s *Slot[F]) Get() (F, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fn, s.set
}

// Must returns the registered callable or panics with an error wrapping ErrBadCall.
func (s *Slot[F]) Must() F {
	fn, ok := s.Get()
	if !ok {
		name := s.name
		if name == "" {
			name = fmt.Sprintf("%T", fn)
		}
		panic(fmt.Errorf("%w: %s is not registered", ErrBadCall, name))
	}
	return fn
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
