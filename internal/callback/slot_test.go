// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package callback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroSlotIsUnset(t *testing.T) {
	var s Slot[func(int) int]
	assert.False(t, s.IsSet())
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestRegisterOverwrites(t *testing.T) {
	s := Named[func() string]("greeting")
	s.Register(func() string { return "first" })
	s.Register(func() string { return "second" })

	require.True(t, s.IsSet())
	assert.Equal(t, "second", s.Must()())
}

func TestRegisterNilClears(t *testing.T) {
	s := Named[func()]("cleanup")
	s.Register(func() {})
	require.True(t, s.IsSet())

	s.Register(nil)
	assert.False(t, s.IsSet())

	var typedNil func()
	s.Register(func() {})
	s.Register(typedNil)
	assert.False(t, s.IsSet())
}

func TestClear(t *testing.T) {
	s := Named[func()]("x")
	s.Register(func() {})
	s.Clear()
	assert.False(t, s.IsSet())
}

func TestMustPanicsWithBadCall(t *testing.T) {
	s := Named[func()]("license")
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrBadCall))
		assert.Contains(t, err.Error(), "license")
	}()
	s.Must()()
}
