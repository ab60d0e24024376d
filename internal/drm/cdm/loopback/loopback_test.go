// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

type statusRecorder struct{ states []model.KeyState }

func (r *statusRecorder) OnIndividualization(string)                  {}
func (r *statusRecorder) OnLicenseRenewal(cdm.Session, cdm.Challenge) {}
func (r *statusRecorder) OnKeyStatusChanged(_ cdm.Session, st model.KeyState) {
	r.states = append(r.states, st)
}

func TestProviderKnowsDefaultSystems(t *testing.T) {
	p := NewProvider()
	for _, ks := range KeySystems {
		sys, err := p.System(ks)
		require.NoError(t, err)
		assert.Equal(t, ks, sys.KeySystem())
	}
	_, err := p.System("org.example.none")
	require.ErrorIs(t, err, cdm.ErrUnknownKeySystem)

	_, err = NewProvider(model.OCDMClearKey).System(model.OCDMWidevine)
	require.ErrorIs(t, err, cdm.ErrUnknownKeySystem)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	sys, err := NewProvider().System(model.OCDMWidevine)
	require.NoError(t, err)

	rec := &statusRecorder{}
	a, err := sys.CreateSession(ctx, []byte("init"), "", rec)
	require.NoError(t, err)
	b, err := sys.CreateSession(ctx, []byte("init"), "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, model.KeyInit, a.State())

	ch, err := a.GenerateChallenge(ctx, []byte("init"))
	require.NoError(t, err)
	assert.Equal(t, a.ID()+":init", string(ch.Data))
	assert.Equal(t, model.KeyPending, a.State())

	st, err := a.ProcessLicense(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, model.KeyError, st)

	st, err = a.ProcessLicense(ctx, []byte("any"))
	require.NoError(t, err)
	assert.Equal(t, model.KeyReady, st)
	assert.Equal(t, []model.KeyState{model.KeyError, model.KeyReady}, rec.states)

	require.NoError(t, a.Close())
	require.ErrorIs(t, a.Close(), cdm.ErrSessionClosed)
	_, err = a.GenerateChallenge(ctx, nil)
	require.ErrorIs(t, err, cdm.ErrSessionClosed)
	_, err = a.ProcessLicense(ctx, []byte("any"))
	require.ErrorIs(t, err, cdm.ErrSessionClosed)
}
