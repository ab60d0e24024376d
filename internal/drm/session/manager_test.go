// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/callback"
	"github.com/ManuGH/gstplayer/internal/drm/cdm/cdmtest"
	"github.com/ManuGH/gstplayer/internal/drm/helper"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

func TestNewRejectsBadBounds(t *testing.T) {
	p := cdmtest.NewProvider(cdmtest.NewFakeSystem(model.OCDMWidevine))

	_, err := New(-1, p)
	assert.Error(t, err)
	_, err = New(model.MaxSessionsLimit+1, p)
	assert.ErrorIs(t, err, model.ErrAllocationFailure)
	_, err = New(1, nil)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestUpdateMaxDRMSessions(t *testing.T) {
	f := newFixture(t, 5)

	assert.Error(t, f.m.UpdateMaxDRMSessions(-1))
	assert.ErrorIs(t, f.m.UpdateMaxDRMSessions(1000), model.ErrAllocationFailure)
	assert.Equal(t, 5, f.m.MaxSessions())

	handles := make([]*Handle, 0, 3)
	for _, k := range []byte{'a', 'b', 'c'} {
		h := f.create(t, k)
		require.Equal(t, model.KeyReady, waitState(t, h))
		handles = append(handles, h)
	}

	require.NoError(t, f.m.UpdateMaxDRMSessions(1))
	assert.Equal(t, 1, f.m.MaxSessions())
	assert.Equal(t, 0, f.m.GetSlotIDForSession(handles[0]))
	assert.Equal(t, -1, f.m.GetSlotIDForSession(handles[1]))
	assert.Equal(t, -1, f.m.GetSlotIDForSession(handles[2]))
	assert.Equal(t, 1, f.cdm.OpenSessions())

	require.NoError(t, f.m.UpdateMaxDRMSessions(0))
	_, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('d')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)

	require.NoError(t, f.m.UpdateMaxDRMSessions(2))
	h := f.create(t, 'd')
	assert.Equal(t, model.KeyReady, waitState(t, h))
}

func TestSessionMgrState(t *testing.T) {
	f := newFixture(t, 5)
	assert.Equal(t, model.SessionMgrActive, f.m.SessionMgrState())

	f.m.SetSessionMgrState(model.SessionMgrState(42))
	assert.Equal(t, model.SessionMgrActive, f.m.SessionMgrState())

	f.m.SetSessionMgrState(model.SessionMgrInactive)
	md := NewMetaDataEvent("")
	_, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('i')), f.cb, model.StreamVideo, md)
	assert.ErrorIs(t, err, model.ErrManagerInactive)
	assert.Equal(t, model.ErrCodeManagerInactive, md.Failure())
	assert.Zero(t, f.cdm.OpenSessions())

	f.m.SetSessionMgrState(model.SessionMgrActive)
	h := f.create(t, 'i')
	assert.Equal(t, model.KeyReady, waitState(t, h))
}

func TestUpdateDRMConfigAllCombinations(t *testing.T) {
	f := newFixture(t, 1)
	for mask := 0; mask < 32; mask++ {
		bit := func(i int) bool { return mask&(1<<i) != 0 }
		f.m.UpdateDRMConfig(bit(0), bit(1), bit(2), bit(3), bit(4))
		want := model.DRMConfig{
			UseSecManager:            bit(0),
			EnablePROutputProtection: bit(1),
			PropagateURIParam:        bit(2),
			IsFakeTune:               bit(3),
			WideVineKIDWorkaround:    bit(4),
		}
		assert.Equal(t, want, f.m.DRMConfig(), "mask %05b", mask)

		cfg := f.m.HelperConfig()
		assert.Equal(t, bit(1), cfg.PROutputProtection)
		assert.Equal(t, bit(4), cfg.WidevineKIDWorkaround)
	}
}

func TestCallbackRegistration(t *testing.T) {
	f := newFixture(t, 1)
	cbs := f.m.Callbacks()
	assert.False(t, cbs.SetFailure.IsSet())

	f.m.RegisterSetFailure(func(*MetaDataEvent, model.ErrorCode) {})
	assert.True(t, cbs.SetFailure.IsSet())

	f.m.RegisterSetFailure(nil)
	assert.False(t, cbs.SetFailure.IsSet())

	assert.PanicsWithError(t, "bad function call: SetFailure is not registered", func() {
		cbs.SetFailure.Must()
	})
	defer func() {
		r := recover()
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, callback.ErrBadCall)
	}()
	cbs.Watermark.Must()
}

func TestClearOperationsAreIdempotent(t *testing.T) {
	f := newFixture(t, 5)
	f.m.SetCustomData("cd")
	f.m.SetSessionLicenseURL("https://override.example/lic")
	f.fetcher.set(deny)
	h := f.create(t, 'e')
	require.Equal(t, model.KeyError, waitState(t, h))

	steps := []struct {
		name string
		fn   func()
	}{
		{"ClearFailedKeyIDs", f.m.ClearFailedKeyIDs},
		{"ClearSessionData", f.m.ClearSessionData},
		{"NotifyCleanup", f.m.NotifyCleanup},
		{"HideWatermarkOnDetach", f.m.HideWatermarkOnDetach},
		{"ClearAccessToken", f.m.ClearAccessToken},
		{"ClearDrmSession", func() { f.m.ClearDrmSession(true) }},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			step.fn()
			once := f.m.Snapshot()
			step.fn()
			if diff := cmp.Diff(once, f.m.Snapshot()); diff != "" {
				t.Errorf("second call changed state (-once +twice):\n%s", diff)
			}
		})
	}

	snap := f.m.Snapshot()
	assert.Empty(t, snap.FailedKeyIDs)
	assert.False(t, snap.CustomDataSet)
	assert.False(t, snap.WatermarkVisible)
	assert.Zero(t, snap.ActiveSessions)
	assert.Empty(t, f.m.HelperConfig().LicenseServerURL)
}

func TestClearDrmSessionForce(t *testing.T) {
	f := newFixture(t, 5)
	f.fetcher.set(deny)
	h := f.create(t, 'f')
	require.Equal(t, model.KeyError, waitState(t, h))
	f.fetcher.set(nil)

	f.m.ClearDrmSession(false)
	assert.Equal(t, model.KeyClosed, h.State())
	assert.Zero(t, f.cdm.OpenSessions())
	_, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('f')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	assert.ErrorIs(t, err, model.ErrKeyIDSuppressed, "failure record survives a soft clear")

	f.m.ClearDrmSession(true)
	h = f.create(t, 'f')
	assert.Equal(t, model.KeyReady, waitState(t, h))
}

func TestWatermarkBoundaries(t *testing.T) {
	f := newFixture(t, 1)
	var got []WatermarkEvent
	f.m.RegisterWatermarkCb(func(handle, status uint32, data []byte) {
		got = append(got, WatermarkEvent{SessionHandle: handle, Status: status, SystemData: data})
	})

	cases := []struct {
		handle, status uint32
		data           string
	}{
		{0, 0, ""},
		{math.MaxUint32, math.MaxUint32, "!@#$%^&*()"},
		{7, 1, "\x00\xffbinary"},
	}
	for _, tc := range cases {
		f.m.WatermarkSessionHandlerWrapper(tc.handle, tc.status, tc.data)
		_, last := f.m.Watermark()
		require.NotNil(t, last)
		assert.Equal(t, tc.handle, last.SessionHandle)
		assert.Equal(t, tc.status, last.Status)
		assert.Equal(t, []byte(tc.data), last.SystemData)
	}
	require.Len(t, got, len(cases))
	assert.Equal(t, uint32(math.MaxUint32), got[1].SessionHandle)
	assert.Equal(t, "!@#$%^&*()", string(got[1].SystemData))

	visible, _ := f.m.Watermark()
	assert.True(t, visible)
	f.m.HideWatermarkOnDetach()
	visible, _ = f.m.Watermark()
	assert.False(t, visible)
}

func TestAdvisoryPlaybackState(t *testing.T) {
	f := newFixture(t, 1)

	f.m.SetPlaybackSpeedState(true, -250.5, false, 1200, -4, 3000, true)
	p := f.m.Playback()
	assert.True(t, p.Live)
	assert.Equal(t, -250.5, p.CurrentLatency)
	assert.Equal(t, -4, p.Speed)
	assert.True(t, p.FirstFrameSeen)

	f.m.SetVideoMute(false, math.NaN(), true, math.Inf(1), true, 10)
	p = f.m.Playback()
	assert.False(t, p.Live)
	assert.Zero(t, p.CurrentLatency)
	assert.Zero(t, p.LiveOffsetMs)
	assert.True(t, p.VideoMuted)
	assert.Equal(t, -4, p.Speed, "mute keeps the speed")

	f.m.SetVideoWindowSize(1920, 1080)
	f.m.SetVideoWindowSize(-1, 720)
	f.m.SetVideoWindowSize(640, 0)
	w, h := f.m.VideoWindowSize()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestProcessProtectionUpdate(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.m.ProcessProtectionUpdate(context.Background(), model.StreamAudio, nil)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	h := f.create(t, 'p')
	require.Equal(t, model.KeyReady, waitState(t, h))

	same := helper.BuildPSSH(model.WidevineSystemID, nil, helper.WidevinePsshData([][]byte{keyOf('p')}, nil))
	st, err := f.m.ProcessProtectionUpdate(context.Background(), model.StreamVideo, same)
	require.NoError(t, err)
	assert.Equal(t, model.KeyReady, st)
	assert.Equal(t, int32(1), f.fetcher.calls.Load())

	_, err = f.m.ProcessProtectionUpdate(context.Background(), model.StreamVideo, []byte("junk"))
	assert.ErrorIs(t, err, model.ErrCorruptMetadata)

	rotated := helper.BuildPSSH(model.WidevineSystemID, nil, helper.WidevinePsshData([][]byte{keyOf('q')}, nil))
	_, err = f.m.ProcessProtectionUpdate(context.Background(), model.StreamVideo, rotated)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.fetcher.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	var handled []byte
	f.m.RegisterHandleContentProtectionCb(func(hp helper.Helper, _ model.StreamType, _ []byte) model.KeyState {
		handled = hp.GetKey()
		return model.KeyPending
	})
	next := helper.BuildPSSH(model.WidevineSystemID, nil, helper.WidevinePsshData([][]byte{keyOf('r')}, nil))
	st, err = f.m.ProcessProtectionUpdate(context.Background(), model.StreamVideo, next)
	require.NoError(t, err)
	assert.Equal(t, model.KeyPending, st)
	assert.Equal(t, keyOf('r'), handled)
}

func TestCustomDataReachesCDM(t *testing.T) {
	f := newFixture(t, 1)
	f.m.SetCustomData("operator=42")
	h := f.create(t, 'u')
	require.Equal(t, model.KeyReady, waitState(t, h))
	require.Len(t, f.cdm.Sessions(), 1)
	assert.Equal(t, "operator=42", f.cdm.Sessions()[0].CustomData())
}

func TestCloseRejectsNewSessions(t *testing.T) {
	f := newFixture(t, 2)
	h := f.create(t, 'k')
	require.Equal(t, model.KeyReady, waitState(t, h))

	require.NoError(t, f.m.Close(context.Background()))
	require.NoError(t, f.m.Close(context.Background()))
	assert.Equal(t, model.KeyClosed, h.State())
	assert.Zero(t, f.cdm.OpenSessions())

	_, err := f.m.CreateDrmSession(context.Background(), widevineHelper(t, keyOf('k')), f.cb, model.StreamVideo, NewMetaDataEvent(""))
	assert.ErrorIs(t, err, model.ErrManagerInactive)
}
