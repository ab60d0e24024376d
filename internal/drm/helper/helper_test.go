// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package helper

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gstplayer/internal/drm/cdm"
	"github.com/ManuGH/gstplayer/internal/drm/model"
)

var (
	kidA = bytes.Repeat([]byte{0xA1}, 16)
	kidB = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
)

func TestParsePSSH_V0AndV1(t *testing.T) {
	initData := append(BuildPSSH(model.WidevineSystemID, nil, WidevinePsshData([][]byte{kidA}, nil)),
		BuildPSSH(model.ClearKeySystemID, [][]byte{kidB}, nil)...)

	boxes, err := ParsePSSH(initData)
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	assert.Equal(t, uint8(0), boxes[0].Version)
	assert.Equal(t, model.WidevineSystemID, boxes[0].SystemID)
	assert.Empty(t, boxes[0].KIDs)

	assert.Equal(t, uint8(1), boxes[1].Version)
	assert.Equal(t, model.ClearKeySystemID, boxes[1].SystemID)
	assert.Equal(t, [][]byte{kidB}, boxes[1].KIDs)
}

func TestParsePSSH_Rejects(t *testing.T) {
	_, err := ParsePSSH(nil)
	assert.ErrorIs(t, err, model.ErrCorruptMetadata)

	// A well formed box of another type.
	free := []byte{0, 0, 0, 8, 'f', 'r', 'e', 'e'}
	_, err = ParsePSSH(free)
	assert.ErrorIs(t, err, model.ErrCorruptMetadata)
}

func TestWidevine_KeyFromProtobuf(t *testing.T) {
	w := NewWidevine(Config{})
	initData := BuildPSSH(model.WidevineSystemID, nil, WidevinePsshData([][]byte{kidA, kidB}, []byte("content")))

	require.True(t, w.ParsePssh(initData))
	assert.Equal(t, kidA, w.GetKey())
	assert.Equal(t, [][]byte{kidA, kidB}, w.KeyIDs())
	assert.Equal(t, initData, w.InitData())
	assert.Equal(t, model.OCDMWidevine, w.OcdmSystemID())
	assert.False(t, w.IsHdcp22Required())
}

func TestWidevine_KIDWorkaround(t *testing.T) {
	initData := BuildPSSH(model.WidevineSystemID, nil, WidevinePsshData(nil, kidB))

	assert.False(t, NewWidevine(Config{}).ParsePssh(initData))

	w := NewWidevine(Config{WidevineKIDWorkaround: true})
	require.True(t, w.ParsePssh(initData))
	assert.Equal(t, kidB, w.GetKey())
}

func TestWidevine_V1BoxKIDsWin(t *testing.T) {
	w := NewWidevine(Config{})
	initData := BuildPSSH(model.WidevineSystemID, [][]byte{kidB}, WidevinePsshData([][]byte{kidA}, nil))
	require.True(t, w.ParsePssh(initData))
	assert.Equal(t, kidB, w.GetKey())
}

func TestPlayReady_RightsHeader(t *testing.T) {
	p := NewPlayReady(Config{PROutputProtection: true})
	initData := BuildPSSH(model.PlayReadySystemID, nil, PlayReadyObject(kidB, "https://pr.example/rightsmanager.asmx"))

	require.True(t, p.ParsePssh(initData))
	assert.Equal(t, kidB, p.GetKey())
	assert.True(t, p.IsHdcp22Required())

	req := p.GenerateLicenseRequest(cdm.Challenge{Data: []byte("<soap/>"), URL: "https://cdm.example"})
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://pr.example/rightsmanager.asmx", req.URL)
	assert.Equal(t, prSOAPAction, req.Headers.Get("SOAPAction"))
	assert.Equal(t, []byte("<soap/>"), req.Payload)
}

func TestPlayReady_GUIDByteOrder(t *testing.T) {
	g := []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0x08, 0x07, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	assert.Equal(t, kidB, guidToUUID(g))
	assert.Equal(t, g, guidToUUID(kidB))
}

func TestPlayReady_CorruptObject(t *testing.T) {
	p := NewPlayReady(Config{})
	initData := BuildPSSH(model.PlayReadySystemID, nil, []byte{1, 2, 3})
	assert.False(t, p.ParsePssh(initData))
	assert.Nil(t, p.GetKey())
}

func TestLicenseURLPrecedence(t *testing.T) {
	ch := cdm.Challenge{URL: "https://cdm.example"}

	c := NewClearKey(Config{})
	assert.Equal(t, "https://cdm.example", c.GenerateLicenseRequest(ch).URL)
	assert.Equal(t, "application/json", c.GenerateLicenseRequest(ch).Headers.Get("Content-Type"))

	c = NewClearKey(Config{LicenseServerURL: "https://override.example"})
	assert.Equal(t, "https://override.example", c.GenerateLicenseRequest(ch).URL)
}

func TestClearKey_CommonSystemID(t *testing.T) {
	c := NewClearKey(Config{})
	require.True(t, c.ParsePssh(BuildPSSH(model.CommonSystemID, [][]byte{kidA}, nil)))
	assert.Equal(t, kidA, c.GetKey())
}

func TestFromInitData(t *testing.T) {
	initData := append(BuildPSSH(model.PlayReadySystemID, nil, PlayReadyObject(kidB, "")),
		BuildPSSH(model.WidevineSystemID, nil, WidevinePsshData([][]byte{kidA}, nil))...)

	h, err := FromInitData(initData, Config{})
	require.NoError(t, err)
	assert.Equal(t, model.SystemWidevine, h.System())

	h, err = FromInitData(initData, Config{}, model.SystemPlayReady)
	require.NoError(t, err)
	assert.Equal(t, model.SystemPlayReady, h.System())
	assert.Equal(t, kidB, h.GetKey())

	_, err = FromInitData(initData, Config{}, model.SystemClearKey)
	assert.ErrorIs(t, err, model.ErrUnsupportedSystem)
}

func TestForSystem_Unsupported(t *testing.T) {
	_, err := ForSystem(model.SystemNone, Config{})
	assert.ErrorIs(t, err, model.ErrUnsupportedSystem)
}
