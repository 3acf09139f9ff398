package session

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIceStateFrom(t *testing.T) {
	s, ok := iceStateFrom(webrtc.ICEConnectionStateConnected)
	require.True(t, ok)
	assert.Equal(t, IceConnected, s)
	assert.Equal(t, "CONNECTED", s.String())

	_, ok = iceStateFrom(webrtc.ICEConnectionStateUnknown)
	assert.False(t, ok)
}

func TestDescriptionFrom(t *testing.T) {
	d, err := descriptionFrom(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, SessionDescription{Type: SdpAnswer, Description: "v=0"}, d)
	assert.Equal(t, webrtc.SDPTypeAnswer, d.toWebRTC().Type)

	_, err = descriptionFrom(webrtc.SessionDescription{Type: webrtc.SDPTypePranswer})
	assert.ErrorIs(t, err, ErrUnsupportedSDPType)
}

func TestAdapterTypeByName(t *testing.T) {
	tests := map[string]AdapterType{
		"lo":          AdapterLoopback,
		"wlan0":       AdapterWiFi,
		"wlp3s0":      AdapterWiFi,
		"eth0":        AdapterEthernet,
		"enp0s31f6":   AdapterEthernet,
		"rmnet_data0": AdapterCellular,
		"wwan0":       AdapterCellular,
		"tun0":        AdapterVPN,
		"wg0":         AdapterVPN,
		"docker0":     AdapterUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, adapterTypeByName(name), name)
	}
}

func TestAdapterTypeFor(t *testing.T) {
	assert.Equal(t, AdapterLoopback, adapterTypeFor("127.0.0.1"))
	assert.Equal(t, AdapterLoopback, adapterTypeFor("::1"))
	assert.Equal(t, AdapterUnknown, adapterTypeFor("a1b2c3.local"))
	assert.Equal(t, AdapterUnknown, adapterTypeFor("203.0.113.7"))
}

func TestCandidateFrom(t *testing.T) {
	servers := []ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	}
	relay := &webrtc.ICECandidate{
		Foundation:     "1",
		Protocol:       webrtc.ICEProtocolUDP,
		Address:        "203.0.113.7",
		Port:           50000,
		Typ:            webrtc.ICECandidateTypeRelay,
		RelatedAddress: "0.0.0.0",
		SDPMid:         "0",
	}
	c := candidateFrom(relay, servers)
	assert.Equal(t, AdapterAny, c.AdapterType)
	assert.Equal(t, "turn:turn.example.com:3478", c.ServerURL)
	assert.Equal(t, "0", c.SdpMid)
	assert.Contains(t, c.Sdp, "typ relay")

	host := &webrtc.ICECandidate{
		Foundation: "2",
		Protocol:   webrtc.ICEProtocolUDP,
		Address:    "127.0.0.1",
		Port:       50001,
		Typ:        webrtc.ICECandidateTypeHost,
	}
	c = candidateFrom(host, servers)
	assert.Equal(t, AdapterLoopback, c.AdapterType)
	assert.Empty(t, c.ServerURL)

	ci := c.init()
	require.NotNil(t, ci.SDPMid)
	require.NotNil(t, ci.SDPMLineIndex)
	assert.Equal(t, c.Sdp, ci.Candidate)
}

func TestPacketSamples(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		want   int
	}{
		{"empty", nil, 0},
		{"silk 20ms", []byte{0x08}, 960},
		{"silk 2x20ms", []byte{0x09}, 1920},
		{"silk 3x20ms", []byte{0x0b, 0x03}, 2880},
		{"code 3 truncated", []byte{0x0b}, 0},
		{"celt 20ms", []byte{0xf8}, 960},
		{"hybrid 10ms", []byte{0x60}, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, packetSamples(tt.packet))
		})
	}
}

func TestRMS(t *testing.T) {
	assert.Zero(t, rms(nil))
	assert.Zero(t, rms(make([]byte, 64)))

	full := make([]byte, 64)
	for i := 0; i < len(full); i += 2 {
		v := int16(math.MaxInt16)
		if i%4 == 0 {
			v = -math.MaxInt16
		}
		binary.LittleEndian.PutUint16(full[i:], uint16(v))
	}
	assert.InDelta(t, 1.0, rms(full), 1e-9)
}

func TestNewRecorder(t *testing.T) {
	dir := t.TempDir()

	w, err := NewRecorder(dir, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(dir, "remote_audio.ogg"))
	require.NoError(t, err)

	w, err = NewRecorder(dir, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = NewRecorder(dir, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
	})
	require.Error(t, err)
}
