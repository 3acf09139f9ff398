//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// malgoSystem enumerates playback devices through miniaudio. Route state is
// kept in memory; only the legacy focus calls are offered.
type malgoSystem struct {
	ctx *malgo.AllocatedContext

	mu        sync.Mutex
	mode      Mode
	speakerOn bool
	micMuted  bool
	focus     map[FocusHandler]bool
}

func NewSystem() (System, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoSystem{ctx: ctx, focus: make(map[FocusHandler]bool)}, nil
}

func (m *malgoSystem) Outputs() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
			Type: Classify(d.Name()),
		})
	}
	return result, nil
}

func (m *malgoSystem) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *malgoSystem) SetMode(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

func (m *malgoSystem) SpeakerphoneOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakerOn
}

func (m *malgoSystem) SetSpeakerphoneOn(on bool) {
	m.mu.Lock()
	m.speakerOn = on
	m.mu.Unlock()
}

func (m *malgoSystem) MicrophoneMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micMuted
}

func (m *malgoSystem) SetMicrophoneMute(on bool) {
	m.mu.Lock()
	m.micMuted = on
	m.mu.Unlock()
}

func (m *malgoSystem) HasTelephony() bool { return false }

func (m *malgoSystem) RequestAudioFocusLegacy(h FocusHandler, _ Stream, _ FocusGain) FocusResult {
	m.mu.Lock()
	m.focus[h] = true
	m.mu.Unlock()
	return FocusRequestGranted
}

func (m *malgoSystem) AbandonAudioFocusLegacy(h FocusHandler) FocusResult {
	m.mu.Lock()
	delete(m.focus, h)
	m.mu.Unlock()
	return FocusRequestGranted
}

func (m *malgoSystem) RegisterHeadsetReceiver(fn func(HeadsetPlug)) (func() error, error) {
	return watchHeadset(m.Outputs, hotplugInterval, fn), nil
}

func (m *malgoSystem) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}
