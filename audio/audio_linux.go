//go:build linux

package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"rtcaudio/log"
)

// pulseSystem drives PulseAudio. Speakerphone maps to choosing the built-in
// speaker sink as default. Mode and focus are tracked in memory; a desktop
// has no call mode or focus arbitration of its own.
type pulseSystem struct {
	client *pulse.Client

	mu          sync.Mutex
	mode        Mode
	speakerOn   bool
	micMuted    bool
	restoreSink string
	focus       map[FocusHandler]bool
}

func NewSystem() (System, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("rtcaudio"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseSystem{client: c, focus: make(map[FocusHandler]bool)}, nil
}

func (p *pulseSystem) Outputs() ([]DeviceInfo, error) {
	var reply proto.GetSinkInfoListReply
	if err := p.client.RawRequest(&proto.GetSinkInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("pulse list sinks: %w", err)
	}
	return sinkOutputs(reply), nil
}

// sinkOutputs classifies every sink by name and active port. Plugging
// headphones into a built-in jack only moves the active port of the card's
// sink to analog-output-headphones.
func sinkOutputs(sinks proto.GetSinkInfoListReply) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(sinks))
	for _, s := range sinks {
		devices = append(devices, DeviceInfo{
			ID:   s.SinkName,
			Name: s.Device,
			Port: s.ActivePortName,
			Type: ClassifyOutput(s.SinkName+" "+s.Device, s.ActivePortName),
		})
	}
	return devices
}

func (p *pulseSystem) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *pulseSystem) SetMode(m Mode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

func (p *pulseSystem) SpeakerphoneOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speakerOn
}

func (p *pulseSystem) SetSpeakerphoneOn(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on == p.speakerOn {
		return
	}

	var target string
	if on {
		if def, err := p.client.DefaultSink(); err == nil && def != nil {
			p.restoreSink = def.ID()
		}
		devices, err := p.Outputs()
		if err != nil {
			log.Warnf("pulse speakerphone: %v", err)
			return
		}
		for _, d := range devices {
			if d.Type == TypeBuiltinSpeaker {
				target = d.ID
				break
			}
		}
	} else {
		target = p.restoreSink
	}

	if target != "" {
		if err := p.client.RawRequest(&proto.SetDefaultSink{SinkName: target}, nil); err != nil {
			log.Warnf("pulse set default sink %s: %v", target, err)
			return
		}
	}
	p.speakerOn = on
}

func (p *pulseSystem) MicrophoneMute() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.micMuted
}

func (p *pulseSystem) SetMicrophoneMute(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := &proto.SetSourceMute{
		SourceIndex: proto.Undefined,
		SourceName:  "@DEFAULT_SOURCE@",
		Mute:        on,
	}
	if err := p.client.RawRequest(req, nil); err != nil {
		log.Warnf("pulse set source mute: %v", err)
		return
	}
	p.micMuted = on
}

func (p *pulseSystem) HasTelephony() bool { return false }

func (p *pulseSystem) RequestAudioFocusLegacy(h FocusHandler, _ Stream, _ FocusGain) FocusResult {
	p.mu.Lock()
	p.focus[h] = true
	p.mu.Unlock()
	return FocusRequestGranted
}

func (p *pulseSystem) AbandonAudioFocusLegacy(h FocusHandler) FocusResult {
	p.mu.Lock()
	delete(p.focus, h)
	p.mu.Unlock()
	return FocusRequestGranted
}

func (p *pulseSystem) RequestAudioFocus(req *FocusRequest) FocusResult {
	return p.RequestAudioFocusLegacy(req.Handler, StreamVoiceCall, req.Gain)
}

func (p *pulseSystem) AbandonAudioFocusRequest(req *FocusRequest) FocusResult {
	return p.AbandonAudioFocusLegacy(req.Handler)
}

func (p *pulseSystem) RegisterHeadsetReceiver(fn func(HeadsetPlug)) (func() error, error) {
	return watchHeadset(p.Outputs, hotplugInterval, fn), nil
}

func (p *pulseSystem) Close() {
	p.client.Close()
}
