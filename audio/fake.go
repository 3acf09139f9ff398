package audio

import (
	"errors"
	"sync"
)

// FakeSystem is an in-memory System for tests. It records every mutation and
// lets tests plug and unplug headsets and deliver focus changes.
type FakeSystem struct {
	mu sync.Mutex

	mode      Mode
	speakerOn bool
	micMuted  bool
	telephony bool

	outputs    []DeviceInfo
	outputsErr error

	FocusResult   FocusResult
	legacyFocus   map[FocusHandler]bool
	focusRequests []*FocusRequest

	receivers     map[int]func(HeadsetPlug)
	nextReceiver  int
	UnregisterErr error

	// IgnoreSpeaker makes SetSpeakerphoneOn a no-op, like a platform that
	// refuses to switch the route.
	IgnoreSpeaker bool

	SpeakerSets int
	MicSets     int
	ModeSets    int
}

func NewFakeSystem(telephony bool) *FakeSystem {
	return &FakeSystem{
		telephony:   telephony,
		FocusResult: FocusRequestGranted,
		legacyFocus: make(map[FocusHandler]bool),
		receivers:   make(map[int]func(HeadsetPlug)),
		outputs: []DeviceInfo{
			{ID: "speaker", Name: "Built-in Speaker", Type: TypeBuiltinSpeaker},
		},
	}
}

// SetInitial seeds the pre-call state without counting it as a mutation.
func (f *FakeSystem) SetInitial(mode Mode, speakerOn, micMuted bool) {
	f.mu.Lock()
	f.mode, f.speakerOn, f.micMuted = mode, speakerOn, micMuted
	f.mu.Unlock()
}

func (f *FakeSystem) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *FakeSystem) SetMode(m Mode) {
	f.mu.Lock()
	f.mode = m
	f.ModeSets++
	f.mu.Unlock()
}

func (f *FakeSystem) SpeakerphoneOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speakerOn
}

func (f *FakeSystem) SetSpeakerphoneOn(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SpeakerSets++
	if !f.IgnoreSpeaker {
		f.speakerOn = on
	}
}

func (f *FakeSystem) MicrophoneMute() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.micMuted
}

func (f *FakeSystem) SetMicrophoneMute(on bool) {
	f.mu.Lock()
	f.micMuted = on
	f.MicSets++
	f.mu.Unlock()
}

func (f *FakeSystem) HasTelephony() bool { return f.telephony }

func (f *FakeSystem) Outputs() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outputsErr != nil {
		return nil, f.outputsErr
	}
	return append([]DeviceInfo(nil), f.outputs...), nil
}

// FailOutputs makes Outputs return err until called again with nil.
func (f *FakeSystem) FailOutputs(err error) {
	f.mu.Lock()
	f.outputsErr = err
	f.mu.Unlock()
}

func (f *FakeSystem) RequestAudioFocusLegacy(h FocusHandler, _ Stream, _ FocusGain) FocusResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FocusResult == FocusRequestGranted {
		f.legacyFocus[h] = true
	}
	return f.FocusResult
}

func (f *FakeSystem) AbandonAudioFocusLegacy(h FocusHandler) FocusResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.legacyFocus, h)
	return FocusRequestGranted
}

func (f *FakeSystem) RequestAudioFocus(req *FocusRequest) FocusResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FocusResult == FocusRequestGranted {
		f.focusRequests = append(f.focusRequests, req)
	}
	return f.FocusResult
}

func (f *FakeSystem) AbandonAudioFocusRequest(req *FocusRequest) FocusResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.focusRequests {
		if r == req {
			f.focusRequests = append(f.focusRequests[:i], f.focusRequests[i+1:]...)
			break
		}
	}
	return FocusRequestGranted
}

// FocusHeld reports whether any focus request or legacy handler is active.
func (f *FakeSystem) FocusHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.legacyFocus) > 0 || len(f.focusRequests) > 0
}

// FocusRequests returns the active modern focus requests.
func (f *FakeSystem) FocusRequests() []*FocusRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FocusRequest(nil), f.focusRequests...)
}

// ChangeFocus delivers c to every focus holder.
func (f *FakeSystem) ChangeFocus(c FocusChange) {
	f.mu.Lock()
	var handlers []FocusHandler
	for h := range f.legacyFocus {
		handlers = append(handlers, h)
	}
	for _, r := range f.focusRequests {
		handlers = append(handlers, r.Handler)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h.OnAudioFocusChange(c)
		}
	}
}

// RegisterHeadsetReceiver replays the current headset state as an initial
// sticky broadcast, then delivers PlugHeadset/UnplugHeadset calls.
func (f *FakeSystem) RegisterHeadsetReceiver(fn func(HeadsetPlug)) (func() error, error) {
	f.mu.Lock()
	id := f.nextReceiver
	f.nextReceiver++
	f.receivers[id] = fn
	sticky := headsetState(f.outputs)
	f.mu.Unlock()

	sticky.InitialSticky = true
	fn(sticky)

	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.receivers, id)
		return f.UnregisterErr
	}, nil
}

// Receivers returns the number of registered headset receivers.
func (f *FakeSystem) Receivers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receivers)
}

func (f *FakeSystem) PlugHeadset(name string, mic bool) {
	f.mu.Lock()
	typ := TypeWiredHeadphones
	if mic {
		typ = TypeWiredHeadset
	}
	f.outputs = append(f.outputs, DeviceInfo{ID: "wired", Name: name, Type: typ})
	ev := HeadsetPlug{State: HeadsetPlugged, Name: name}
	if mic {
		ev.Microphone = HeadsetHasMic
	}
	f.mu.Unlock()
	f.broadcast(ev)
}

func (f *FakeSystem) UnplugHeadset() {
	f.mu.Lock()
	kept := f.outputs[:0]
	for _, d := range f.outputs {
		if !d.Type.IsWired() {
			kept = append(kept, d)
		}
	}
	f.outputs = kept
	f.mu.Unlock()
	f.broadcast(HeadsetPlug{State: HeadsetUnplugged})
}

func (f *FakeSystem) broadcast(ev HeadsetPlug) {
	f.mu.Lock()
	var fns []func(HeadsetPlug)
	for _, fn := range f.receivers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// LegacyOnly hides the FocusRequester methods of sys.
func LegacyOnly(sys System) System {
	return struct{ System }{sys}
}

var ErrFakeOutputs = errors.New("fake: outputs unavailable")
