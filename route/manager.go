// Package route decides which audio output a call uses. It reconciles wired
// headset broadcasts, the Bluetooth headset state machine, the proximity
// sensor and the user's choice into one selected device and applies it.
package route

import (
	"errors"
	"fmt"

	"rtcaudio/audio"
	"rtcaudio/bluetooth"
	"rtcaudio/log"
	"rtcaudio/looper"
	"rtcaudio/proximity"
)

type Option func(*Manager)

func WithSpeakerphonePolicy(p SpeakerphonePolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithFocusChangeHandler is called on the control loop for every audio focus
// change, after it has been logged.
func WithFocusChangeHandler(fn func(audio.FocusChange)) Option {
	return func(m *Manager) { m.onFocus = fn }
}

// Manager owns the OS audio state for the duration of a call. Every method
// must be called on the control loop passed to New.
type Manager struct {
	sys     audio.System
	loop    *looper.Loop
	bt      *bluetooth.Monitor
	prox    *proximity.Monitor
	policy  SpeakerphonePolicy
	onFocus func(audio.FocusChange)

	state    State
	listener Listener

	savedMode    audio.Mode
	savedSpeaker bool
	savedMic     bool

	hasWiredHeadset bool
	defaultDevice   Device
	selected        Device
	userSelected    Device
	available       DeviceSet

	focus       *focusListener
	focusReq    *audio.FocusRequest
	unregister  func() error
	proxStarted bool
	changes     int
}

func New(sys audio.System, bt bluetooth.Adapter, sensors proximity.SensorManager, loop *looper.Loop, opts ...Option) *Manager {
	m := &Manager{
		sys:   sys,
		loop:  loop,
		state: Uninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bt = bluetooth.NewMonitor(bt, loop, m.UpdateAudioDeviceState)
	m.prox = proximity.NewMonitor(proximity.PostTo(loop, sensors), m.onProximitySensorChangedState)

	if m.policy == PolicyOff && m.hasEarpiece() {
		m.defaultDevice = Earpiece
	} else {
		m.defaultDevice = SpeakerPhone
	}
	log.Debugf("route: created, speakerphone=%s default=%s", m.policy, m.defaultDevice)
	return m
}

// checkLoop panics when called off the control loop.
func (m *Manager) checkLoop() {
	if m.loop != nil && !m.loop.InTask() {
		panic("route: not called on the control loop")
	}
}

func (m *Manager) Start(l Listener) {
	m.checkLoop()
	log.Debug("route: start")
	if m.state == Running {
		log.Error("route: audio manager is already active")
		return
	}

	m.listener = l
	m.state = Running

	m.savedMode = m.sys.Mode()
	m.savedSpeaker = m.sys.SpeakerphoneOn()
	m.savedMic = m.sys.MicrophoneMute()
	m.hasWiredHeadset = audio.HasWiredHeadset(m.sys)

	m.requestFocus()

	m.sys.SetMode(audio.ModeInCommunication)
	m.SetMicrophoneMute(false)

	m.userSelected = None
	m.selected = None
	m.available = 0
	m.changes = 0

	m.bt.Start()
	m.proxStarted = m.prox.Start()
	if !m.proxStarted {
		log.Debug("route: no proximity sensor")
	}

	m.UpdateAudioDeviceState()

	unregister, err := m.sys.RegisterHeadsetReceiver(func(ev audio.HeadsetPlug) {
		m.loop.Post(func() { m.onHeadsetPlug(ev) })
	})
	if err != nil {
		log.Warnf("route: headset receiver: %v", err)
	} else {
		m.unregister = unregister
	}
	log.Debug("route: started")
}

func (m *Manager) requestFocus() {
	m.focus = &focusListener{m: m}
	var result audio.FocusResult
	if fr, ok := m.sys.(audio.FocusRequester); ok {
		m.focusReq = &audio.FocusRequest{
			Gain:                audio.GainTransient,
			Usage:               audio.UsageVoiceCommunication,
			Content:             audio.ContentSpeech,
			Handler:             m.focus,
			AllowCaptureByNone:  true,
			HapticChannelsMuted: true,
		}
		result = fr.RequestAudioFocus(m.focusReq)
	} else {
		result = m.sys.RequestAudioFocusLegacy(m.focus, audio.StreamVoiceCall, audio.GainTransient)
	}
	if result == audio.FocusRequestGranted {
		log.Debug("route: audio focus granted for voice call streams")
	} else {
		log.Error("route: audio focus request failed")
	}
}

// Stop restores the pre-call audio state. Every step runs even if an earlier
// one fails.
func (m *Manager) Stop() {
	m.checkLoop()
	log.Debug("route: stop")
	if m.state != Running {
		log.Errorf("route: trying to stop in incorrect state %s", m.state)
		return
	}
	m.state = Uninitialized

	var errs []error
	if m.unregister != nil {
		if err := m.unregister(); err != nil {
			errs = append(errs, fmt.Errorf("unregister headset receiver: %w", err))
		}
		m.unregister = nil
	}

	m.bt.Stop()

	m.SetSpeakerphoneOn(m.savedSpeaker)
	m.SetMicrophoneMute(m.savedMic)
	m.sys.SetMode(m.savedMode)

	if err := m.abandonFocus(); err != nil {
		errs = append(errs, err)
	}

	if m.proxStarted {
		m.prox.Stop()
		m.proxStarted = false
	}

	m.listener = nil
	if err := errors.Join(errs...); err != nil {
		log.Warnf("route: stop: %v", err)
	}
	log.Debug("route: stopped")
}

func (m *Manager) abandonFocus() error {
	var result audio.FocusResult
	switch {
	case m.focusReq != nil:
		fr, ok := m.sys.(audio.FocusRequester)
		if !ok {
			return errors.New("abandon focus: system lost focus request support")
		}
		result = fr.AbandonAudioFocusRequest(m.focusReq)
	case m.focus != nil:
		result = m.sys.AbandonAudioFocusLegacy(m.focus)
	default:
		return nil
	}
	m.focusReq = nil
	m.focus = nil
	if result != audio.FocusRequestGranted {
		return errors.New("abandon focus: request failed")
	}
	log.Debug("route: abandoned audio focus for voice call streams")
	return nil
}

// SelectAudioDevice records d as the user's choice. Devices that are not
// currently available are ignored.
func (m *Manager) SelectAudioDevice(d Device) {
	m.checkLoop()
	if !m.available.Contains(d) {
		log.Errorf("route: can not select %s from available %s", d, m.available)
		return
	}
	m.userSelected = d
	m.UpdateAudioDeviceState()
}

// SetDefaultAudioDevice changes the fallback used when neither a headset nor
// Bluetooth is in use. Earpiece falls back to SpeakerPhone on hardware
// without one.
func (m *Manager) SetDefaultAudioDevice(d Device) {
	m.checkLoop()
	switch d {
	case SpeakerPhone:
		m.defaultDevice = d
	case Earpiece:
		if m.hasEarpiece() {
			m.defaultDevice = d
		} else {
			m.defaultDevice = SpeakerPhone
		}
	default:
		log.Errorf("route: invalid default audio device %s", d)
	}
	log.Debugf("route: default audio device=%s", m.defaultDevice)
	m.UpdateAudioDeviceState()
}

func (m *Manager) AudioDevices() DeviceSet {
	m.checkLoop()
	return m.available
}

func (m *Manager) SelectedAudioDevice() Device {
	m.checkLoop()
	return m.selected
}

func (m *Manager) UserSelectedAudioDevice() Device {
	m.checkLoop()
	return m.userSelected
}

func (m *Manager) DefaultAudioDevice() Device {
	m.checkLoop()
	return m.defaultDevice
}

func (m *Manager) State() State {
	m.checkLoop()
	return m.state
}

func (m *Manager) BluetoothState() bluetooth.State {
	m.checkLoop()
	return m.bt.State()
}

// RouteChanges counts applied route changes since Start.
func (m *Manager) RouteChanges() int {
	m.checkLoop()
	return m.changes
}

// SetSpeakerphoneOn reports whether the flag changed and the change stuck.
func (m *Manager) SetSpeakerphoneOn(on bool) bool {
	if m.sys.SpeakerphoneOn() == on {
		return false
	}
	m.sys.SetSpeakerphoneOn(on)
	return m.sys.SpeakerphoneOn() == on
}

// SetMicrophoneMute reports whether the mute state changed and the change
// stuck.
func (m *Manager) SetMicrophoneMute(on bool) bool {
	if m.sys.MicrophoneMute() == on {
		return false
	}
	m.sys.SetMicrophoneMute(on)
	return m.sys.MicrophoneMute() == on
}

func (m *Manager) hasEarpiece() bool {
	return m.sys.HasTelephony()
}

func (m *Manager) onHeadsetPlug(ev audio.HeadsetPlug) {
	if m.state != Running {
		return
	}
	plug := "unplugged"
	if ev.State == audio.HeadsetPlugged {
		plug = "plugged"
	}
	mic := "no mic"
	if ev.Microphone == audio.HeadsetHasMic {
		mic = "mic"
	}
	log.Debugf("route: headset broadcast s=%s, m=%s, n=%s, sb=%v", plug, mic, ev.Name, ev.InitialSticky)
	m.hasWiredHeadset = ev.State == audio.HeadsetPlugged
	m.UpdateAudioDeviceState()
}

// onProximitySensorChangedState switches between earpiece and speaker when
// those are the only two choices. An explicit user choice is never
// overridden.
func (m *Manager) onProximitySensorChangedState() {
	if m.state != Running || m.policy != PolicyAuto {
		return
	}
	if m.available != NewDeviceSet(Earpiece, SpeakerPhone) {
		return
	}
	if m.userSelected != None {
		log.Debugf("route: proximity ignored, user selected %s", m.userSelected)
		return
	}
	target := SpeakerPhone
	if m.prox.SensorReportsNearState() {
		target = Earpiece
	}
	if target == m.selected {
		return
	}
	m.setAudioDeviceInternal(target)
	m.notify()
}

func (m *Manager) setAudioDeviceInternal(d Device) {
	log.Debugf("route: setAudioDeviceInternal(device=%s)", d)
	if !m.available.Contains(d) {
		panic(fmt.Sprintf("route: selecting %s outside available %s", d, m.available))
	}
	switch d {
	case SpeakerPhone:
		m.SetSpeakerphoneOn(true)
	case Earpiece, WiredHeadset, Bluetooth:
		m.SetSpeakerphoneOn(false)
	default:
		log.Error("route: invalid audio device selection")
	}
	m.selected = d
}

func (m *Manager) notify() {
	m.changes++
	log.RouteChanged(m.selected.String(), m.available.Strings(), m.userSelected.String())
	if m.listener != nil {
		m.listener.OnAudioDeviceChanged(m.selected, m.available)
	}
}

// UpdateAudioDeviceState rebuilds the set of available devices and selects
// one. It notifies the listener only when the selection or the set changed.
func (m *Manager) UpdateAudioDeviceState() {
	m.checkLoop()
	if m.state != Running {
		return
	}
	bt := m.bt.State()
	log.Debugf("route: update wired=%v bt=%s available=%s selected=%s user=%s",
		m.hasWiredHeadset, bt, m.available, m.selected, m.userSelected)

	if bt == bluetooth.HeadsetAvailable || bt == bluetooth.HeadsetUnavailable || bt == bluetooth.SCODisconnecting {
		m.bt.UpdateDevice()
		bt = m.bt.State()
	}

	var set DeviceSet
	if bt == bluetooth.SCOConnected || bt == bluetooth.SCOConnecting || bt == bluetooth.HeadsetAvailable {
		set = set.With(Bluetooth)
	}
	if m.hasWiredHeadset {
		set = set.With(WiredHeadset)
	} else {
		set = set.With(SpeakerPhone)
		if m.hasEarpiece() {
			set = set.With(Earpiece)
		}
	}

	if bt == bluetooth.HeadsetUnavailable && m.userSelected == Bluetooth {
		m.userSelected = None
	}
	if m.hasWiredHeadset && m.userSelected == SpeakerPhone {
		m.userSelected = WiredHeadset
	}
	if !m.hasWiredHeadset && m.userSelected == WiredHeadset {
		m.userSelected = SpeakerPhone
	}

	needStart := bt == bluetooth.HeadsetAvailable &&
		(m.userSelected == None || m.userSelected == Bluetooth)
	needStop := (bt == bluetooth.SCOConnected || bt == bluetooth.SCOConnecting) &&
		m.userSelected != None && m.userSelected != Bluetooth
	if bt == bluetooth.HeadsetAvailable || bt == bluetooth.SCOConnecting || bt == bluetooth.SCOConnected {
		log.Debugf("route: need bluetooth audio start=%v stop=%v state=%s", needStart, needStop, bt)
	}

	if needStop {
		m.bt.StopScoAudio()
		m.bt.UpdateDevice()
	}
	if needStart && !needStop {
		if !m.bt.StartScoAudio() {
			set = set.Without(Bluetooth)
		}
	}

	setChanged := set != m.available
	m.available = set

	var next Device
	switch {
	case m.bt.State() == bluetooth.SCOConnected:
		next = Bluetooth
	case m.hasWiredHeadset:
		next = WiredHeadset
	default:
		next = m.defaultDevice
	}

	if next != m.selected || setChanged {
		m.setAudioDeviceInternal(next)
		log.Debugf("route: new device status available=%s selected=%s", m.available, m.selected)
		m.notify()
	}
}

type focusListener struct{ m *Manager }

func (f *focusListener) OnAudioFocusChange(c audio.FocusChange) {
	f.m.loop.Post(func() {
		log.Debugf("route: onAudioFocusChange %s", c)
		if f.m.onFocus != nil {
			f.m.onFocus(c)
		}
	})
}
