// Package bluetooth tracks the Bluetooth headset profile and the SCO voice
// link of a call.
package bluetooth

import (
	"time"

	"rtcaudio/log"
)

const (
	// A headset gets this many SCO attempts before it is skipped until it
	// reconnects.
	maxSCOAttempts = 2
	scoTimeout     = 4 * time.Second
)

type State int

const (
	Uninitialized State = iota
	Error
	HeadsetUnavailable
	HeadsetAvailable
	SCODisconnecting
	SCOConnecting
	SCOConnected
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Error:
		return "ERROR"
	case HeadsetUnavailable:
		return "HEADSET_UNAVAILABLE"
	case HeadsetAvailable:
		return "HEADSET_AVAILABLE"
	case SCODisconnecting:
		return "SCO_DISCONNECTING"
	case SCOConnecting:
		return "SCO_CONNECTING"
	case SCOConnected:
		return "SCO_CONNECTED"
	}
	return "INVALID"
}

type HeadsetDevice struct {
	Address string
	Name    string
}

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (c ConnectionState) String() string {
	switch c {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	}
	return "INVALID"
}

type AudioState int

const (
	AudioDisconnected AudioState = iota
	AudioConnecting
	AudioConnected
)

func (a AudioState) String() string {
	switch a {
	case AudioDisconnected:
		return "AUDIO_DISCONNECTED"
	case AudioConnecting:
		return "AUDIO_CONNECTING"
	case AudioConnected:
		return "AUDIO_CONNECTED"
	}
	return "INVALID"
}

// Events are delivered by an Adapter from arbitrary goroutines.
type Events interface {
	ProfileConnected()
	ProfileDisconnected()
	HeadsetConnectionChanged(dev HeadsetDevice, state ConnectionState, initialSticky bool)
	HeadsetAudioChanged(dev HeadsetDevice, state AudioState, initialSticky bool)
}

// Adapter is the platform Bluetooth stack.
type Adapter interface {
	Present() bool
	HasPermission() bool
	Describe() string

	// Listen starts delivering connection and audio broadcasts to ev.
	Listen(ev Events) error
	Unlisten()

	// OpenProfile asynchronously connects the headset profile; completion is
	// reported through Events.ProfileConnected.
	OpenProfile() error
	CloseProfile()

	ConnectedHeadsets() []HeadsetDevice
	IsAudioConnected(dev HeadsetDevice) bool

	StartSCO() error
	StopSCO() error
	SetSCORouting(on bool)
}

// Scheduler is the owner's control thread.
type Scheduler interface {
	Post(fn func()) bool
	PostDelayed(d time.Duration, fn func()) (cancel func())
}

type event int

const (
	evStartFailed event = iota
	evStarted
	evStopped
	evProfileLost
	evHeadsetFound
	evNoHeadset
	evSCOStart
	evSCOStartFailed
	evSCOStop
	evAudioConnected
	evSCOTimeoutConnected
)

func (e event) String() string {
	switch e {
	case evStartFailed:
		return "start failed"
	case evStarted:
		return "started"
	case evStopped:
		return "stopped"
	case evProfileLost:
		return "profile disconnected"
	case evHeadsetFound:
		return "headset found"
	case evNoHeadset:
		return "no headset"
	case evSCOStart:
		return "sco start"
	case evSCOStartFailed:
		return "sco start failed"
	case evSCOStop:
		return "sco stop"
	case evAudioConnected:
		return "audio connected"
	case evSCOTimeoutConnected:
		return "audio connected at timeout"
	}
	return "unknown"
}

// next is the transition table. ok is false when ev is not valid in s.
func next(s State, ev event) (State, bool) {
	switch ev {
	case evStopped:
		return Uninitialized, true
	case evStartFailed:
		return Error, s == Uninitialized
	case evStarted:
		return HeadsetUnavailable, s == Uninitialized
	case evProfileLost:
		return HeadsetUnavailable, s != Uninitialized && s != Error
	case evHeadsetFound:
		switch s {
		case HeadsetUnavailable, HeadsetAvailable, SCODisconnecting:
			return HeadsetAvailable, true
		}
	case evNoHeadset:
		switch s {
		case HeadsetUnavailable, HeadsetAvailable, SCODisconnecting, SCOConnecting, SCOConnected:
			return HeadsetUnavailable, true
		}
	case evSCOStart:
		return SCOConnecting, s == HeadsetAvailable
	case evSCOStartFailed:
		return HeadsetAvailable, s == SCOConnecting
	case evSCOStop:
		return SCODisconnecting, s == SCOConnecting || s == SCOConnected
	case evAudioConnected, evSCOTimeoutConnected:
		return SCOConnected, s == SCOConnecting
	}
	return s, false
}

// Monitor owns the headset profile and SCO lifecycle. All methods must run
// on the scheduler's control thread.
type Monitor struct {
	adapter  Adapter
	sched    Scheduler
	onChange func()

	state       State
	scoAttempts int
	profile     bool
	listening   bool
	device      *HeadsetDevice
	cancelTimer func()
}

func NewMonitor(adapter Adapter, sched Scheduler, onChange func()) *Monitor {
	return &Monitor{adapter: adapter, sched: sched, onChange: onChange}
}

func (m *Monitor) State() State { return m.state }

// Device returns the headset in use, or nil.
func (m *Monitor) Device() *HeadsetDevice { return m.device }

func (m *Monitor) transition(ev event) bool {
	to, ok := next(m.state, ev)
	if !ok {
		log.Debugf("bluetooth: ignoring %s in %s", ev, m.state)
		return false
	}
	if to != m.state {
		log.BluetoothTransition(m.state.String(), to.String(), ev.String())
		m.state = to
	}
	return true
}

func (m *Monitor) Start() {
	if m.state != Uninitialized {
		log.Warnf("bluetooth: start in invalid state %s", m.state)
		return
	}
	m.scoAttempts = 0
	m.device = nil
	m.profile = false

	if !m.adapter.Present() {
		log.Warn("bluetooth: device does not support Bluetooth")
		m.transition(evStartFailed)
		return
	}
	if !m.adapter.HasPermission() {
		log.Warn("bluetooth: process lacks Bluetooth permission")
		m.transition(evStartFailed)
		return
	}
	log.Debug(m.adapter.Describe())

	if err := m.adapter.Listen(receiver{m}); err != nil {
		log.Errorf("bluetooth listen: %v", err)
		m.transition(evStartFailed)
		return
	}
	m.listening = true
	if err := m.adapter.OpenProfile(); err != nil {
		log.Errorf("bluetooth headset profile: %v", err)
		m.adapter.Unlisten()
		m.listening = false
		m.transition(evStartFailed)
		return
	}
	m.transition(evStarted)
	log.Debugf("bluetooth: start done, state=%s", m.state)
}

func (m *Monitor) Stop() {
	if m.state == Uninitialized {
		return
	}
	m.stopTimer()
	m.StopScoAudio()
	if m.listening {
		m.adapter.Unlisten()
		m.listening = false
	}
	if m.profile {
		m.adapter.CloseProfile()
		m.profile = false
	}
	m.device = nil
	m.transition(evStopped)
	log.Debugf("bluetooth: stop done, state=%s", m.state)
}

// StartScoAudio initiates the SCO link. It reports whether the attempt was
// started; the outcome arrives later as an audio state broadcast.
func (m *Monitor) StartScoAudio() bool {
	log.Debugf("bluetooth: startSco state=%s attempts=%d", m.state, m.scoAttempts)
	if m.scoAttempts >= maxSCOAttempts {
		log.Error("bluetooth: SCO connection fails, no more attempts")
		return false
	}
	if m.state != HeadsetAvailable {
		log.Error("bluetooth: SCO connection fails, no headset available")
		return false
	}
	m.transition(evSCOStart)
	if err := m.adapter.StartSCO(); err != nil {
		log.Warnf("bluetooth: start SCO: %v", err)
		m.transition(evSCOStartFailed)
		return false
	}
	m.adapter.SetSCORouting(true)
	m.scoAttempts++
	m.startTimer()
	return true
}

// StopScoAudio tears down the SCO link. It is best effort and does nothing
// unless a link is connecting or connected.
func (m *Monitor) StopScoAudio() {
	if m.state != SCOConnecting && m.state != SCOConnected {
		return
	}
	m.stopTimer()
	if err := m.adapter.StopSCO(); err != nil {
		log.Warnf("bluetooth: stop SCO: %v", err)
	}
	m.adapter.SetSCORouting(false)
	m.transition(evSCOStop)
}

// UpdateDevice re-reads the connected headsets. The route manager calls it
// whenever the headset may have changed state.
func (m *Monitor) UpdateDevice() {
	if m.state == Uninitialized || m.state == Error || !m.profile {
		return
	}
	devices := m.adapter.ConnectedHeadsets()
	if len(devices) == 0 {
		m.device = nil
		m.transition(evNoHeadset)
		log.Debug("bluetooth: no connected headset")
		return
	}
	dev := devices[0]
	m.device = &dev
	m.transition(evHeadsetFound)
	log.Debugf("bluetooth: connected headset name=%s address=%s", dev.Name, dev.Address)
}

func (m *Monitor) startTimer() {
	m.stopTimer()
	m.cancelTimer = m.sched.PostDelayed(scoTimeout, m.onSCOTimeout)
}

func (m *Monitor) stopTimer() {
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
	}
}

func (m *Monitor) onSCOTimeout() {
	m.cancelTimer = nil
	if m.state == Uninitialized || !m.profile {
		return
	}
	log.Debugf("bluetooth: SCO timeout, state=%s attempts=%d", m.state, m.scoAttempts)
	if m.state != SCOConnecting {
		return
	}
	connected := false
	if devices := m.adapter.ConnectedHeadsets(); len(devices) > 0 {
		dev := devices[0]
		m.device = &dev
		connected = m.adapter.IsAudioConnected(dev)
	}
	if connected {
		m.transition(evSCOTimeoutConnected)
		m.scoAttempts = 0
	} else {
		log.Warn("bluetooth: SCO failed to connect after timeout")
		m.StopScoAudio()
	}
	m.changed()
}

func (m *Monitor) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}

func (m *Monitor) onProfileConnected() {
	if m.state == Uninitialized || m.state == Error {
		return
	}
	log.Debugf("bluetooth: headset profile connected, state=%s", m.state)
	m.profile = true
	m.changed()
}

func (m *Monitor) onProfileDisconnected() {
	if m.state == Uninitialized || m.state == Error {
		return
	}
	log.Debugf("bluetooth: headset profile disconnected, state=%s", m.state)
	m.StopScoAudio()
	m.profile = false
	m.device = nil
	m.transition(evProfileLost)
	m.changed()
}

func (m *Monitor) onHeadsetConnection(dev HeadsetDevice, st ConnectionState, sticky bool) {
	if m.state == Uninitialized {
		return
	}
	log.Debugf("bluetooth: headset %s %s sticky=%v state=%s", dev.Name, st, sticky, m.state)
	switch st {
	case Connected:
		m.scoAttempts = 0
		m.changed()
	case Disconnected:
		m.StopScoAudio()
		m.changed()
	}
}

func (m *Monitor) onHeadsetAudio(dev HeadsetDevice, st AudioState, sticky bool) {
	if m.state == Uninitialized {
		return
	}
	log.Debugf("bluetooth: headset %s %s sticky=%v state=%s", dev.Name, st, sticky, m.state)
	switch st {
	case AudioConnected:
		m.stopTimer()
		if m.state == SCOConnecting {
			m.transition(evAudioConnected)
			m.scoAttempts = 0
		} else {
			log.Warnf("bluetooth: unexpected audio connected in %s", m.state)
		}
		m.changed()
	case AudioDisconnected:
		if sticky {
			log.Debug("bluetooth: ignoring initial sticky audio disconnected")
			return
		}
		m.changed()
	}
}

// receiver re-posts adapter broadcasts onto the control thread.
type receiver struct{ m *Monitor }

func (r receiver) ProfileConnected() {
	r.m.sched.Post(r.m.onProfileConnected)
}

func (r receiver) ProfileDisconnected() {
	r.m.sched.Post(r.m.onProfileDisconnected)
}

func (r receiver) HeadsetConnectionChanged(dev HeadsetDevice, st ConnectionState, sticky bool) {
	r.m.sched.Post(func() { r.m.onHeadsetConnection(dev, st, sticky) })
}

func (r receiver) HeadsetAudioChanged(dev HeadsetDevice, st AudioState, sticky bool) {
	r.m.sched.Post(func() { r.m.onHeadsetAudio(dev, st, sticky) })
}
