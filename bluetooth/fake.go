package bluetooth

import (
	"errors"
	"sync"
)

// FakeAdapter is a scriptable Adapter for tests. Broadcasts are delivered
// synchronously to the registered Events, which re-post them.
type FakeAdapter struct {
	NoAdapter    bool
	NoPermission bool
	ListenErr    error
	ProfileErr   error
	StartSCOErr  error

	// AutoAudio makes StartSCO report the voice link as connected.
	AutoAudio bool

	mu           sync.Mutex
	events       Events
	headsets     []HeadsetDevice
	audioUp      bool
	scoRouting   bool
	StartSCOs    int
	StopSCOs     int
	ProfileOpen  bool
	ProfileClose int
}

func (f *FakeAdapter) Present() bool       { return !f.NoAdapter }
func (f *FakeAdapter) HasPermission() bool { return !f.NoPermission }
func (f *FakeAdapter) Describe() string    { return "fake bluetooth adapter" }

func (f *FakeAdapter) Listen(ev Events) error {
	if f.ListenErr != nil {
		return f.ListenErr
	}
	f.mu.Lock()
	f.events = ev
	f.mu.Unlock()
	return nil
}

func (f *FakeAdapter) Unlisten() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func (f *FakeAdapter) Listening() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events != nil
}

func (f *FakeAdapter) OpenProfile() error {
	if f.ProfileErr != nil {
		return f.ProfileErr
	}
	f.mu.Lock()
	f.ProfileOpen = true
	ev := f.events
	f.mu.Unlock()
	if ev != nil {
		ev.ProfileConnected()
	}
	return nil
}

func (f *FakeAdapter) CloseProfile() {
	f.mu.Lock()
	f.ProfileOpen = false
	f.ProfileClose++
	f.mu.Unlock()
}

func (f *FakeAdapter) ConnectedHeadsets() []HeadsetDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]HeadsetDevice(nil), f.headsets...)
}

func (f *FakeAdapter) IsAudioConnected(HeadsetDevice) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioUp
}

func (f *FakeAdapter) StartSCO() error {
	f.mu.Lock()
	f.StartSCOs++
	err := f.StartSCOErr
	auto := f.AutoAudio && err == nil
	f.mu.Unlock()
	if auto {
		f.AudioConnected()
	}
	return err
}

func (f *FakeAdapter) StopSCO() error {
	f.mu.Lock()
	f.StopSCOs++
	f.audioUp = false
	f.mu.Unlock()
	return nil
}

func (f *FakeAdapter) SetSCORouting(on bool) {
	f.mu.Lock()
	f.scoRouting = on
	f.mu.Unlock()
}

func (f *FakeAdapter) SCORouting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scoRouting
}

func (f *FakeAdapter) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StartSCOs, f.StopSCOs
}

func (f *FakeAdapter) listener() Events {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

// ConnectHeadset pairs dev and broadcasts the connection.
func (f *FakeAdapter) ConnectHeadset(dev HeadsetDevice) {
	f.mu.Lock()
	f.headsets = append(f.headsets, dev)
	f.mu.Unlock()
	if ev := f.listener(); ev != nil {
		ev.HeadsetConnectionChanged(dev, Connected, false)
	}
}

// AddHeadset pairs dev without a broadcast, as if it was connected before
// the monitor started.
func (f *FakeAdapter) AddHeadset(dev HeadsetDevice) {
	f.mu.Lock()
	f.headsets = append(f.headsets, dev)
	f.mu.Unlock()
}

func (f *FakeAdapter) DisconnectHeadset() {
	f.mu.Lock()
	var dev HeadsetDevice
	if len(f.headsets) > 0 {
		dev = f.headsets[0]
		f.headsets = f.headsets[1:]
	}
	f.audioUp = false
	f.mu.Unlock()
	if ev := f.listener(); ev != nil {
		ev.HeadsetConnectionChanged(dev, Disconnected, false)
	}
}

func (f *FakeAdapter) AudioConnected() {
	f.mu.Lock()
	f.audioUp = true
	var dev HeadsetDevice
	if len(f.headsets) > 0 {
		dev = f.headsets[0]
	}
	f.mu.Unlock()
	if ev := f.listener(); ev != nil {
		ev.HeadsetAudioChanged(dev, AudioConnected, false)
	}
}

// SetAudioUp changes the link state without a broadcast.
func (f *FakeAdapter) SetAudioUp(up bool) {
	f.mu.Lock()
	f.audioUp = up
	f.mu.Unlock()
}

func (f *FakeAdapter) AudioDisconnected(sticky bool) {
	f.mu.Lock()
	f.audioUp = false
	var dev HeadsetDevice
	if len(f.headsets) > 0 {
		dev = f.headsets[0]
	}
	f.mu.Unlock()
	if ev := f.listener(); ev != nil {
		ev.HeadsetAudioChanged(dev, AudioDisconnected, sticky)
	}
}

func (f *FakeAdapter) LoseProfile() {
	if ev := f.listener(); ev != nil {
		ev.ProfileDisconnected()
	}
}

var ErrFakeSCO = errors.New("fake: SCO unavailable")
