package hotkey

import (
	"sync"
	"time"
)

// MuteToggle turns hotkey presses into microphone mute states. A tap flips
// the state. A press held past longPress flips it back on release, so holding
// the key while muted talks and holding it while live coughs.
type MuteToggle struct {
	states chan bool
	done   chan struct{}
	once   sync.Once
}

func NewMuteToggle(hk Hotkey, longPress time.Duration, muted bool) *MuteToggle {
	m := &MuteToggle{
		states: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	go m.run(hk, longPress, muted)
	return m
}

// States delivers the new mute state after every change.
func (m *MuteToggle) States() <-chan bool { return m.states }

func (m *MuteToggle) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MuteToggle) emit(muted bool) bool {
	select {
	case m.states <- muted:
		return true
	case <-m.done:
		return false
	}
}

func (m *MuteToggle) run(hk Hotkey, longPress time.Duration, muted bool) {
	for {
		select {
		case <-hk.Keydown():
		case <-m.done:
			return
		}
		muted = !muted
		if !m.emit(muted) {
			return
		}

		timer := time.NewTimer(longPress)
		select {
		case <-timer.C:
			select {
			case <-hk.Keyup():
			case <-m.done:
				return
			}
			muted = !muted
			if !m.emit(muted) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
		case <-m.done:
			timer.Stop()
			return
		}
	}
}
