// Package hotkey delivers a global Ctrl+Shift+Space key combination used to
// mute and unmute the microphone during a call.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// notify does a non-blocking send. Presses are edge events; a slow reader
// only needs the latest one.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
