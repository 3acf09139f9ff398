package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"rtcaudio/beep"
	"rtcaudio/route"
	"rtcaudio/session"
)

// EventSink abstracts the display layer so the Bubble Tea TUI and the
// headless console receive the same call events.
type EventSink interface {
	Route(selected route.Device, available route.DeviceSet)
	IceState(state session.IceConnectionState)
	Muted(muted bool)
	RemoteLevel(level float64)
	LocalSignal(text string, copied bool)
	Status(text string)
	Error(text string)
}

// sessionEvents forwards session callbacks to the sink and to the
// signaling state of the call.
type sessionEvents struct {
	session.NopListener
	sink   EventSink
	sig    *signal
	remote *remoteAudio

	onRoute func(selected route.Device, available route.DeviceSet)
}

func (e *sessionEvents) OnLocalSessionDescription(d session.SessionDescription) {
	e.sig.setDescription(d)
}

func (e *sessionEvents) OnLocalIceCandidate(c session.IceCandidate) {
	e.sig.addCandidate(c)
}

func (e *sessionEvents) OnIceConnectionStateChange(st session.IceConnectionState) {
	e.remote.setConnected(st == session.IceConnected || st == session.IceCompleted)
	e.sink.IceState(st)
	if st == session.IceFailed {
		beep.Play(beep.CueError)
	}
}

func (e *sessionEvents) OnRemoteStreamAdded(id string) {
	e.sink.Status("remote stream " + id + " added")
}

func (e *sessionEvents) OnRemoteStreamRemoved(id string) {
	e.sink.Status("remote stream " + id + " removed")
}

func (e *sessionEvents) OnError(msg string) {
	e.sink.Error(msg)
	beep.Play(beep.CueError)
}

func (e *sessionEvents) OnAudioDeviceChanged(selected route.Device, available route.DeviceSet) {
	e.sink.Route(selected, available)
	beep.Play(beep.CueRoute)
	if e.onRoute != nil {
		e.onRoute(selected, available)
	}
}

func (e *sessionEvents) OnRemoteAudioLevel(level float64) {
	e.remote.report(level)
	e.sink.RemoteLevel(level)
}

// signal accumulates the local description and its candidates into one
// block of SDP text the other side can paste. Candidates are appended as
// a=candidate lines to the last media section.
type signal struct {
	mu         sync.Mutex
	desc       *session.SessionDescription
	candidates []string
	publish    func(text string)
}

func (s *signal) setDescription(d session.SessionDescription) {
	s.mu.Lock()
	s.desc = &d
	text := s.textLocked()
	s.mu.Unlock()
	s.publish(text)
}

func (s *signal) addCandidate(c session.IceCandidate) {
	s.mu.Lock()
	s.candidates = append(s.candidates, "a="+c.Sdp)
	if s.desc == nil {
		s.mu.Unlock()
		return
	}
	text := s.textLocked()
	s.mu.Unlock()
	s.publish(text)
}

func (s *signal) textLocked() string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(s.desc.Description, "\r\n"))
	b.WriteString("\r\n")
	for _, c := range s.candidates {
		b.WriteString(c)
		b.WriteString("\r\n")
	}
	return b.String()
}

// isOwn reports whether text is one of the blocks this side published.
func (s *signal) isOwn(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc == nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(text), strings.TrimSpace(s.desc.Description))
}

// consoleSink prints events as plain lines for headless runs.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleSink) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *consoleSink) Route(selected route.Device, available route.DeviceSet) {
	c.printf("route: %s %s", selected, available)
}

func (c *consoleSink) IceState(st session.IceConnectionState) { c.printf("ice: %s", st) }
func (c *consoleSink) Status(text string)                     { c.printf("%s", text) }
func (c *consoleSink) Error(text string)                      { c.printf("error: %s", text) }
func (c *consoleSink) RemoteLevel(float64)                    {}

func (c *consoleSink) Muted(muted bool) {
	if muted {
		c.printf("mic: muted")
	} else {
		c.printf("mic: live")
	}
}

func (c *consoleSink) LocalSignal(text string, copied bool) {
	note := ""
	if copied {
		note = " (copied)"
	}
	c.printf("--- local description%s ---\n%s---", note, strings.ReplaceAll(text, "\r\n", "\n"))
}

// forwardSink passes events to a sink installed after the call is built.
// Events before that are dropped.
type forwardSink struct {
	mu sync.RWMutex
	to EventSink
}

func (f *forwardSink) set(s EventSink) {
	f.mu.Lock()
	f.to = s
	f.mu.Unlock()
}

func (f *forwardSink) with(fn func(EventSink)) {
	f.mu.RLock()
	to := f.to
	f.mu.RUnlock()
	if to != nil {
		fn(to)
	}
}

func (f *forwardSink) Route(selected route.Device, available route.DeviceSet) {
	f.with(func(s EventSink) { s.Route(selected, available) })
}

func (f *forwardSink) IceState(st session.IceConnectionState) {
	f.with(func(s EventSink) { s.IceState(st) })
}

func (f *forwardSink) Muted(muted bool)          { f.with(func(s EventSink) { s.Muted(muted) }) }
func (f *forwardSink) RemoteLevel(level float64) { f.with(func(s EventSink) { s.RemoteLevel(level) }) }
func (f *forwardSink) Status(text string)        { f.with(func(s EventSink) { s.Status(text) }) }
func (f *forwardSink) Error(text string)         { f.with(func(s EventSink) { s.Error(text) }) }

func (f *forwardSink) LocalSignal(text string, copied bool) {
	f.with(func(s EventSink) { s.LocalSignal(text, copied) })
}
