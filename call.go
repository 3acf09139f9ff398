package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"rtcaudio/beep"
	"rtcaudio/clipboard"
	"rtcaudio/log"
	"rtcaudio/route"
	"rtcaudio/session"
)

// controller is what the TUI keys and the stdin driver can do to a call.
type controller interface {
	remoteDescription(text string)
	remoteCandidate(line string)
	setMuted(muted bool)
	isMuted() bool
	selectDevice(d route.Device)
	switchScaling()
	quit()
}

// callSession is the part of session.Session a call drives.
type callSession interface {
	CreateOffer()
	CreateAnswer()
	SetRemoteDescription(session.SessionDescription)
	AddRemoteIceCandidate(session.IceCandidate)
	WriteLocalAudio(media.Sample) error
	SetMicrophoneEnabled(on bool)
	SelectAudioDevice(d route.Device)
	SwitchScalingType()
}

type call struct {
	sess   callSession
	sink   EventSink
	sig    *signal
	offer  bool
	muted  atomic.Bool
	remote atomic.Bool

	mu      sync.Mutex
	pending route.Device // wanted but not yet available

	done     chan struct{}
	quitOnce sync.Once
}

func newCall(sess callSession, sink EventSink, sig *signal, offer bool) *call {
	return &call{
		sess:  sess,
		sink:  sink,
		sig:   sig,
		offer: offer,
		done:  make(chan struct{}),
	}
}

// start creates the offer, or waits for one when answering.
func (c *call) start() {
	if c.offer {
		c.sink.Status("creating offer")
		c.sess.CreateOffer()
		return
	}
	c.sink.Status("waiting for the remote offer")
}

func (c *call) remoteDescription(text string) {
	if !c.remote.CompareAndSwap(false, true) {
		c.sink.Error("remote description already set")
		return
	}
	typ := session.SdpOffer
	if c.offer {
		typ = session.SdpAnswer
	}
	log.Infof("remote %s received, %d bytes", typ, len(text))
	c.sink.Status("remote " + strings.ToLower(typ.String()) + " received")
	c.sess.SetRemoteDescription(session.SessionDescription{Type: typ, Description: text})
	if !c.offer {
		c.sess.CreateAnswer()
	}
}

func (c *call) remoteCandidate(line string) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "a=")
	if !strings.HasPrefix(line, "candidate:") {
		return
	}
	c.sess.AddRemoteIceCandidate(session.IceCandidate{SdpMid: "0", Sdp: line})
}

func (c *call) setMuted(muted bool) {
	if c.muted.Swap(muted) == muted {
		return
	}
	c.sess.SetMicrophoneEnabled(!muted)
	c.sink.Muted(muted)
	if muted {
		beep.Play(beep.CueMuted)
	} else {
		beep.Play(beep.CueUnmuted)
	}
}

func (c *call) isMuted() bool { return c.muted.Load() }

func (c *call) selectDevice(d route.Device) {
	log.Infof("user selected %s", d)
	c.mu.Lock()
	c.pending = route.None
	c.mu.Unlock()
	c.sess.SelectAudioDevice(d)
}

// preferDevice selects d now, and again once a route change first offers
// it. A Bluetooth headset only shows up after its profile connects.
func (c *call) preferDevice(d route.Device) {
	log.Infof("preferred device %s", d)
	c.mu.Lock()
	c.pending = d
	c.mu.Unlock()
	c.sess.SelectAudioDevice(d)
}

// routeChanged applies a pending preference once the device is available.
func (c *call) routeChanged(selected route.Device, available route.DeviceSet) {
	c.mu.Lock()
	d := c.pending
	if d == route.None || !available.Contains(d) {
		c.mu.Unlock()
		return
	}
	c.pending = route.None
	c.mu.Unlock()
	if selected != d {
		log.Infof("preferred device %s now available", d)
		c.sess.SelectAudioDevice(d)
	}
}

func (c *call) switchScaling() { c.sess.SwitchScalingType() }

func (c *call) quit() {
	c.quitOnce.Do(func() { close(c.done) })
}

func (c *call) Done() <-chan struct{} { return c.done }

const clipboardPoll = 500 * time.Millisecond

// watchClipboard waits for the remote description to be copied. Blocks the
// local side published are skipped.
func (c *call) watchClipboard(ctx context.Context) {
	prev, _ := clipboard.Read()
	for {
		text, err := clipboard.WaitSDP(ctx, prev, clipboardPoll)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warnf("clipboard watch: %v", err)
				c.sink.Status("clipboard unavailable, paste the remote description on stdin")
			}
			return
		}
		if c.sig.isOwn(text) {
			prev = text
			continue
		}
		c.remoteDescription(text)
		return
	}
}

const oggPageDuration = 20 * time.Millisecond

// feedInput streams an Ogg/Opus file as the microphone, looping at EOF.
func (c *call) feedInput(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		page, hdr, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind input: %w", err)
			}
			if ogg, _, err = oggreader.NewWith(f); err != nil {
				return fmt.Errorf("read ogg header: %w", err)
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}
		samples := hdr.GranulePosition - lastGranule
		lastGranule = hdr.GranulePosition
		d := time.Duration(float64(samples) / 48000 * float64(time.Second))
		if err := c.sess.WriteLocalAudio(media.Sample{Data: page, Duration: d}); err != nil {
			if errors.Is(err, session.ErrDisposed) {
				return nil
			}
			log.Warnf("write local audio: %v", err)
		}
	}
}

// publisher returns the signal callback: the text goes to the clipboard
// when enabled and then to the sink.
func publisher(sink EventSink, useClipboard bool) func(string) {
	return func(text string) {
		copied := false
		if useClipboard {
			if err := clipboard.Copy(text); err != nil {
				log.Warnf("clipboard copy: %v", err)
			} else {
				copied = true
			}
		}
		log.Debugf("local description published, %d bytes, copied=%v", len(text), copied)
		sink.LocalSignal(text, copied)
	}
}
