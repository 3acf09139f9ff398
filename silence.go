package main

import (
	"context"
	"sync"
	"time"

	"rtcaudio/beep"
	"rtcaudio/log"
)

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)

	// speechLevel is the RMS level above which the remote side counts as
	// talking.
	speechLevel = 0.01
	// levelStale: level reports older than this mean nothing arrives.
	levelStale = time.Second
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // nothing heard from the remote side
	SilenceWarnClear              // remote audio resumed after warning
)

type silenceMonitor struct {
	windowSz int

	ticks  int
	window []bool
	warned bool
}

func newSilenceMonitor() *silenceMonitor {
	n := int(silenceWarnAfter / tickInterval)
	return &silenceMonitor{windowSz: n, window: make([]bool, n)}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.windowSz)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.window[m.ticks%m.windowSz] = hasSpeech
	m.ticks++

	r := m.ratio()
	if m.ticks >= m.windowSz && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}

// Reset forgets the history, as after a reconnect.
func (m *silenceMonitor) Reset() {
	m.ticks = 0
	m.warned = false
	clear(m.window)
}

// remoteAudio collects the remote level reports between ticks.
type remoteAudio struct {
	mu        sync.Mutex
	level     float64
	at        time.Time
	connected bool
}

func (r *remoteAudio) report(level float64) {
	r.mu.Lock()
	r.level, r.at = level, time.Now()
	r.mu.Unlock()
}

func (r *remoteAudio) setConnected(on bool) {
	r.mu.Lock()
	r.connected = on
	r.mu.Unlock()
}

// sample reports whether the remote side is talking at now. ok is false
// while ICE is not connected.
func (r *remoteAudio) sample(now time.Time) (speech, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return false, false
	}
	return now.Sub(r.at) < levelStale && r.level >= speechLevel, true
}

// watchSilence warns when the connected remote side goes quiet.
func watchSilence(ctx context.Context, r *remoteAudio, sink EventSink) {
	m := newSilenceMonitor()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			speech, ok := r.sample(now)
			if !ok {
				m.Reset()
				continue
			}
			switch m.Tick(speech) {
			case SilenceWarn:
				log.Warn("remote_silence")
				sink.Status("no audio from the remote side")
				beep.Play(beep.CueError)
			case SilenceWarnClear:
				log.Info("remote_audio_resumed")
				sink.Status("remote audio resumed")
			}
		}
	}
}
