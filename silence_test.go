package main

import (
	"testing"
	"time"
)

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := newSilenceMonitor()
	// 79 ticks of silence, no warning yet
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	// 80th tick triggers warning (8s)
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80) // triggers warn

	// Sustained speech clears warning (need 25% of 80-tick window)
	for i := 0; i < 80; i++ {
		if m.Tick(true) == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newSilenceMonitor()
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestWarnOnlyOnce(t *testing.T) {
	m := newSilenceMonitor()
	warns := 0
	for i := 0; i < 300; i++ {
		if ev := m.Tick(false); ev == SilenceWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 SilenceWarn, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80) // triggers warn

	// Occasional level spikes (< 25% of ticks) should NOT clear
	clears := 0
	for i := 0; i < 80; i++ {
		speech := i%10 == 0
		if ev := m.Tick(speech); ev == SilenceWarnClear {
			clears++
		}
	}
	if clears > 0 {
		t.Fatalf("expected warning to stay with 10%% speech, got %d clears", clears)
	}
}

func TestSilenceReset(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80)
	m.Reset()
	if ev := feedN(m, false, 79); ev != SilenceNone {
		t.Fatalf("warned %d before a full window after reset", ev)
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn after reset window, got %d", ev)
	}
}

func TestRemoteAudioSample(t *testing.T) {
	var r remoteAudio
	now := time.Now()
	if _, ok := r.sample(now); ok {
		t.Fatal("sampled while disconnected")
	}

	r.setConnected(true)
	if speech, ok := r.sample(now); !ok || speech {
		t.Fatalf("no report yet: speech=%v ok=%v", speech, ok)
	}

	r.report(0.2)
	if speech, _ := r.sample(time.Now()); !speech {
		t.Error("fresh loud report should count as speech")
	}
	if speech, _ := r.sample(time.Now().Add(2 * levelStale)); speech {
		t.Error("stale report should not count as speech")
	}

	r.report(speechLevel / 2)
	if speech, _ := r.sample(time.Now()); speech {
		t.Error("quiet report should not count as speech")
	}
}
