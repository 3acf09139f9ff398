package hotkey

import (
	"testing"
	"time"
)

func waitState(t *testing.T, m *MuteToggle, want bool) {
	t.Helper()
	select {
	case got := <-m.States():
		if got != want {
			t.Fatalf("muted = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mute state")
	}
}

func noState(t *testing.T, m *MuteToggle) {
	t.Helper()
	select {
	case got := <-m.States():
		t.Fatalf("unexpected mute state %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMuteToggleTap(t *testing.T) {
	fk := NewFake()
	m := NewMuteToggle(fk, 200*time.Millisecond, false)
	defer m.Close()

	fk.SimKeydown()
	waitState(t, m, true)
	fk.SimKeyup()
	noState(t, m)

	fk.SimKeydown()
	waitState(t, m, false)
	fk.SimKeyup()
	noState(t, m)
}

func TestMuteToggleHoldToTalk(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	m := NewMuteToggle(fk, threshold, true)
	defer m.Close()

	fk.SimKeydown()
	waitState(t, m, false)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitState(t, m, true)
}

func TestMuteToggleMultipleCycles(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	m := NewMuteToggle(fk, threshold, false)
	defer m.Close()

	// hold while live: muted until release
	fk.SimKeydown()
	waitState(t, m, true)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitState(t, m, false)

	// tap
	fk.SimKeydown()
	waitState(t, m, true)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)

	// hold while muted: live until release
	fk.SimKeydown()
	waitState(t, m, false)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitState(t, m, true)
}

func TestMuteToggleClose(t *testing.T) {
	fk := NewFake()
	m := NewMuteToggle(fk, time.Second, false)
	m.Close()
	m.Close()
	time.Sleep(10 * time.Millisecond)
	select {
	case fk.keydown <- struct{}{}:
	default:
	}
	noState(t, m)
}
