package main

import (
	"strings"
	"testing"

	"rtcaudio/route"
)

type fakeController struct {
	descriptions []string
	candidates   []string
	muted        []bool
	devices      []route.Device
	scalings     int
	quits        int
}

func (f *fakeController) remoteDescription(text string) { f.descriptions = append(f.descriptions, text) }
func (f *fakeController) remoteCandidate(line string)   { f.candidates = append(f.candidates, line) }
func (f *fakeController) setMuted(m bool)               { f.muted = append(f.muted, m) }
func (f *fakeController) selectDevice(d route.Device)   { f.devices = append(f.devices, d) }
func (f *fakeController) switchScaling()                { f.scalings++ }
func (f *fakeController) quit()                         { f.quits++ }

func (f *fakeController) isMuted() bool {
	return len(f.muted) > 0 && f.muted[len(f.muted)-1]
}

func TestScriptDescriptionAndCandidates(t *testing.T) {
	in := strings.Join([]string{
		"v=0",
		"o=- 1 2 IN IP4 127.0.0.1",
		"s=-",
		"a=candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host",
		"",
		"a=candidate:2 1 udp 1694498815 198.51.100.2 50001 typ srflx",
		"candidate:3 1 tcp 1518280447 192.0.2.1 9 typ host tcptype active",
	}, "\n")
	f := &fakeController{}
	runScript(strings.NewReader(in), f)

	if len(f.descriptions) != 1 {
		t.Fatalf("descriptions = %q", f.descriptions)
	}
	want := "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\na=candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host\r\n"
	if f.descriptions[0] != want {
		t.Errorf("description = %q", f.descriptions[0])
	}
	if len(f.candidates) != 2 {
		t.Errorf("candidates = %q", f.candidates)
	}
	if f.quits != 1 {
		t.Errorf("quits = %d", f.quits)
	}
}

func TestScriptDescriptionEndsAtCommand(t *testing.T) {
	f := &fakeController{}
	runScript(strings.NewReader("v=0\ns=-\nMUTE\n"), f)
	if len(f.descriptions) != 1 || f.descriptions[0] != "v=0\r\ns=-\r\n" {
		t.Errorf("descriptions = %q", f.descriptions)
	}
	if len(f.muted) != 1 || !f.muted[0] {
		t.Errorf("muted = %v", f.muted)
	}
}

func TestScriptDescriptionAtEOF(t *testing.T) {
	f := &fakeController{}
	runScript(strings.NewReader("v=0\ns=-"), f)
	if len(f.descriptions) != 1 {
		t.Errorf("descriptions = %q", f.descriptions)
	}
}

func TestScriptCommands(t *testing.T) {
	in := "MUTE\nunmute\nDEVICE earpiece\nDEVICE toaster\nSCALE\nSLEEP 1\nBOGUS\nQUIT\nMUTE\n"
	f := &fakeController{}
	runScript(strings.NewReader(in), f)

	if len(f.muted) != 2 || !f.muted[0] || f.muted[1] {
		t.Errorf("muted = %v", f.muted)
	}
	if len(f.devices) != 1 || f.devices[0] != route.Earpiece {
		t.Errorf("devices = %v", f.devices)
	}
	if f.scalings != 1 {
		t.Errorf("scalings = %d", f.scalings)
	}
	if f.quits != 1 {
		t.Errorf("quits = %d", f.quits)
	}
}
