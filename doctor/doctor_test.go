package doctor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"rtcaudio/audio"
	"rtcaudio/bluetooth"
	"rtcaudio/hotkey"
	"rtcaudio/proximity"
)

func TestReportAudio(t *testing.T) {
	sys := audio.NewFakeSystem(true)
	sys.PlugHeadset("USB Headset", true)
	var out bytes.Buffer
	if !reportAudio(&out, sys) {
		t.Fatalf("expected pass, got:\n%s", out.String())
	}
	for _, want := range []string{"Built-in Speaker", "wired headset", "earpiece available", "wired headset true"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestReportAudioFailure(t *testing.T) {
	sys := audio.NewFakeSystem(false)
	sys.FailOutputs(errors.New("pulse gone"))
	var out bytes.Buffer
	if reportAudio(&out, sys) {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.String(), "pulse gone") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReportBluetooth(t *testing.T) {
	tests := []struct {
		name    string
		adapter *bluetooth.FakeAdapter
		pass    bool
		want    string
	}{
		{"no adapter", &bluetooth.FakeAdapter{NoAdapter: true}, true, "no adapter"},
		{"no permission", &bluetooth.FakeAdapter{NoPermission: true}, false, "access is denied"},
		{"ready", &bluetooth.FakeAdapter{}, true, "1 headset(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.adapter.AddHeadset(bluetooth.HeadsetDevice{Address: "00:11:22:33:44:55", Name: "Buds"})
			var out bytes.Buffer
			if got := reportBluetooth(&out, tt.adapter); got != tt.pass {
				t.Errorf("pass = %v, want %v", got, tt.pass)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestReportProximityNear(t *testing.T) {
	sm := proximity.NewFakeSensorManager(5)
	go func() {
		for sm.Listeners() == 0 {
			time.Sleep(time.Millisecond)
		}
		sm.Near()
	}()
	var out bytes.Buffer
	if !reportProximity(&out, sm, time.Second) {
		t.Fatalf("expected pass:\n%s", out.String())
	}
	if sm.Listeners() != 0 {
		t.Error("monitor still registered")
	}
}

func TestReportProximityTimeout(t *testing.T) {
	sm := proximity.NewFakeSensorManager(5)
	var out bytes.Buffer
	if reportProximity(&out, sm, 20*time.Millisecond) {
		t.Fatal("expected timeout failure")
	}
}

func TestReportProximityNoSensor(t *testing.T) {
	sm := proximity.NewFakeSensorManager(5)
	sm.Sensor = nil
	var out bytes.Buffer
	if !reportProximity(&out, sm, time.Second) {
		t.Fatal("missing sensor should pass")
	}
}

func TestWaitHotkey(t *testing.T) {
	fk := hotkey.NewFake()
	go func() {
		fk.SimKeydown()
		fk.SimKeyup()
	}()
	var out bytes.Buffer
	if !waitHotkey(&out, fk, time.Second) {
		t.Fatalf("expected pass:\n%s", out.String())
	}
	if waitHotkey(&out, fk, 10*time.Millisecond) {
		t.Fatal("expected timeout")
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	if !confirm(&out, strings.NewReader("Y\n"), "ok?", "thing") {
		t.Error("Y should confirm")
	}
	if confirm(&out, strings.NewReader("\n"), "ok?", "thing") {
		t.Error("empty answer should not confirm")
	}
}
