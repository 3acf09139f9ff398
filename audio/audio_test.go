package audio

import (
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want DeviceType
	}{
		{"AirPods Pro", TypeBluetoothA2DP},
		{"bluez_sink.00_11_22.a2dp_sink", TypeBluetoothA2DP},
		{"USB Audio Device", TypeUSBDevice},
		{"alsa_output.pci-0000_00_1f.3.analog-stereo", TypeBuiltinSpeaker},
		{"Headphones (Realtek Audio)", TypeWiredHeadset},
		{"Earpiece", TypeBuiltinEarpiece},
		{"HDMI 2", TypeUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyOutput(t *testing.T) {
	const builtin = "alsa_output.pci-0000_00_1f.3.analog-stereo Built-in Audio Analog Stereo"
	tests := []struct {
		name, port string
		want       DeviceType
	}{
		{builtin, "", TypeBuiltinSpeaker},
		{builtin, "analog-output-speaker", TypeBuiltinSpeaker},
		{builtin, "analog-output-headphones", TypeWiredHeadphones},
		{builtin, "analog-output-headset", TypeWiredHeadset},
		{"bluez_output.00_11_22_33_44_55.1 WH-1000XM4", "headphone-output", TypeBluetoothA2DP},
		{"alsa_output.usb-Logitech_G_Pro-00.analog-stereo", "analog-output", TypeUSBDevice},
		{"alsa_output.pci-0000_01_00.1.hdmi-stereo HDMI", "hdmi-output-0", TypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyOutput(tt.name, tt.port); got != tt.want {
			t.Errorf("ClassifyOutput(%q, %q) = %v, want %v", tt.name, tt.port, got, tt.want)
		}
	}
}

func TestIsBluetooth(t *testing.T) {
	if !IsBluetooth("Jabra Evolve2") {
		t.Error("Jabra should be bluetooth")
	}
	if IsBluetooth("Built-in Speaker") {
		t.Error("speaker should not be bluetooth")
	}
}

func TestHasWiredHeadset(t *testing.T) {
	sys := NewFakeSystem(true)
	if HasWiredHeadset(sys) {
		t.Error("no headset plugged yet")
	}
	sys.PlugHeadset("Headset", true)
	if !HasWiredHeadset(sys) {
		t.Error("headset not detected")
	}
	sys.FailOutputs(ErrFakeOutputs)
	if HasWiredHeadset(sys) {
		t.Error("enumeration failure should count as absent")
	}
}

func TestHasWiredHeadsetUSB(t *testing.T) {
	sys := NewFakeSystem(false)
	sys.outputs = append(sys.outputs, DeviceInfo{ID: "usb", Name: "USB DAC", Type: TypeUSBDevice})
	if !HasWiredHeadset(sys) {
		t.Error("USB device should count as a wired headset")
	}
}

func TestWatchHeadset(t *testing.T) {
	var mu sync.Mutex
	devices := []DeviceInfo{{Name: "Speaker", Type: TypeBuiltinSpeaker}}
	list := func() ([]DeviceInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]DeviceInfo(nil), devices...), nil
	}

	events := make(chan HeadsetPlug, 4)
	stop := watchHeadset(list, 5*time.Millisecond, func(ev HeadsetPlug) { events <- ev })
	defer stop()

	next := func() HeadsetPlug {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no headset event")
		}
		return HeadsetPlug{}
	}

	ev := next()
	if !ev.InitialSticky || ev.State != HeadsetUnplugged {
		t.Fatalf("first event = %+v, want sticky unplugged", ev)
	}

	mu.Lock()
	devices = append(devices, DeviceInfo{Name: "Wired Headset", Type: TypeWiredHeadset})
	mu.Unlock()

	ev = next()
	if ev.InitialSticky || ev.State != HeadsetPlugged || ev.Microphone != HeadsetHasMic {
		t.Fatalf("plug event = %+v", ev)
	}

	if err := stop(); err != nil {
		t.Fatal(err)
	}
	stop() // should not panic
}

func TestLegacyOnlyHidesFocusRequester(t *testing.T) {
	sys := NewFakeSystem(true)
	if _, ok := System(sys).(FocusRequester); !ok {
		t.Fatal("FakeSystem should implement FocusRequester")
	}
	if _, ok := LegacyOnly(sys).(FocusRequester); ok {
		t.Error("LegacyOnly still exposes FocusRequester")
	}
}

type recordingHandler struct{ got []FocusChange }

func (r *recordingHandler) OnAudioFocusChange(c FocusChange) { r.got = append(r.got, c) }

func TestFakeFocus(t *testing.T) {
	sys := NewFakeSystem(true)
	h := &recordingHandler{}
	if res := sys.RequestAudioFocusLegacy(h, StreamVoiceCall, GainTransient); res != FocusRequestGranted {
		t.Fatalf("result = %v", res)
	}
	sys.ChangeFocus(FocusLostTransient)
	if len(h.got) != 1 || h.got[0] != FocusLostTransient {
		t.Errorf("handler got %v", h.got)
	}
	sys.AbandonAudioFocusLegacy(h)
	if sys.FocusHeld() {
		t.Error("focus still held after abandon")
	}
}

func TestFocusChangeString(t *testing.T) {
	if FocusLostTransientCanDuck.String() != "AUDIOFOCUS_LOSS_TRANSIENT_CAN_DUCK" {
		t.Errorf("got %s", FocusLostTransientCanDuck)
	}
	if FocusChange(99).String() != "AUDIOFOCUS_INVALID" {
		t.Errorf("got %s", FocusChange(99))
	}
}

func TestWatchHeadsetPortSwitch(t *testing.T) {
	const name = "Built-in Audio Analog Stereo"
	var mu sync.Mutex
	port := "analog-output-speaker"
	list := func() ([]DeviceInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		return []DeviceInfo{{ID: "alsa_output.pci.analog-stereo", Name: name, Port: port, Type: ClassifyOutput(name, port)}}, nil
	}

	events := make(chan HeadsetPlug, 4)
	stop := watchHeadset(list, 5*time.Millisecond, func(ev HeadsetPlug) { events <- ev })
	defer stop()

	want := func(state int) {
		t.Helper()
		select {
		case ev := <-events:
			if ev.State != state {
				t.Fatalf("state = %v, want %v", ev.State, state)
			}
		case <-time.After(time.Second):
			t.Fatal("no headset event")
		}
	}
	want(HeadsetUnplugged)

	mu.Lock()
	port = "analog-output-headphones"
	mu.Unlock()
	want(HeadsetPlugged)

	mu.Lock()
	port = "analog-output-speaker"
	mu.Unlock()
	want(HeadsetUnplugged)
}
