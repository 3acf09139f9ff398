package route

import (
	"fmt"
	"strings"
)

// Device is an audio output a call can be routed to.
type Device int

const (
	None Device = iota
	SpeakerPhone
	WiredHeadset
	Earpiece
	Bluetooth
)

var deviceNames = map[Device]string{
	None:         "NONE",
	SpeakerPhone: "SPEAKER_PHONE",
	WiredHeadset: "WIRED_HEADSET",
	Earpiece:     "EARPIECE",
	Bluetooth:    "BLUETOOTH",
}

func (d Device) String() string {
	if s, ok := deviceNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Device(%d)", int(d))
}

// ParseDevice accepts the String form, case-insensitively.
func ParseDevice(s string) (Device, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for d, name := range deviceNames {
		if name == upper {
			return d, nil
		}
	}
	return None, fmt.Errorf("unknown audio device %q", s)
}

// DeviceSet is an immutable set of devices. The zero value is empty and sets
// compare with ==.
type DeviceSet uint8

func NewDeviceSet(devices ...Device) DeviceSet {
	var s DeviceSet
	for _, d := range devices {
		s = s.With(d)
	}
	return s
}

func (s DeviceSet) With(d Device) DeviceSet {
	if d == None {
		return s
	}
	return s | 1<<uint(d)
}

func (s DeviceSet) Without(d Device) DeviceSet {
	return s &^ (1 << uint(d))
}

func (s DeviceSet) Contains(d Device) bool {
	return d != None && s&(1<<uint(d)) != 0
}

func (s DeviceSet) Equal(o DeviceSet) bool { return s == o }

func (s DeviceSet) Len() int {
	n := 0
	for _, d := range allDevices {
		if s.Contains(d) {
			n++
		}
	}
	return n
}

var allDevices = []Device{SpeakerPhone, WiredHeadset, Earpiece, Bluetooth}

// Slice lists the members in a fixed order.
func (s DeviceSet) Slice() []Device {
	var out []Device
	for _, d := range allDevices {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DeviceSet) Strings() []string {
	var out []string
	for _, d := range s.Slice() {
		out = append(out, d.String())
	}
	return out
}

func (s DeviceSet) String() string {
	return "[" + strings.Join(s.Strings(), ", ") + "]"
}

// State is the lifecycle state of a Manager.
type State int

const (
	Uninitialized State = iota
	Preinitialized
	Running
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Preinitialized:
		return "PREINITIALIZED"
	case Running:
		return "RUNNING"
	}
	return "INVALID"
}

// SpeakerphonePolicy picks the default device and enables proximity
// switching.
type SpeakerphonePolicy int

const (
	PolicyAuto SpeakerphonePolicy = iota
	PolicyOn
	PolicyOff
)

func (p SpeakerphonePolicy) String() string {
	switch p {
	case PolicyOn:
		return "true"
	case PolicyOff:
		return "false"
	}
	return "auto"
}

func ParsePolicy(s string) (SpeakerphonePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PolicyAuto, nil
	case "true", "on":
		return PolicyOn, nil
	case "false", "off":
		return PolicyOff, nil
	}
	return PolicyAuto, fmt.Errorf("unknown speakerphone policy %q", s)
}

// Listener is told about every applied route change. It is called on the
// control loop and must not block.
type Listener interface {
	OnAudioDeviceChanged(selected Device, available DeviceSet)
}

type ListenerFunc func(selected Device, available DeviceSet)

func (f ListenerFunc) OnAudioDeviceChanged(selected Device, available DeviceSet) {
	f(selected, available)
}
