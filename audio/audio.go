package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", "bluez", " bt ", " bt)", " bt]",
}

var wiredKeywords = []string{
	"headphone", "headset", "earphone", "line out", "lineout",
}

var usbKeywords = []string{"usb"}

var speakerKeywords = []string{"speaker", "analog-stereo", "built-in", "builtin", "internal"}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func IsBluetooth(name string) bool {
	return containsAny(strings.ToLower(name), btKeywords)
}

// Classify guesses the hardware type of an output from its platform name.
func Classify(name string) DeviceType {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, btKeywords):
		return TypeBluetoothA2DP
	case containsAny(lower, usbKeywords):
		return TypeUSBDevice
	case containsAny(lower, wiredKeywords):
		return TypeWiredHeadset
	case strings.Contains(lower, "earpiece") || strings.Contains(lower, "receiver"):
		return TypeBuiltinEarpiece
	case containsAny(lower, speakerKeywords):
		return TypeBuiltinSpeaker
	}
	return TypeUnknown
}

// ClassifyOutput classifies a sink from its name and its active port.
// Built-in cards keep one sink for speaker and jack, so the port decides
// there. Bluetooth sinks are recognized by name whatever their port says.
func ClassifyOutput(name, port string) DeviceType {
	byName := Classify(name)
	if port == "" || byName == TypeBluetoothA2DP {
		return byName
	}
	lower := strings.ToLower(port)
	switch {
	case strings.Contains(lower, "headset"):
		return TypeWiredHeadset
	case strings.Contains(lower, "headphone"):
		return TypeWiredHeadphones
	case strings.Contains(lower, "speaker") && byName != TypeUSBDevice:
		return TypeBuiltinSpeaker
	}
	return byName
}

type Mode int

const (
	ModeNormal Mode = iota
	ModeRingtone
	ModeInCall
	ModeInCommunication
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "MODE_NORMAL"
	case ModeRingtone:
		return "MODE_RINGTONE"
	case ModeInCall:
		return "MODE_IN_CALL"
	case ModeInCommunication:
		return "MODE_IN_COMMUNICATION"
	}
	return "MODE_INVALID"
}

type DeviceType int

const (
	TypeUnknown DeviceType = iota
	TypeBuiltinEarpiece
	TypeBuiltinSpeaker
	TypeWiredHeadset
	TypeWiredHeadphones
	TypeUSBDevice
	TypeUSBHeadset
	TypeBluetoothSCO
	TypeBluetoothA2DP
)

var deviceTypeNames = [...]string{
	TypeUnknown:         "unknown",
	TypeBuiltinEarpiece: "earpiece",
	TypeBuiltinSpeaker:  "speaker",
	TypeWiredHeadset:    "wired headset",
	TypeWiredHeadphones: "wired headphones",
	TypeUSBDevice:       "usb device",
	TypeUSBHeadset:      "usb headset",
	TypeBluetoothSCO:    "bluetooth sco",
	TypeBluetoothA2DP:   "bluetooth a2dp",
}

func (t DeviceType) String() string {
	if int(t) >= 0 && int(t) < len(deviceTypeNames) {
		return deviceTypeNames[t]
	}
	return "unknown"
}

// IsWired reports whether the device counts as a wired headset for routing.
func (t DeviceType) IsWired() bool {
	switch t {
	case TypeWiredHeadset, TypeWiredHeadphones, TypeUSBDevice, TypeUSBHeadset:
		return true
	}
	return false
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
	Port string // active port, when the platform has ports
	Type DeviceType
}

type Stream int

const (
	StreamVoiceCall Stream = iota
	StreamMusic
	StreamRing
)

type FocusGain int

const (
	GainFull FocusGain = iota + 1
	GainTransient
	GainTransientExclusive
	GainTransientMayDuck
)

type FocusChange int

const (
	FocusGained               FocusChange = 1
	FocusGainedTransient      FocusChange = 2
	FocusGainedTransientExcl  FocusChange = 3
	FocusGainedTransientDuck  FocusChange = 4
	FocusLost                 FocusChange = -1
	FocusLostTransient        FocusChange = -2
	FocusLostTransientCanDuck FocusChange = -3
)

func (c FocusChange) String() string {
	switch c {
	case FocusGained:
		return "AUDIOFOCUS_GAIN"
	case FocusGainedTransient:
		return "AUDIOFOCUS_GAIN_TRANSIENT"
	case FocusGainedTransientExcl:
		return "AUDIOFOCUS_GAIN_TRANSIENT_EXCLUSIVE"
	case FocusGainedTransientDuck:
		return "AUDIOFOCUS_GAIN_TRANSIENT_MAY_DUCK"
	case FocusLost:
		return "AUDIOFOCUS_LOSS"
	case FocusLostTransient:
		return "AUDIOFOCUS_LOSS_TRANSIENT"
	case FocusLostTransientCanDuck:
		return "AUDIOFOCUS_LOSS_TRANSIENT_CAN_DUCK"
	}
	return "AUDIOFOCUS_INVALID"
}

type FocusResult int

const (
	FocusRequestFailed FocusResult = iota
	FocusRequestGranted
	FocusRequestDelayed
)

type Usage int

const (
	UsageMedia Usage = iota + 1
	UsageVoiceCommunication
)

type ContentType int

const (
	ContentMusic ContentType = iota + 1
	ContentSpeech
)

// FocusHandler receives audio focus changes. Implementations must be
// comparable (pointer types) so the legacy abandon call can find them.
type FocusHandler interface {
	OnAudioFocusChange(change FocusChange)
}

// FocusRequest is the request object of systems that implement FocusRequester.
type FocusRequest struct {
	Gain                FocusGain
	Usage               Usage
	Content             ContentType
	Handler             FocusHandler
	AllowCaptureByNone  bool
	HapticChannelsMuted bool
}

// HeadsetPlug is one wired-headset plug/unplug broadcast.
type HeadsetPlug struct {
	State         int // HeadsetUnplugged or HeadsetPlugged
	Microphone    int // HeadsetNoMic or HeadsetHasMic
	Name          string
	InitialSticky bool // replay of the last state when the receiver registers
}

const (
	HeadsetUnplugged = 0
	HeadsetPlugged   = 1

	HeadsetNoMic  = 0
	HeadsetHasMic = 1
)

// System is the process-wide audio state a call takes over while it runs.
type System interface {
	Mode() Mode
	SetMode(m Mode)
	SpeakerphoneOn() bool
	SetSpeakerphoneOn(on bool)
	MicrophoneMute() bool
	SetMicrophoneMute(on bool)

	// HasTelephony reports whether the hardware has an earpiece.
	HasTelephony() bool
	Outputs() ([]DeviceInfo, error)

	RequestAudioFocusLegacy(h FocusHandler, stream Stream, gain FocusGain) FocusResult
	AbandonAudioFocusLegacy(h FocusHandler) FocusResult

	// RegisterHeadsetReceiver delivers wired-headset broadcasts to fn from an
	// arbitrary goroutine until unregister is called.
	RegisterHeadsetReceiver(fn func(HeadsetPlug)) (unregister func() error, err error)
}

// FocusRequester is implemented by systems that support focus request
// objects. Callers fall back to the legacy calls when it is absent.
type FocusRequester interface {
	RequestAudioFocus(req *FocusRequest) FocusResult
	AbandonAudioFocusRequest(req *FocusRequest) FocusResult
}

// HasWiredHeadset is an early indicator of an attached wired or USB headset.
// Enumeration failures count as "no headset".
func HasWiredHeadset(sys System) bool {
	devices, err := sys.Outputs()
	if err != nil {
		return false
	}
	for _, d := range devices {
		if d.Type.IsWired() {
			return true
		}
	}
	return false
}
