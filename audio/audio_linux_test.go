//go:build linux

package audio

import (
	"testing"

	"github.com/jfreymuth/pulse/proto"
)

func builtinSink(port string) *proto.GetSinkInfoReply {
	return &proto.GetSinkInfoReply{
		SinkName:       "alsa_output.pci-0000_00_1f.3.analog-stereo",
		Device:         "Built-in Audio Analog Stereo",
		ActivePortName: port,
	}
}

func TestSinkOutputsJackPort(t *testing.T) {
	speaker := sinkOutputs(proto.GetSinkInfoListReply{builtinSink("analog-output-speaker")})
	if len(speaker) != 1 || speaker[0].Type != TypeBuiltinSpeaker || speaker[0].Port != "analog-output-speaker" {
		t.Fatalf("speaker port: %+v", speaker)
	}
	if ev := headsetState(speaker); ev.State != HeadsetUnplugged {
		t.Errorf("speaker port reported %+v", ev)
	}

	jack := sinkOutputs(proto.GetSinkInfoListReply{builtinSink("analog-output-headphones")})
	ev := headsetState(jack)
	if ev.State != HeadsetPlugged || ev.Microphone != HeadsetNoMic || ev.Name != "Built-in Audio Analog Stereo" {
		t.Errorf("headphones port reported %+v", ev)
	}

	headset := sinkOutputs(proto.GetSinkInfoListReply{builtinSink("analog-output-headset")})
	if ev := headsetState(headset); ev.State != HeadsetPlugged || ev.Microphone != HeadsetHasMic {
		t.Errorf("headset port reported %+v", ev)
	}
}

func TestSinkOutputsBluetoothPort(t *testing.T) {
	out := sinkOutputs(proto.GetSinkInfoListReply{{
		SinkName:       "bluez_output.00_11_22_33_44_55.1",
		Device:         "WH-1000XM4",
		ActivePortName: "headphone-output",
	}})
	if out[0].Type != TypeBluetoothA2DP {
		t.Errorf("type = %v", out[0].Type)
	}
	if ev := headsetState(out); ev.State != HeadsetUnplugged {
		t.Errorf("bluetooth sink counted as wired: %+v", ev)
	}
}
