// Package doctor runs interactive checks of the platform backends the audio
// router depends on.
package doctor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rtcaudio/audio"
	"rtcaudio/beep"
	"rtcaudio/bluetooth"
	"rtcaudio/clipboard"
	"rtcaudio/hotkey"
	"rtcaudio/looper"
	"rtcaudio/proximity"
)

type check struct {
	name string
	run  func(w io.Writer) bool
}

// Run executes every check and returns an exit code (0=all pass, 1=any fail).
func Run() int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("rtcaudio doctor - audio routing diagnostics")
	fmt.Println("===========================================")

	checks := []check{
		{"Audio outputs", checkAudioSystem},
		{"Bluetooth headset", checkBluetoothAdapter},
		{"Proximity sensor", checkProximitySensor},
		{"Mute hotkey", checkHotkey},
		{"Route beep", checkBeep},
		{"Clipboard signaling", checkClipboard},
	}
	failed := 0
	for i, c := range checks {
		fmt.Printf("\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if !c.run(os.Stdout) {
			failed++
		}
	}

	fmt.Println()
	if failed == 0 {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Printf("%d check(s) failed. See details above.\n", failed)
	return 1
}

func pass(w io.Writer, format string, args ...any) bool {
	fmt.Fprintf(w, "  PASS: "+format+"\n", args...)
	return true
}

func fail(w io.Writer, format string, args ...any) bool {
	fmt.Fprintf(w, "  FAIL: "+format+"\n", args...)
	return false
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  "+format+"\n", args...)
}

func checkAudioSystem(w io.Writer) bool {
	sys, err := audio.NewSystem()
	if err != nil {
		return fail(w, "cannot connect to audio: %v", err)
	}
	if c, ok := sys.(interface{ Close() }); ok {
		defer c.Close()
	}
	return reportAudio(w, sys)
}

func reportAudio(w io.Writer, sys audio.System) bool {
	outputs, err := sys.Outputs()
	if err != nil {
		return fail(w, "cannot list outputs: %v", err)
	}
	if len(outputs) == 0 {
		return fail(w, "no output devices found")
	}
	for _, d := range outputs {
		info(w, "%-40s %s", d.Name, d.Type)
	}
	info(w, "mode %s, speakerphone %v, microphone muted %v", sys.Mode(), sys.SpeakerphoneOn(), sys.MicrophoneMute())
	if sys.HasTelephony() {
		info(w, "telephony: earpiece available")
	} else {
		info(w, "telephony: none, earpiece routing disabled")
	}
	return pass(w, "%d output(s), wired headset %v", len(outputs), audio.HasWiredHeadset(sys))
}

func checkBluetoothAdapter(w io.Writer) bool {
	a, err := bluetooth.NewAdapter()
	if err != nil {
		info(w, "bluetooth unavailable: %v", err)
		return pass(w, "routing will skip bluetooth")
	}
	if c, ok := a.(interface{ Close() }); ok {
		defer c.Close()
	}
	return reportBluetooth(w, a)
}

// reportBluetooth treats a missing adapter as a pass: routing works without
// one. A present adapter the user may not use is a failure.
func reportBluetooth(w io.Writer, a bluetooth.Adapter) bool {
	info(w, "%s", a.Describe())
	if !a.Present() {
		return pass(w, "no adapter, routing will skip bluetooth")
	}
	if !a.HasPermission() {
		return fail(w, "adapter present but access is denied (check the bluetooth group and polkit rules)")
	}
	headsets := a.ConnectedHeadsets()
	for _, h := range headsets {
		info(w, "headset %s (%s) voice link %v", h.Name, h.Address, a.IsAudioConnected(h))
	}
	return pass(w, "adapter ready, %d headset(s) connected", len(headsets))
}

func checkProximitySensor(w io.Writer) bool {
	sm, err := proximity.NewSensorManager()
	if err != nil {
		info(w, "proximity unavailable: %v", err)
		return pass(w, "earpiece switching will stay off")
	}
	if c, ok := sm.(interface{ Close() }); ok {
		defer c.Close()
	}
	fmt.Fprintln(w, "Cover the proximity sensor...")
	return reportProximity(w, sm, 10*time.Second)
}

func reportProximity(w io.Writer, sm proximity.SensorManager, timeout time.Duration) bool {
	loop := looper.New("doctor")
	loop.Start()
	defer func() {
		loop.Quit()
		loop.Wait()
	}()

	near := make(chan struct{}, 1)
	var mon *proximity.Monitor
	var started bool
	loop.Call(func() {
		mon = proximity.NewMonitor(proximity.PostTo(loop, sm), func() {
			if mon.SensorReportsNearState() {
				select {
				case near <- struct{}{}:
				default:
				}
			}
		})
		started = mon.Start()
	})
	if !started {
		return pass(w, "no proximity sensor, earpiece switching will stay off")
	}
	defer loop.Call(mon.Stop)

	select {
	case <-near:
		return pass(w, "NEAR state detected")
	case <-time.After(timeout):
		return fail(w, "timeout waiting for NEAR state")
	}
}

func checkHotkey(w io.Writer) bool {
	msg, err := hotkey.Diagnose()
	if err != nil {
		return fail(w, "%v", err)
	}
	info(w, "%s", msg)
	fmt.Fprintln(w, "Press Ctrl+Shift+Space...")

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		return fail(w, "could not register hotkey: %v", err)
	}
	defer hk.Unregister()
	return waitHotkey(w, hk, 10*time.Second)
}

func waitHotkey(w io.Writer, hk hotkey.Hotkey, timeout time.Duration) bool {
	select {
	case <-hk.Keydown():
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// the evdev reader may leave the terminal in raw mode
		resetTerminal()
		return pass(w, "hotkey detected")
	case <-time.After(timeout):
		return fail(w, "timeout waiting for hotkey")
	}
}

func checkBeep(w io.Writer) bool {
	beep.Play(beep.CueRoute)
	time.Sleep(300 * time.Millisecond)
	return confirm(w, os.Stdin, "Did you hear a short tick?", "route tone")
}

func confirm(w io.Writer, r io.Reader, question, what string) bool {
	fmt.Fprintf(w, "%s [y/n]: ", question)
	answer, _ := bufio.NewReader(r).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "y" || answer == "yes" {
		return pass(w, "%s verified by user", what)
	}
	return fail(w, "%s not confirmed", what)
}

func checkClipboard(w io.Writer) bool {
	prev, _ := clipboard.Read()
	sentinel := fmt.Sprintf("v=0 rtcaudio-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		return fail(w, "clipboard copy failed: %v", err)
	}
	got, err := clipboard.Read()
	if prev != "" {
		clipboard.Copy(prev)
	}
	if err != nil {
		return fail(w, "clipboard read failed: %v", err)
	}
	if got != sentinel {
		return fail(w, "clipboard read back %q, want %q", got, sentinel)
	}
	return pass(w, "descriptions can be exchanged through the clipboard")
}
