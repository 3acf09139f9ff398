package audio

import (
	"strings"
	"sync"
	"time"
)

const hotplugInterval = 2 * time.Second

// watchHeadset polls list and turns changes in wired-headset presence into
// HeadsetPlug broadcasts. The first poll is delivered as an initial sticky
// broadcast. The returned func stops polling and waits for the poller.
func watchHeadset(list func() ([]DeviceInfo, error), interval time.Duration, fn func(HeadsetPlug)) func() error {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		first := true
		var last *HeadsetPlug

		poll := func() {
			devices, err := list()
			if err != nil {
				return
			}
			ev := headsetState(devices)
			if last != nil && last.State == ev.State && last.Name == ev.Name {
				return
			}
			ev.InitialSticky = first
			first = false
			last = &ev
			fn(ev)
		}

		poll()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	var once sync.Once
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return nil
	}
}

func headsetState(devices []DeviceInfo) HeadsetPlug {
	for _, d := range devices {
		if !d.Type.IsWired() {
			continue
		}
		mic := HeadsetNoMic
		if strings.Contains(strings.ToLower(d.Name+" "+d.Port), "headset") {
			mic = HeadsetHasMic
		}
		return HeadsetPlug{State: HeadsetPlugged, Microphone: mic, Name: d.Name}
	}
	return HeadsetPlug{State: HeadsetUnplugged}
}
