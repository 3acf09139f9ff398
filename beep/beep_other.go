//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"rtcaudio/log"
)

var (
	ctxOnce  sync.Once
	malgoCtx *malgo.AllocatedContext
	playMu   sync.Mutex

	cacheMu sync.Mutex
	cache   = map[Cue][]byte{}
)

// samplesFor renders mono S16LE bytes for the malgo device.
func samplesFor(c Cue, t tone) []byte {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if b, ok := cache[c]; ok {
		return b
	}
	mono := t.render()
	b := make([]byte, len(mono)*2)
	for i, v := range mono {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	cache[c] = b
	return b
}

func initContext() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: malgo context: %v", err)
		return
	}
	malgoCtx = ctx
}

func play(samples []byte) {
	ctxOnce.Do(initContext)
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	playMu.Lock()
	defer playMu.Unlock()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	pos := 0
	done := make(chan struct{})
	var once sync.Once
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frames uint32) {
			n := copy(out[:frames*2], samples[pos:])
			pos += n
			clear(out[n:])
			if pos >= len(samples) {
				once.Do(func() { close(done) })
			}
		},
	}
	dev, err := malgo.InitDevice(malgoCtx.Context, cfg, callbacks)
	if err != nil {
		log.Warnf("beep: malgo device: %v", err)
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		log.Warnf("beep: malgo start: %v", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	dev.Stop()
}
