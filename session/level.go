package session

import (
	"encoding/binary"
	"math"

	"github.com/pion/opus"
)

const (
	// Largest Opus packet: 120 ms of stereo at 48 kHz, 16-bit.
	maxPCMBytes = 5760 * 2 * 2
)

// levelMeter decodes Opus packets and reports their RMS level in [0, 1].
// The decoder handles SILK frames only; other packets are skipped.
type levelMeter struct {
	dec opus.Decoder
	pcm []byte
}

func newLevelMeter() *levelMeter {
	return &levelMeter{dec: opus.NewDecoder(), pcm: make([]byte, maxPCMBytes)}
}

func (m *levelMeter) level(payload []byte) (float64, bool) {
	samples := packetSamples(payload)
	if samples == 0 {
		return 0, false
	}
	_, stereo, err := m.dec.Decode(payload, m.pcm)
	if err != nil {
		return 0, false
	}
	n := samples * 2
	if stereo {
		n *= 2
	}
	if n > len(m.pcm) {
		n = len(m.pcm)
	}
	return rms(m.pcm[:n]), true
}

// packetSamples returns the number of 48 kHz samples per channel in an Opus
// packet, read from its TOC byte.
func packetSamples(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	toc := p[0]
	config := int(toc >> 3)
	var frame int
	switch {
	case config < 12:
		frame = [...]int{480, 960, 1920, 2880}[config%4]
	case config < 16:
		frame = [...]int{480, 960}[config%2]
	default:
		frame = [...]int{120, 240, 480, 960}[config%4]
	}
	frames := 1
	switch toc & 0x3 {
	case 1, 2:
		frames = 2
	case 3:
		if len(p) < 2 {
			return 0
		}
		frames = int(p[1] & 0x3f)
	}
	return frame * frames
}

// rms of little-endian signed 16-bit samples, normalized to [0, 1].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
