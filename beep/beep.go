// Package beep plays short confirmation tones for call events.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const sampleRate = 44100

// Cue is a call event with its own tone.
type Cue int

const (
	// CueRoute: the output device changed.
	CueRoute Cue = iota
	CueMuted
	CueUnmuted
	// CueError: low double beep.
	CueError
)

type tone struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	repeat   int
	gap      float64
}

var tones = map[Cue]tone{
	CueRoute:   {freq: 1200, duration: 0.12, volume: 0.5, decay: 60, repeat: 1},
	CueMuted:   {freq: 700, duration: 0.12, volume: 0.5, decay: 40, repeat: 1},
	CueUnmuted: {freq: 1000, duration: 0.12, volume: 0.5, decay: 40, repeat: 1},
	CueError:   {freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: 2, gap: 0.05},
}

// render produces mono 16-bit samples at sampleRate.
func (t tone) render() []int16 {
	n := int(sampleRate * t.duration)
	gap := int(sampleRate * t.gap)
	out := make([]int16, 0, t.repeat*n+(t.repeat-1)*gap)
	for r := 0; r < t.repeat; r++ {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			s := float64(i) / sampleRate
			env := math.Exp(-s * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*s)*math.MaxInt16*t.volume*env))
		}
	}
	return out
}

// Play plays c asynchronously. Unknown cues and playback errors are ignored.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	t, ok := tones[c]
	if !ok {
		return
	}
	go play(samplesFor(c, t))
}
