package beep

import (
	"math"
	"testing"
)

func TestToneLength(t *testing.T) {
	for c, tn := range tones {
		s := tn.render()
		want := int(sampleRate*tn.duration)*tn.repeat + int(sampleRate*tn.gap)*(tn.repeat-1)
		if len(s) != want {
			t.Errorf("cue %d: %d samples, want %d", c, len(s), want)
		}
	}
}

func TestToneDecays(t *testing.T) {
	s := tones[CueRoute].render()
	peak := func(from, to int) float64 {
		var p float64
		for _, v := range s[from:to] {
			p = math.Max(p, math.Abs(float64(v)))
		}
		return p
	}
	n := len(s)
	head, tail := peak(0, n/4), peak(3*n/4, n)
	if head == 0 || tail >= head {
		t.Errorf("head peak %v, tail peak %v", head, tail)
	}
	if head > math.MaxInt16*tones[CueRoute].volume {
		t.Errorf("peak %v exceeds volume", head)
	}
}

func TestErrorHasGap(t *testing.T) {
	tn := tones[CueError]
	s := tn.render()
	start := int(sampleRate * tn.duration)
	for i, v := range s[start : start+int(sampleRate*tn.gap)] {
		if v != 0 {
			t.Fatalf("gap sample %d = %d", i, v)
		}
	}
}

func TestDisabledPlayIsNoop(t *testing.T) {
	Disable()
	Play(CueRoute)
	Play(Cue(99))
}
