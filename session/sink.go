package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"rtcaudio/log"
)

// ProxySink forwards packets to a target that can be replaced or cleared
// while media is flowing. Packets written without a target are dropped.
type ProxySink struct {
	mu      sync.Mutex
	target  media.Writer
	dropped int
}

func (p *ProxySink) SetTarget(w media.Writer) {
	p.mu.Lock()
	p.target = w
	p.mu.Unlock()
}

func (p *ProxySink) WriteRTP(pkt *rtp.Packet) error {
	p.mu.Lock()
	t := p.target
	if t == nil {
		p.dropped++
		if p.dropped == 1 {
			log.Debug("session: dropping packet in proxy because target is nil")
		}
	}
	p.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.WriteRTP(pkt)
}

// Close releases the current target.
func (p *ProxySink) Close() error {
	p.mu.Lock()
	t := p.target
	p.target = nil
	p.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// NewRecorder creates a file writer for a remote track: Ogg for Opus, IVF
// for VP8 and VP9. The file is named after the track kind.
func NewRecorder(dir string, codec webrtc.RTPCodecParameters) (media.Writer, error) {
	mime := strings.ToLower(codec.MimeType)
	switch mime {
	case strings.ToLower(webrtc.MimeTypeOpus):
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		return oggwriter.New(filepath.Join(dir, "remote_audio.ogg"), codec.ClockRate, channels)
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9):
		return ivfwriter.New(filepath.Join(dir, "remote_video.ivf"), ivfwriter.WithCodec(codec.MimeType))
	}
	return nil, fmt.Errorf("no recorder for codec %s", codec.MimeType)
}
