package session

import (
	"errors"
	"fmt"

	"github.com/pion/stun/v3"
)

const (
	DefaultVideoWidth  = 1024
	DefaultVideoHeight = 768
	DefaultVideoFPS    = 30

	DefaultAudioTrackID = "ARDAMSa0"
	DefaultVideoTrackID = "ARDAMSv0"
	localStreamID       = "ARDAMS"

	DefaultBPSInKbps = 1000
)

var (
	ErrInvalidICEServer   = errors.New("invalid ICE server")
	ErrNotConfigured      = errors.New("session is not configured")
	ErrDisposed           = errors.New("session is disposed")
	ErrUnsupportedSDPType = errors.New("neither OFFER nor ANSWER")
)

type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Options configure a Session. Media is disabled unless enabled explicitly.
type Options struct {
	LocalAudio  bool
	LocalVideo  bool
	RemoteAudio bool
	RemoteVideo bool

	ICEServers []ICEServer
	RelayOnly  bool

	VideoHWAcceleration bool
	VideoWidth          int
	VideoHeight         int
	VideoFPS            int

	LocalAudioTrackID string
	LocalVideoTrackID string

	BPSInKbps int

	// AudioStartBitrateKbps, when set, is written into the Opus fmtp line of
	// every remote description.
	AudioStartBitrateKbps int
}

func DefaultOptions() Options {
	return Options{
		VideoHWAcceleration: true,
		VideoWidth:          DefaultVideoWidth,
		VideoHeight:         DefaultVideoHeight,
		VideoFPS:            DefaultVideoFPS,
		LocalAudioTrackID:   DefaultAudioTrackID,
		LocalVideoTrackID:   DefaultVideoTrackID,
		BPSInKbps:           DefaultBPSInKbps,
	}
}

// ValidateICEServer checks that every URL parses as a STUN or TURN URI and
// that TURN servers carry credentials.
func ValidateICEServer(s ICEServer) error {
	if len(s.URLs) == 0 {
		return fmt.Errorf("%w: no urls", ErrInvalidICEServer)
	}
	for _, raw := range s.URLs {
		u, err := stun.ParseURI(raw)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidICEServer, raw, err)
		}
		if (u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS) &&
			(s.Username == "" || s.Credential == "") {
			return fmt.Errorf("%w: %q needs a username and credential", ErrInvalidICEServer, raw)
		}
	}
	return nil
}
