// Package config holds the rtcaudio configuration schema and loader.
package config

import (
	"rtcaudio/route"
	"rtcaudio/session"
)

// ICEServer is a STUN or TURN server. TURN credentials may be left empty in
// the file and supplied through the environment.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// Session configures the peer connection and its media.
type Session struct {
	ICEServers []ICEServer `yaml:"ice_servers"`
	RelayOnly  bool        `yaml:"relay_only"`

	LocalAudio  bool `yaml:"local_audio"`
	LocalVideo  bool `yaml:"local_video"`
	RemoteAudio bool `yaml:"remote_audio"`
	RemoteVideo bool `yaml:"remote_video"`

	VideoHWAcceleration bool `yaml:"video_hw_acceleration"`
	VideoWidth          int  `yaml:"video_width"`
	VideoHeight         int  `yaml:"video_height"`
	VideoFPS            int  `yaml:"video_fps"`

	AudioTrackID string `yaml:"audio_track_id"`
	VideoTrackID string `yaml:"video_track_id"`

	AudioStartBitrateKbps int `yaml:"audio_start_bitrate_kbps"`
}

// Audio configures output routing.
type Audio struct {
	// Speakerphone is one of auto, true or false.
	Speakerphone string `yaml:"speakerphone"`
	// DefaultDevice is SPEAKER_PHONE or EARPIECE. Empty keeps the
	// policy's choice.
	DefaultDevice string `yaml:"default_device"`
	Beep          bool   `yaml:"beep"`
	MuteHotkey    bool   `yaml:"mute_hotkey"`
}

// Config is the root of config.yaml.
type Config struct {
	Session  Session `yaml:"session"`
	Audio    Audio   `yaml:"audio"`
	LogPath  string  `yaml:"log_path"`
	LogLevel string  `yaml:"log_level"`
}

// Default is an audio-only call with automatic speakerphone handling.
func Default() *Config {
	o := session.DefaultOptions()
	return &Config{
		Session: Session{
			ICEServers:          []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
			LocalAudio:          true,
			RemoteAudio:         true,
			VideoHWAcceleration: o.VideoHWAcceleration,
			VideoWidth:          o.VideoWidth,
			VideoHeight:         o.VideoHeight,
			VideoFPS:            o.VideoFPS,
			AudioTrackID:        o.LocalAudioTrackID,
			VideoTrackID:        o.LocalVideoTrackID,
		},
		Audio: Audio{
			Speakerphone: route.PolicyAuto.String(),
			Beep:         true,
			MuteHotkey:   true,
		},
		LogLevel: "info",
	}
}

// SessionOptions converts the session section.
func (c *Config) SessionOptions() session.Options {
	o := session.DefaultOptions()
	o.LocalAudio = c.Session.LocalAudio
	o.LocalVideo = c.Session.LocalVideo
	o.RemoteAudio = c.Session.RemoteAudio
	o.RemoteVideo = c.Session.RemoteVideo
	o.RelayOnly = c.Session.RelayOnly
	o.VideoHWAcceleration = c.Session.VideoHWAcceleration
	o.VideoWidth = c.Session.VideoWidth
	o.VideoHeight = c.Session.VideoHeight
	o.VideoFPS = c.Session.VideoFPS
	o.LocalAudioTrackID = c.Session.AudioTrackID
	o.LocalVideoTrackID = c.Session.VideoTrackID
	o.AudioStartBitrateKbps = c.Session.AudioStartBitrateKbps
	for _, s := range c.Session.ICEServers {
		o.ICEServers = append(o.ICEServers, session.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return o
}

// RouteOptions converts the audio section. Call after Validate.
func (c *Config) RouteOptions() []route.Option {
	p, err := route.ParsePolicy(c.Audio.Speakerphone)
	if err != nil {
		return nil
	}
	return []route.Option{route.WithSpeakerphonePolicy(p)}
}

// DefaultDevice returns the configured default device, if any.
func (c *Config) DefaultDevice() (route.Device, bool) {
	if c.Audio.DefaultDevice == "" {
		return route.None, false
	}
	d, err := route.ParseDevice(c.Audio.DefaultDevice)
	if err != nil {
		return route.None, false
	}
	return d, true
}
