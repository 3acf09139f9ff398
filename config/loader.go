package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"rtcaudio/route"
	"rtcaudio/session"
)

const (
	EnvTURNUsername   = "RTCAUDIO_TURN_USERNAME"
	EnvTURNCredential = "RTCAUDIO_TURN_CREDENTIAL"
	EnvLogLevel       = "RTCAUDIO_LOG_LEVEL"
)

// LoadEnv reads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load env: %w", err)
}

// Load reads the YAML file at path. An empty path yields the defaults.
// Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of Default and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills TURN servers that have no credentials of their own.
func (c *Config) applyEnv() {
	user, cred := os.Getenv(EnvTURNUsername), os.Getenv(EnvTURNCredential)
	for i := range c.Session.ICEServers {
		s := &c.Session.ICEServers[i]
		if !isTURN(s.URLs) {
			continue
		}
		if s.Username == "" {
			s.Username = user
		}
		if s.Credential == "" {
			s.Credential = cred
		}
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.LogLevel = lvl
	}
}

func isTURN(urls []string) bool {
	for _, u := range urls {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

// Validate returns every problem found in cfg, joined.
func Validate(cfg *Config) error {
	var errs []error

	for i, s := range cfg.Session.ICEServers {
		err := session.ValidateICEServer(session.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
		if err != nil {
			errs = append(errs, fmt.Errorf("session.ice_servers[%d]: %w", i, err))
		}
	}
	if cfg.Session.RelayOnly && !hasTURN(cfg.Session.ICEServers) {
		errs = append(errs, errors.New("session.relay_only requires a TURN server"))
	}
	if cfg.Session.LocalVideo {
		if cfg.Session.VideoWidth <= 0 || cfg.Session.VideoHeight <= 0 {
			errs = append(errs, fmt.Errorf("session video size %dx%d is invalid", cfg.Session.VideoWidth, cfg.Session.VideoHeight))
		}
		if cfg.Session.VideoFPS <= 0 {
			errs = append(errs, fmt.Errorf("session.video_fps %d must be positive", cfg.Session.VideoFPS))
		}
		if cfg.Session.VideoTrackID == "" {
			errs = append(errs, errors.New("session.video_track_id is required"))
		}
	}
	if cfg.Session.LocalAudio && cfg.Session.AudioTrackID == "" {
		errs = append(errs, errors.New("session.audio_track_id is required"))
	}
	if cfg.Session.AudioStartBitrateKbps < 0 {
		errs = append(errs, fmt.Errorf("session.audio_start_bitrate_kbps %d is negative", cfg.Session.AudioStartBitrateKbps))
	}

	if _, err := route.ParsePolicy(cfg.Audio.Speakerphone); err != nil {
		errs = append(errs, fmt.Errorf("audio.speakerphone: %w", err))
	}
	if cfg.Audio.DefaultDevice != "" {
		d, err := route.ParseDevice(cfg.Audio.DefaultDevice)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("audio.default_device: %w", err))
		case d != route.SpeakerPhone && d != route.Earpiece:
			errs = append(errs, fmt.Errorf("audio.default_device %s; valid values: SPEAKER_PHONE, EARPIECE", d))
		}
	}

	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
		}
	}

	return errors.Join(errs...)
}

func hasTURN(servers []ICEServer) bool {
	for _, s := range servers {
		if isTURN(s.URLs) {
			return true
		}
	}
	return false
}
