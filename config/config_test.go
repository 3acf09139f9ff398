package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rtcaudio/route"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.SessionOptions()
	if !opts.LocalAudio || !opts.RemoteAudio || opts.LocalVideo {
		t.Errorf("unexpected media flags %+v", opts)
	}
	if opts.LocalAudioTrackID != "ARDAMSa0" || opts.VideoWidth != 1024 || opts.VideoHeight != 768 || opts.VideoFPS != 30 {
		t.Errorf("defaults not applied: %+v", opts)
	}
}

func TestLoadFromReader(t *testing.T) {
	yml := `
session:
  ice_servers:
    - urls: ["stun:stun.example.com:3478"]
    - urls: ["turn:turn.example.com:3478?transport=udp"]
      username: alice
      credential: secret
  local_video: true
  remote_video: true
  video_width: 640
  video_height: 480
  audio_start_bitrate_kbps: 32
audio:
  speakerphone: "false"
  default_device: earpiece
  beep: false
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatal(err)
	}
	opts := cfg.SessionOptions()
	if len(opts.ICEServers) != 2 || opts.ICEServers[1].Username != "alice" {
		t.Errorf("ice servers = %+v", opts.ICEServers)
	}
	if !opts.LocalAudio {
		t.Error("local_audio default lost")
	}
	if opts.VideoWidth != 640 || opts.VideoFPS != 30 {
		t.Errorf("video = %dx%d@%d", opts.VideoWidth, opts.VideoHeight, opts.VideoFPS)
	}
	if opts.AudioStartBitrateKbps != 32 {
		t.Errorf("start bitrate = %d", opts.AudioStartBitrateKbps)
	}
	if cfg.Audio.Beep {
		t.Error("beep should be off")
	}
	if d, ok := cfg.DefaultDevice(); !ok || d != route.Earpiece {
		t.Errorf("default device = %s, %v", d, ok)
	}
	if n := len(cfg.RouteOptions()); n != 1 {
		t.Errorf("route options = %d", n)
	}
}

func TestUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("session:\n  local_audoi: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	yml := `
session:
  ice_servers:
    - urls: ["turn:turn.example.com"]
    - urls: []
  local_video: true
  video_width: 0
  audio_track_id: ""
audio:
  speakerphone: sometimes
  default_device: bluetooth
log_level: loud
`
	_, err := LoadFromReader(strings.NewReader(yml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"ice_servers[0]",
		"ice_servers[1]",
		"video size",
		"audio_track_id",
		"speakerphone",
		"default_device",
		"log_level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestTURNCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvTURNUsername, "bob")
	t.Setenv(EnvTURNCredential, "hunter2")
	yml := `
session:
  ice_servers:
    - urls: ["stun:stun.example.com"]
    - urls: ["turns:turn.example.com:5349"]
  relay_only: true
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatal(err)
	}
	stun, turn := cfg.Session.ICEServers[0], cfg.Session.ICEServers[1]
	if stun.Username != "" {
		t.Errorf("stun server got credentials %q", stun.Username)
	}
	if turn.Username != "bob" || turn.Credential != "hunter2" {
		t.Errorf("turn credentials = %q/%q", turn.Username, turn.Credential)
	}
}

func TestRelayOnlyNeedsTURN(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("session:\n  relay_only: true\n"))
	if err == nil || !strings.Contains(err.Error(), "relay_only") {
		t.Fatalf("expected relay_only error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\naudio:\n  mute_hotkey: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.Audio.MuteHotkey {
		t.Errorf("got %+v", cfg)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(EnvLogLevel+"=warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	if err := LoadEnv(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", cfg.LogLevel)
	}
}
