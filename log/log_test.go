package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir(""); SetLevel("debug") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("RTCAUDIO_LOG_PATH", "/tmp/rtcaudio-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/rtcaudio-env-log" {
		t.Errorf("got %q, want /tmp/rtcaudio-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("RTCAUDIO_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "rtcaudio") {
		t.Errorf("default dir %q does not mention rtcaudio", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "route_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestRouteChanged(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	RouteChanged("EARPIECE", []string{"EARPIECE", "SPEAKER_PHONE"}, "NONE")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "route_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "EARPIECE\tEARPIECE,SPEAKER_PHONE") {
		t.Errorf("route_log.txt missing route, got: %q", line)
	}

	diag, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(diag), "route_changed") {
		t.Errorf("diagnostics_log.txt missing route_changed event, got: %q", diag)
	}
}

func TestSetLevelFilters(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	Debug("hidden-debug")
	Warn("visible-warn")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden-debug") {
		t.Error("debug line written at warn level")
	}
	if !strings.Contains(string(data), "visible-warn") {
		t.Error("warn line missing")
	}
}

func TestSetLevelInvalid(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggingBeforeInit(t *testing.T) {
	Close()
	Info("dropped")
	RouteChanged("NONE", nil, "NONE") // should not panic
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
