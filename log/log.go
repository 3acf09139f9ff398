package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	routeFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
	level     = zerolog.DebugLevel
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absDir(flagPath)
	}

	// Priority 2: RTCAUDIO_LOG_PATH environment variable
	if envPath := os.Getenv("RTCAUDIO_LOG_PATH"); envPath != "" {
		return absDir(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absDir(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel changes the minimum level written to the diagnostics log.
// Accepts zerolog level names ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	logMu.Lock()
	level = lvl
	if logReady {
		diagLog = diagLog.Level(lvl)
	}
	logMu.Unlock()
	return nil
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	routePath := filepath.Join(dir, "route_log.txt")
	routeFile, err = os.OpenFile(routePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if routeFile != nil {
		routeFile.Close()
		routeFile = nil
	}
	logReady = false
}

func Debug(msg string) {
	if logReady {
		diagLog.Debug().Msg(msg)
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// RouteChanged records an applied audio route, both as a structured
// diagnostics event and as one line in route_log.txt.
func RouteChanged(selected string, available []string, userSelected string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("selected", selected).
		Strs("available", available).
		Str("user_selected", userSelected).
		Msg("route_changed")

	logMu.Lock()
	defer logMu.Unlock()
	if routeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, selected, strings.Join(available, ","))
	routeFile.WriteString(line)
}

func BluetoothTransition(from, to, cause string) {
	if !logReady {
		return
	}
	diagLog.Debug().
		Str("from", from).
		Str("to", to).
		Str("cause", cause).
		Msg("bluetooth_state")
}

func IceState(state string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("state", state).Msg("ice_connection_state")
}

func SessionStart(role string, audio, video bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("role", role).
		Bool("audio", audio).
		Bool("video", video).
		Msg("session_start")
}

func SessionEnd(routeChanges int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("route_changes", routeChanges).
		Msg("session_end")
}
