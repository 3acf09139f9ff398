package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"rtcaudio/audio"
	"rtcaudio/beep"
	"rtcaudio/bluetooth"
	"rtcaudio/config"
	"rtcaudio/doctor"
	"rtcaudio/hotkey"
	"rtcaudio/log"
	"rtcaudio/looper"
	"rtcaudio/proximity"
	"rtcaudio/route"
	"rtcaudio/session"
	"rtcaudio/shutdown"
)

var version = "dev"

func fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	log.Close()
	os.Exit(1)
}

func run() {
	configFlag := flag.String("config", "", "YAML config file (default: built-in audio-only call)")
	envFlag := flag.String("env", ".env", "env file with TURN credentials, ignored when missing")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	offerFlag := flag.Bool("offer", false, "Create the offer (default when neither -offer nor -answer is given)")
	answerFlag := flag.Bool("answer", false, "Wait for a remote offer and answer it")
	deviceFlag := flag.String("device", "", "Initial output device: SPEAKER_PHONE, EARPIECE, WIRED_HEADSET or BLUETOOTH")
	recordFlag := flag.String("record", "", "Directory to record remote media into")
	inputFlag := flag.String("input", "", "Ogg/Opus file sent as the microphone, looped")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI (otherwise stdin-driven)")
	clipboardFlag := flag.Bool("clipboard", true, "Exchange session descriptions through the clipboard")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Hold time after which the mute hotkey acts push-to-talk")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("rtcaudio %s\n", version)
		os.Exit(0)
	}
	if *doctorFlag {
		os.Exit(doctor.Run())
	}
	if *offerFlag && *answerFlag {
		fmt.Fprintln(os.Stderr, "Error: -offer and -answer are exclusive")
		os.Exit(2)
	}
	offer := !*answerFlag

	if err := config.LoadEnv(*envFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cmp.Or(*logPathFlag, cfg.LogPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		log.Warnf("log level: %v", err)
	}
	if !cfg.Audio.Beep {
		beep.Disable()
	}

	var initial route.Device
	if *deviceFlag != "" {
		if initial, err = route.ParseDevice(*deviceFlag); err != nil {
			fatalf("%v", err)
		}
	}

	useTUI := *tuiFlag && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
	if *tuiFlag && !useTUI {
		log.Info("stdio is not a terminal, running headless")
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	sys, err := audio.NewSystem()
	if err != nil {
		fatalf("audio system: %v", err)
	}
	bt, err := bluetooth.NewAdapter()
	if err != nil {
		log.Warnf("bluetooth unavailable: %v", err)
		bt = bluetooth.Absent(err.Error())
	}
	sensors, err := proximity.NewSensorManager()
	if err != nil {
		log.Warnf("proximity sensor unavailable: %v", err)
		sensors = proximity.None()
	}
	defer closeBackends(sys, bt, sensors)

	control := looper.New("control")
	control.Start()

	// The call and its display reference each other; the sink is picked
	// first and the program wired to the call once both exist.
	var (
		sink    EventSink
		program *tea.Program
		fwd     = &forwardSink{}
	)
	if useTUI {
		sink = fwd
	} else {
		sink = &consoleSink{w: os.Stdout}
	}

	sig := &signal{publish: publisher(sink, *clipboardFlag)}
	routeOpts := append(cfg.RouteOptions(), route.WithFocusChangeHandler(func(fc audio.FocusChange) {
		sink.Status("audio focus: " + fc.String())
	}))
	remote := &remoteAudio{}
	events := &sessionEvents{sink: sink, sig: sig, remote: remote}
	sess := session.New(cfg.SessionOptions(), events, session.Deps{
		Control:  control,
		NewRoute: func() *route.Manager {
			m := route.New(sys, bt, sensors, control, routeOpts...)
			if d, ok := cfg.DefaultDevice(); ok {
				m.SetDefaultAudioDevice(d)
			}
			return m
		},
	})
	c := newCall(sess, sink, sig, offer)
	events.onRoute = c.routeChanged

	var hk hotkey.Hotkey
	if cfg.Audio.MuteHotkey {
		hk = hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey register: %v", err)
			hk = nil
		}
	}

	if useTUI {
		program = NewTUIProgram(newTUIModel(c, offer, cfg.Session.RemoteVideo, hk != nil))
		fwd.set(tuiSink{p: program})
		go func() {
			if _, err := program.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			c.quit()
		}()
	}

	if err := sess.Configure(ctx); err != nil {
		teardown(sess, control, program, hk)
		fatalf("configure session: %v", err)
	}
	if err := sess.AttachLocalMedia(); err != nil {
		teardown(sess, control, program, hk)
		fatalf("attach local media: %v", err)
	}
	if *recordFlag != "" {
		if err := attachRecorders(sess, *recordFlag, cfg.Session.RemoteVideo); err != nil {
			sink.Error(err.Error())
		}
	}
	if initial != route.None {
		c.preferDevice(initial)
	}

	// Background tasks end before the session is disposed.
	tasks, tctx := errgroup.WithContext(ctx)
	tctx, cancelTasks := context.WithCancel(tctx)
	if hk != nil {
		mt := hotkey.NewMuteToggle(hk, *longPressFlag, false)
		defer mt.Close()
		tasks.Go(func() error {
			for {
				select {
				case muted := <-mt.States():
					c.setMuted(muted)
				case <-tctx.Done():
					return nil
				}
			}
		})
	}
	if *inputFlag != "" {
		tasks.Go(func() error {
			if err := c.feedInput(tctx, *inputFlag); err != nil {
				log.Errorf("input: %v", err)
				sink.Error(err.Error())
			}
			return nil
		})
	}
	if *clipboardFlag {
		tasks.Go(func() error {
			c.watchClipboard(tctx)
			return nil
		})
	}
	if cfg.Session.RemoteAudio {
		tasks.Go(func() error {
			watchSilence(tctx, remote, sink)
			return nil
		})
	}
	if !useTUI {
		// Blocks on stdin until EOF, so it stays outside the group.
		go runScript(os.Stdin, c)
	}

	c.start()

	select {
	case <-ctx.Done():
		log.Info("signal received, hanging up")
	case <-c.Done():
		log.Info("hanging up")
	}
	c.quit()
	cancelTasks()
	if err := tasks.Wait(); err != nil {
		log.Warnf("background task: %v", err)
	}
	teardown(sess, control, program, hk)
}

// teardown disposes the session before stopping the control loop it
// routes audio on.
func teardown(sess *session.Session, control *looper.Loop, program *tea.Program, hk hotkey.Hotkey) {
	if hk != nil {
		hk.Unregister()
	}
	sess.Dispose()
	control.Quit()
	control.Wait()
	if program != nil {
		program.Quit()
		program.Wait()
	}
}

// closeBackends releases the platform connections once routing has stopped.
func closeBackends(backends ...any) {
	for _, b := range backends {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// attachRecorders writes remote audio, and remote video when expected, into
// dir. The codecs are the ones the session prefers.
func attachRecorders(sess *session.Session, dir string, video bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("record dir: %w", err)
	}
	rec, err := session.NewRecorder(dir, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	})
	if err != nil {
		return err
	}
	sess.SetRemoteAudioSink(rec)
	if !video {
		return nil
	}
	rec, err = session.NewRecorder(dir, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
	})
	if err != nil {
		return err
	}
	sess.SetRemoteSurface(rec)
	return nil
}
