package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcaudio/audio"
	"rtcaudio/bluetooth"
	"rtcaudio/looper"
	"rtcaudio/proximity"
	"rtcaudio/route"
)

type recorder struct {
	NopListener
	descs   chan SessionDescription
	errs    chan string
	devices chan route.Device
	scales  chan bool
}

func newRecorder() *recorder {
	return &recorder{
		descs:   make(chan SessionDescription, 8),
		errs:    make(chan string, 8),
		devices: make(chan route.Device, 32),
		scales:  make(chan bool, 8),
	}
}

func (r *recorder) OnLocalSessionDescription(d SessionDescription) { r.descs <- d }
func (r *recorder) OnError(msg string)                             { r.errs <- msg }
func (r *recorder) OnRemoteScaleChanged(filled bool)               { r.scales <- filled }
func (r *recorder) OnAudioDeviceChanged(d route.Device, _ route.DeviceSet) {
	select {
	case r.devices <- d:
	default:
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func newSession(t *testing.T, opts Options, deps Deps) (*Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	s := New(opts, rec, deps)
	t.Cleanup(s.Dispose)
	return s, rec
}

func audioOptions() Options {
	opts := DefaultOptions()
	opts.LocalAudio = true
	opts.RemoteAudio = true
	return opts
}

func configured(t *testing.T, opts Options, deps Deps) (*Session, *recorder) {
	t.Helper()
	s, rec := newSession(t, opts, deps)
	require.NoError(t, s.Configure(context.Background()))
	require.NoError(t, s.AttachLocalMedia())
	return s, rec
}

func TestValidateICEServer(t *testing.T) {
	tests := []struct {
		name    string
		server  ICEServer
		wantErr bool
	}{
		{"stun", ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}}, false},
		{"turn with credentials", ICEServer{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"}, false},
		{"turn without credentials", ICEServer{URLs: []string{"turn:turn.example.com:3478"}}, true},
		{"no urls", ICEServer{}, true},
		{"http", ICEServer{URLs: []string{"https://example.com"}}, true},
		{"empty url", ICEServer{URLs: []string{""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateICEServer(tt.server)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidICEServer)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigureRejectsInvalidICEServer(t *testing.T) {
	opts := DefaultOptions()
	opts.ICEServers = []ICEServer{{URLs: []string{"turn:turn.example.com"}}}
	s, _ := newSession(t, opts, Deps{})
	require.ErrorIs(t, s.Configure(context.Background()), ErrInvalidICEServer)
}

func TestConfigureTwice(t *testing.T) {
	s, _ := newSession(t, DefaultOptions(), Deps{})
	require.NoError(t, s.Configure(context.Background()))
	require.Error(t, s.Configure(context.Background()))
}

func TestAttachBeforeConfigure(t *testing.T) {
	s, _ := newSession(t, audioOptions(), Deps{})
	require.ErrorIs(t, s.AttachLocalMedia(), ErrNotConfigured)
	require.ErrorIs(t, s.WriteLocalAudio(media.Sample{Data: []byte{0}, Duration: 20 * time.Millisecond}), ErrNotConfigured)
}

func TestCreateOfferBeforeConfigure(t *testing.T) {
	s, rec := newSession(t, DefaultOptions(), Deps{})
	s.CreateOffer()
	assert.Equal(t, ErrNotConfigured.Error(), receive(t, rec.errs))
}

func firstPayloadIsCodec(t *testing.T, sdp, kind, codec string) bool {
	t.Helper()
	for _, line := range strings.Split(sdp, "\r\n") {
		if !strings.HasPrefix(line, "m="+kind+" ") {
			continue
		}
		fields := strings.Fields(line)
		require.Greater(t, len(fields), 3, "m-line %q", line)
		return strings.Contains(strings.ToLower(sdp), strings.ToLower("a=rtpmap:"+fields[3]+" "+codec+"/"))
	}
	t.Fatalf("no m=%s line", kind)
	return false
}

func TestOfferPrefersOpus(t *testing.T) {
	s, rec := configured(t, audioOptions(), Deps{})
	s.CreateOffer()
	offer := receive(t, rec.descs)
	assert.Equal(t, SdpOffer, offer.Type)
	assert.True(t, firstPayloadIsCodec(t, offer.Description, "audio", "opus"), offer.Description)
}

func TestMultipleSDPCreate(t *testing.T) {
	s, rec := configured(t, audioOptions(), Deps{})
	s.CreateOffer()
	receive(t, rec.descs)
	s.CreateOffer()
	assert.Equal(t, "Multiple SDP create.", receive(t, rec.errs))
}

func TestOfferAnswer(t *testing.T) {
	caller, callerRec := configured(t, audioOptions(), Deps{})
	callee, calleeRec := configured(t, audioOptions(), Deps{})

	caller.CreateOffer()
	offer := receive(t, callerRec.descs)
	callee.SetRemoteDescription(offer)
	callee.CreateAnswer()
	answer := receive(t, calleeRec.descs)
	require.Equal(t, SdpAnswer, answer.Type)
	caller.SetRemoteDescription(answer)

	select {
	case msg := <-callerRec.errs:
		t.Fatalf("caller error: %s", msg)
	case msg := <-calleeRec.errs:
		t.Fatalf("callee error: %s", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSetRemoteDescriptionError(t *testing.T) {
	s, rec := configured(t, audioOptions(), Deps{})
	s.SetRemoteDescription(SessionDescription{Type: SdpAnswer, Description: "v=0\r\n"})
	assert.True(t, strings.HasPrefix(receive(t, rec.errs), "Set SDP error: "))
}

type routeFixture struct {
	loop *looper.Loop
	sys  *audio.FakeSystem
	deps Deps
}

func newRouteFixture(t *testing.T) *routeFixture {
	t.Helper()
	f := &routeFixture{loop: looper.New("control"), sys: audio.NewFakeSystem(true)}
	f.loop.Start()
	t.Cleanup(func() {
		f.loop.Quit()
		f.loop.Wait()
	})
	f.deps = Deps{
		Control: f.loop,
		NewRoute: func() *route.Manager {
			return route.New(f.sys, &bluetooth.FakeAdapter{}, proximity.NewFakeSensorManager(5), f.loop)
		},
	}
	return f
}

func TestAudioRouteFollowsSession(t *testing.T) {
	f := newRouteFixture(t)
	s, rec := configured(t, audioOptions(), f.deps)

	assert.Equal(t, route.SpeakerPhone, receive(t, rec.devices))
	assert.Equal(t, audio.ModeInCommunication, f.sys.Mode())

	s.SelectAudioDevice(route.Earpiece)
	assert.Equal(t, route.Earpiece, receive(t, rec.devices))

	s.SetMicrophoneEnabled(false)
	require.Eventually(t, f.sys.MicrophoneMute, time.Second, 10*time.Millisecond)
	require.NoError(t, s.WriteLocalAudio(media.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond}))

	s.Dispose()
	assert.Equal(t, audio.ModeNormal, f.sys.Mode())
	assert.False(t, f.sys.FocusHeld())
	assert.False(t, f.sys.MicrophoneMute())
}

func TestNoAudioRouteWithoutLocalTracks(t *testing.T) {
	f := newRouteFixture(t)
	opts := DefaultOptions()
	opts.RemoteAudio = true
	s, rec := configured(t, opts, f.deps)
	s.SelectAudioDevice(route.Earpiece)
	require.NoError(t, f.loop.Call(func() {}))
	select {
	case d := <-rec.devices:
		t.Fatalf("route manager started without local media: %s", d)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, f.sys.ModeSets)
}

func TestDisposeBeatsQueuedAudioRoute(t *testing.T) {
	f := newRouteFixture(t)
	opts := DefaultOptions()
	opts.RemoteAudio = true
	s, _ := configured(t, opts, f.deps)

	gate := make(chan struct{})
	require.True(t, f.loop.Post(func() { <-gate }))
	done := make(chan struct{})
	go func() {
		s.Dispose()
		close(done)
	}()
	require.Eventually(t, s.disposed.Load, time.Second, 5*time.Millisecond)

	s.startAudioRoute()
	close(gate)
	receive(t, done)

	var running bool
	require.NoError(t, f.loop.Call(func() { running = s.audio != nil }))
	assert.False(t, running, "route manager started after dispose")
	assert.Equal(t, 0, f.sys.ModeSets)
	assert.False(t, f.sys.FocusHeld())
}

func TestSwitchScalingType(t *testing.T) {
	s, rec := newSession(t, DefaultOptions(), Deps{})
	s.SwitchScalingType()
	assert.False(t, receive(t, rec.scales))
	s.SwitchScalingType()
	assert.True(t, receive(t, rec.scales))
}

func TestDispose(t *testing.T) {
	s, _ := configured(t, audioOptions(), Deps{})
	s.Dispose()
	s.Dispose()
	require.ErrorIs(t, s.Configure(context.Background()), ErrDisposed)
	require.ErrorIs(t, s.AttachLocalMedia(), ErrDisposed)
	require.ErrorIs(t, s.WriteLocalAudio(media.Sample{}), ErrDisposed)
	s.CreateOffer() // dropped
}

func TestConfigureHonorsContext(t *testing.T) {
	s, _ := newSession(t, DefaultOptions(), Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan struct{})
	s.worker.Post(func() { <-blocked })
	defer close(blocked)
	require.ErrorIs(t, s.Configure(ctx), context.Canceled)
}

type countingWriter struct {
	packets int
	closed  int
	err     error
}

func (w *countingWriter) WriteRTP(*rtp.Packet) error {
	w.packets++
	return w.err
}

func (w *countingWriter) Close() error {
	w.closed++
	return nil
}

func TestProxySink(t *testing.T) {
	var p ProxySink
	require.NoError(t, p.WriteRTP(&rtp.Packet{}))

	first := &countingWriter{}
	p.SetTarget(first)
	require.NoError(t, p.WriteRTP(&rtp.Packet{}))

	second := &countingWriter{err: errors.New("disk full")}
	p.SetTarget(second)
	require.Error(t, p.WriteRTP(&rtp.Packet{}))

	require.NoError(t, p.Close())
	require.NoError(t, p.WriteRTP(&rtp.Packet{}))
	assert.Equal(t, 1, first.packets)
	assert.Equal(t, 1, second.packets)
	assert.Equal(t, 0, first.closed)
	assert.Equal(t, 1, second.closed)
}
