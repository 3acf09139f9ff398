// Package session wraps a pion peer connection for a one-to-one call. Every
// engine call and every engine callback runs on a single worker loop; the
// audio route manager runs on the caller's control loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"rtcaudio/log"
	"rtcaudio/looper"
	"rtcaudio/route"
	"rtcaudio/sdputil"
)

const (
	iceDisconnectedTimeout = 5 * time.Second
	iceFailedTimeout       = 25 * time.Second
	iceKeepAliveInterval   = 2 * time.Second

	levelInterval = 500 * time.Millisecond
)

// Listener receives session events on the session worker.
type Listener interface {
	OnLocalSessionDescription(SessionDescription)
	OnLocalIceCandidate(IceCandidate)
	OnIceConnectionStateChange(IceConnectionState)
	OnRemoteStreamAdded(streamID string)
	OnRemoteStreamRemoved(streamID string)
	OnRenegotiationNeeded()
	OnError(message string)
	OnRemoteScaleChanged(filled bool)
	OnAudioDeviceChanged(selected route.Device, available route.DeviceSet)
	OnRemoteAudioLevel(level float64)
}

// NopListener ignores every event. Embed it to handle only some of them.
type NopListener struct{}

func (NopListener) OnLocalSessionDescription(SessionDescription)       {}
func (NopListener) OnLocalIceCandidate(IceCandidate)                   {}
func (NopListener) OnIceConnectionStateChange(IceConnectionState)      {}
func (NopListener) OnRemoteStreamAdded(string)                         {}
func (NopListener) OnRemoteStreamRemoved(string)                       {}
func (NopListener) OnRenegotiationNeeded()                             {}
func (NopListener) OnError(string)                                     {}
func (NopListener) OnRemoteScaleChanged(bool)                          {}
func (NopListener) OnAudioDeviceChanged(route.Device, route.DeviceSet) {}
func (NopListener) OnRemoteAudioLevel(float64)                         {}

type Deps struct {
	// Control is the loop the audio route manager runs on.
	Control *looper.Loop
	// NewRoute builds the route manager once local media is attached. Nil
	// disables audio routing.
	NewRoute func() *route.Manager
}

type Session struct {
	opts     Options
	listener Listener
	deps     Deps

	worker      *looper.Loop
	disposed    atomic.Bool
	disposeOnce sync.Once
	micMuted    atomic.Bool
	audioTrack  atomic.Pointer[webrtc.TrackLocalStaticSample]
	videoTrack  atomic.Pointer[webrtc.TrackLocalStaticRTP]

	// Owned by the worker.
	pc            *webrtc.PeerConnection
	initiator     bool
	localSDP      *SessionDescription
	remoteStreams map[string]int
	scaling       ScalingType

	localVideo  ProxySink
	remoteVideo ProxySink
	remoteAudio ProxySink

	// Owned by the control loop.
	audio *route.Manager
}

func New(opts Options, l Listener, deps Deps) *Session {
	if l == nil {
		l = NopListener{}
	}
	s := &Session{
		opts:          opts,
		listener:      l,
		deps:          deps,
		worker:        looper.New("session"),
		remoteStreams: make(map[string]int),
		scaling:       ScaleAspectFill,
	}
	s.worker.Start()
	return s
}

// call runs fn on the worker and waits for its result or for ctx.
func (s *Session) call(ctx context.Context, fn func() error) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	errc := make(chan error, 1)
	go func() {
		var err error
		if e := s.worker.Call(func() { err = fn() }); e != nil {
			err = ErrDisposed
		}
		errc <- err
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(fn func()) {
	if !s.worker.Post(fn) {
		log.Debug("session: worker gone, task dropped")
	}
}

func (s *Session) reportError(msg string) {
	log.Errorf("session: peer connection error: %s", msg)
	s.post(func() { s.listener.OnError(msg) })
}

// Configure validates the ICE servers and builds the peer connection.
// Configuration errors are returned, never reported through the listener.
func (s *Session) Configure(ctx context.Context) error {
	for _, srv := range s.opts.ICEServers {
		if err := ValidateICEServer(srv); err != nil {
			return err
		}
	}
	return s.call(ctx, s.configure)
}

func (s *Session) configure() error {
	if s.pc != nil {
		return errors.New("session: already configured")
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}
	var se webrtc.SettingEngine
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepAliveInterval)
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se))

	cfg := webrtc.Configuration{
		BundlePolicy:  webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy: webrtc.RTCPMuxPolicyRequire,
	}
	for _, srv := range s.opts.ICEServers {
		ice := webrtc.ICEServer{URLs: srv.URLs, Username: srv.Username}
		if srv.Credential != "" {
			ice.Credential = srv.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, ice)
	}
	if s.opts.RelayOnly {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := candidateFrom(c, s.opts.ICEServers)
		s.post(func() { s.listener.OnLocalIceCandidate(cand) })
	})
	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		s.post(func() {
			mapped, ok := iceStateFrom(st)
			if !ok {
				return
			}
			log.IceState(mapped.String())
			s.listener.OnIceConnectionStateChange(mapped)
		})
	})
	pc.OnNegotiationNeeded(func() {
		s.post(func() { s.listener.OnRenegotiationNeeded() })
	})
	pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go s.readRemote(t)
	})
	s.pc = pc
	log.Debugf("session: configured, %d ice servers, relay only %v", len(cfg.ICEServers), s.opts.RelayOnly)
	return nil
}

// AttachLocalMedia adds the local tracks, or receive-only transceivers for
// media that is only expected from the remote side, and starts audio routing
// once a local track exists.
func (s *Session) AttachLocalMedia() error {
	return s.call(context.Background(), s.attachLocalMedia)
}

func (s *Session) attachLocalMedia() error {
	if s.pc == nil {
		return ErrNotConfigured
	}
	recvOnly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}

	if s.opts.LocalAudio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			s.opts.LocalAudioTrackID, localStreamID)
		if err != nil {
			return fmt.Errorf("create audio track: %w", err)
		}
		if err := s.addTrack(track); err != nil {
			return err
		}
		s.audioTrack.Store(track)
	} else if s.opts.RemoteAudio {
		if _, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvOnly); err != nil {
			return fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	if s.opts.LocalVideo {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			s.opts.LocalVideoTrackID, localStreamID)
		if err != nil {
			return fmt.Errorf("create video track: %w", err)
		}
		if err := s.addTrack(track); err != nil {
			return err
		}
		s.videoTrack.Store(track)
	} else if s.opts.RemoteVideo {
		if _, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvOnly); err != nil {
			return fmt.Errorf("add video transceiver: %w", err)
		}
	}

	if s.audioTrack.Load() != nil || s.videoTrack.Load() != nil {
		s.startAudioRoute()
	}
	return nil
}

func (s *Session) addTrack(track webrtc.TrackLocal) error {
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track %s: %w", track.ID(), err)
	}
	// Interceptors only see RTCP that is read.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (s *Session) startAudioRoute() {
	if s.deps.Control == nil || s.deps.NewRoute == nil {
		log.Debug("session: audio routing disabled")
		return
	}
	s.deps.Control.Post(func() {
		if s.audio != nil || s.disposed.Load() {
			return
		}
		s.audio = s.deps.NewRoute()
		s.audio.Start(route.ListenerFunc(func(selected route.Device, available route.DeviceSet) {
			log.Debugf("session: audio devices changed: %s, selected: %s", available, selected)
			s.post(func() { s.listener.OnAudioDeviceChanged(selected, available) })
		}))
	})
}

func (s *Session) CreateOffer() {
	s.post(func() { s.createSDP(true) })
}

func (s *Session) CreateAnswer() {
	s.post(func() { s.createSDP(false) })
}

func (s *Session) createSDP(offer bool) {
	if s.pc == nil {
		s.reportError(ErrNotConfigured.Error())
		return
	}
	s.initiator = offer

	var (
		desc webrtc.SessionDescription
		err  error
	)
	if offer {
		desc, err = s.pc.CreateOffer(nil)
	} else {
		desc, err = s.pc.CreateAnswer(nil)
	}
	if err != nil {
		s.reportError("Create SDP error: " + err.Error())
		return
	}
	if s.localSDP != nil {
		s.reportError("Multiple SDP create.")
		return
	}

	desc.SDP = preferCodecs(desc.SDP)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		s.reportError("Set SDP error: " + err.Error())
		return
	}
	local, err := descriptionFrom(desc)
	if err != nil {
		s.reportError(err.Error())
		return
	}
	s.localSDP = &local

	role := "answerer"
	if s.initiator {
		role = "initiator"
	}
	log.SessionStart(role, s.audioTrack.Load() != nil, s.videoTrack.Load() != nil)
	s.listener.OnLocalSessionDescription(local)
}

func preferCodecs(raw string) string {
	raw = sdputil.PreferCodec(raw, sdputil.CodecOpus, true)
	return sdputil.PreferCodec(raw, sdputil.CodecVP9, false)
}

func (s *Session) SetRemoteDescription(d SessionDescription) {
	s.post(func() {
		if s.pc == nil {
			s.reportError(ErrNotConfigured.Error())
			return
		}
		d.Description = preferCodecs(d.Description)
		if s.opts.AudioStartBitrateKbps > 0 {
			d.Description = sdputil.SetStartBitrate(d.Description, sdputil.CodecOpus, false, s.opts.AudioStartBitrateKbps)
		}
		if err := s.pc.SetRemoteDescription(d.toWebRTC()); err != nil {
			s.reportError("Set SDP error: " + err.Error())
			return
		}
		log.Debugf("session: remote %s set", d.Type)
	})
}

func (s *Session) AddRemoteIceCandidate(c IceCandidate) {
	s.post(func() {
		if s.pc == nil {
			return
		}
		if err := s.pc.AddICECandidate(c.init()); err != nil {
			log.Warnf("session: add ice candidate: %v", err)
		}
	})
}

// WriteLocalAudio sends one encoded Opus sample. Samples are dropped while the
// microphone is disabled.
func (s *Session) WriteLocalAudio(sample media.Sample) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	track := s.audioTrack.Load()
	if track == nil {
		return ErrNotConfigured
	}
	if s.micMuted.Load() {
		return nil
	}
	return track.WriteSample(sample)
}

// WriteLocalVideo sends one VP8 packet and mirrors it to the local surface.
func (s *Session) WriteLocalVideo(pkt *rtp.Packet) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	track := s.videoTrack.Load()
	if track == nil {
		return ErrNotConfigured
	}
	if err := s.localVideo.WriteRTP(pkt); err != nil {
		log.Warnf("session: local surface: %v", err)
	}
	return track.WriteRTP(pkt)
}

func (s *Session) SetLocalSurface(w media.Writer)    { s.localVideo.SetTarget(w) }
func (s *Session) SetRemoteSurface(w media.Writer)   { s.remoteVideo.SetTarget(w) }
func (s *Session) SetRemoteAudioSink(w media.Writer) { s.remoteAudio.SetTarget(w) }

// SwitchScalingType toggles the remote surface between fill and fit.
func (s *Session) SwitchScalingType() {
	s.post(func() {
		if s.scaling == ScaleAspectFill {
			s.scaling = ScaleAspectFit
		} else {
			s.scaling = ScaleAspectFill
		}
		log.Debugf("session: remote scaling %s", s.scaling)
		s.listener.OnRemoteScaleChanged(s.scaling == ScaleAspectFill)
	})
}

func (s *Session) SetMicrophoneEnabled(on bool) {
	s.micMuted.Store(!on)
	if s.deps.Control == nil {
		return
	}
	s.deps.Control.Post(func() {
		if s.audio != nil {
			s.audio.SetMicrophoneMute(!on)
		}
	})
}

// SelectAudioDevice makes d the user's choice. SpeakerPhone and Earpiece also
// become the default, so they stick once Bluetooth and wired headsets are
// gone.
func (s *Session) SelectAudioDevice(d route.Device) {
	if s.deps.Control == nil {
		return
	}
	s.deps.Control.Post(func() {
		if s.audio == nil {
			return
		}
		if d == route.SpeakerPhone || d == route.Earpiece {
			s.audio.SetDefaultAudioDevice(d)
		}
		s.audio.SelectAudioDevice(d)
	})
}

func (s *Session) readRemote(t *webrtc.TrackRemote) {
	streamID := t.StreamID()
	codec := t.Codec()
	log.Debugf("session: remote %s track %s (%s) in stream %s", t.Kind(), t.ID(), codec.MimeType, streamID)
	s.post(func() { s.remoteTrackAdded(streamID) })

	sink := &s.remoteVideo
	var meter *levelMeter
	if t.Kind() == webrtc.RTPCodecTypeAudio {
		sink = &s.remoteAudio
		if strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus) {
			meter = newLevelMeter()
		}
	}

	var (
		sum      float64
		n        int
		reported = time.Now()
	)
	for {
		pkt, _, err := t.ReadRTP()
		if err != nil {
			break
		}
		if err := sink.WriteRTP(pkt); err != nil {
			log.Warnf("session: remote %s sink: %v", t.Kind(), err)
		}
		if meter == nil {
			continue
		}
		if lvl, ok := meter.level(pkt.Payload); ok {
			sum += lvl
			n++
		}
		if n > 0 && time.Since(reported) >= levelInterval {
			avg := sum / float64(n)
			sum, n, reported = 0, 0, time.Now()
			s.post(func() { s.listener.OnRemoteAudioLevel(avg) })
		}
	}
	s.post(func() { s.remoteTrackRemoved(streamID) })
}

func (s *Session) remoteTrackAdded(id string) {
	s.remoteStreams[id]++
	if s.remoteStreams[id] == 1 {
		s.listener.OnRemoteStreamAdded(id)
	}
}

func (s *Session) remoteTrackRemoved(id string) {
	if s.remoteStreams[id] == 0 {
		return
	}
	s.remoteStreams[id]--
	if s.remoteStreams[id] == 0 {
		delete(s.remoteStreams, id)
		s.listener.OnRemoteStreamRemoved(id)
	}
}

// Dispose stops audio routing, closes the peer connection and releases the
// surfaces. It blocks until the worker has exited, must not be called from
// the control loop and is safe to call more than once.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		// Routing tasks still queued on the control loop see this and
		// leave the manager alone.
		s.disposed.Store(true)
		if s.deps.Control != nil {
			err := s.deps.Control.Call(func() {
				if s.audio == nil {
					return
				}
				log.SessionEnd(s.audio.RouteChanges())
				s.audio.Stop()
				s.audio = nil
			})
			if err != nil {
				log.Warnf("session: stop audio routing: %v", err)
			}
		}

		err := s.worker.Call(func() {
			var errs []error
			if s.pc != nil {
				errs = append(errs, s.pc.Close())
			}
			errs = append(errs, s.localVideo.Close(), s.remoteVideo.Close(), s.remoteAudio.Close())
			if err := errors.Join(errs...); err != nil {
				log.Warnf("session: dispose: %v", err)
			}
			s.pc = nil
			s.audioTrack.Store(nil)
			s.videoTrack.Store(nil)
			s.localSDP = nil
			s.initiator = false
			log.Debug("session: closing peer connection done")
		})
		if err != nil {
			log.Warnf("session: dispose: %v", err)
		}
		s.worker.Quit()
		s.worker.Wait()
	})
}
