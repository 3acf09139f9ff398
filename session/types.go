package session

import (
	"net"
	"strings"

	"github.com/pion/webrtc/v4"
)

type IceConnectionState int

const (
	IceNew IceConnectionState = iota
	IceChecking
	IceConnected
	IceCompleted
	IceFailed
	IceDisconnected
	IceClosed
)

func (s IceConnectionState) String() string {
	switch s {
	case IceNew:
		return "NEW"
	case IceChecking:
		return "CHECKING"
	case IceConnected:
		return "CONNECTED"
	case IceCompleted:
		return "COMPLETED"
	case IceFailed:
		return "FAILED"
	case IceDisconnected:
		return "DISCONNECTED"
	case IceClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

func iceStateFrom(s webrtc.ICEConnectionState) (IceConnectionState, bool) {
	switch s {
	case webrtc.ICEConnectionStateNew:
		return IceNew, true
	case webrtc.ICEConnectionStateChecking:
		return IceChecking, true
	case webrtc.ICEConnectionStateConnected:
		return IceConnected, true
	case webrtc.ICEConnectionStateCompleted:
		return IceCompleted, true
	case webrtc.ICEConnectionStateFailed:
		return IceFailed, true
	case webrtc.ICEConnectionStateDisconnected:
		return IceDisconnected, true
	case webrtc.ICEConnectionStateClosed:
		return IceClosed, true
	}
	return IceNew, false
}

// AdapterType is the kind of network interface a candidate was gathered on.
type AdapterType int

const (
	AdapterUnknown AdapterType = iota
	AdapterEthernet
	AdapterWiFi
	AdapterCellular
	AdapterVPN
	AdapterLoopback
	AdapterAny
)

func (a AdapterType) String() string {
	switch a {
	case AdapterEthernet:
		return "ETHERNET"
	case AdapterWiFi:
		return "WIFI"
	case AdapterCellular:
		return "CELLULAR"
	case AdapterVPN:
		return "VPN"
	case AdapterLoopback:
		return "LOOPBACK"
	case AdapterAny:
		return "ADAPTER_TYPE_ANY"
	}
	return "UNKNOWN"
}

var adapterPrefixes = []struct {
	prefix string
	typ    AdapterType
}{
	{"lo", AdapterLoopback},
	{"wl", AdapterWiFi},
	{"wifi", AdapterWiFi},
	{"wwan", AdapterCellular},
	{"rmnet", AdapterCellular},
	{"ccmni", AdapterCellular},
	{"pdp", AdapterCellular},
	{"tun", AdapterVPN},
	{"tap", AdapterVPN},
	{"wg", AdapterVPN},
	{"utun", AdapterVPN},
	{"ppp", AdapterVPN},
	{"tailscale", AdapterVPN},
	{"eth", AdapterEthernet},
	{"en", AdapterEthernet},
}

func adapterTypeByName(name string) AdapterType {
	name = strings.ToLower(name)
	for _, p := range adapterPrefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.typ
		}
	}
	return AdapterUnknown
}

// adapterTypeFor finds the local interface that owns address.
func adapterTypeFor(address string) AdapterType {
	ip := net.ParseIP(address)
	if ip == nil {
		return AdapterUnknown
	}
	if ip.IsLoopback() {
		return AdapterLoopback
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return AdapterUnknown
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
				return adapterTypeByName(iface.Name)
			}
		}
	}
	return AdapterUnknown
}

type IceCandidate struct {
	SdpMid        string
	SdpMLineIndex uint16
	Sdp           string
	ServerURL     string
	AdapterType   AdapterType
}

func candidateFrom(c *webrtc.ICECandidate, servers []ICEServer) IceCandidate {
	out := IceCandidate{
		SdpMid:        c.SDPMid,
		SdpMLineIndex: c.SDPMLineIndex,
		Sdp:           c.ToJSON().Candidate,
	}
	switch c.Typ {
	case webrtc.ICECandidateTypeHost:
		out.AdapterType = adapterTypeFor(c.Address)
	case webrtc.ICECandidateTypeSrflx:
		out.AdapterType = adapterTypeFor(c.RelatedAddress)
		out.ServerURL = firstURL(servers, "stun")
	case webrtc.ICECandidateTypeRelay:
		out.AdapterType = AdapterAny
		out.ServerURL = firstURL(servers, "turn")
	}
	return out
}

func firstURL(servers []ICEServer, scheme string) string {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, scheme) {
				return u
			}
		}
	}
	return ""
}

func (c IceCandidate) init() webrtc.ICECandidateInit {
	mid, idx := c.SdpMid, c.SdpMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     c.Sdp,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

type SdpType int

const (
	SdpOffer SdpType = iota
	SdpAnswer
)

func (t SdpType) String() string {
	if t == SdpAnswer {
		return "ANSWER"
	}
	return "OFFER"
}

type SessionDescription struct {
	Type        SdpType
	Description string
}

func descriptionFrom(d webrtc.SessionDescription) (SessionDescription, error) {
	switch d.Type {
	case webrtc.SDPTypeOffer:
		return SessionDescription{Type: SdpOffer, Description: d.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return SessionDescription{Type: SdpAnswer, Description: d.SDP}, nil
	}
	return SessionDescription{}, ErrUnsupportedSDPType
}

func (d SessionDescription) toWebRTC() webrtc.SessionDescription {
	typ := webrtc.SDPTypeOffer
	if d.Type == SdpAnswer {
		typ = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.Description}
}

type ScalingType int

const (
	ScaleAspectFit ScalingType = iota
	ScaleAspectFill
	ScaleAspectBalanced
)

func (s ScalingType) String() string {
	switch s {
	case ScaleAspectFill:
		return "SCALE_ASPECT_FILL"
	case ScaleAspectBalanced:
		return "SCALE_ASPECT_BALANCED"
	}
	return "SCALE_ASPECT_FIT"
}
