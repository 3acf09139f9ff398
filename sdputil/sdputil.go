// Package sdputil rewrites session descriptions to prefer a codec or to
// hint a start bitrate.
package sdputil

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"rtcaudio/log"
)

const (
	CodecOpus = "opus"
	CodecISAC = "ISAC"
	CodecVP9  = "VP9"

	videoStartBitrate = "x-google-start-bitrate"
	audioMaxBitrate   = "maxaveragebitrate"

	bpsInKbps = 1000
)

func parse(raw string) (*sdp.SessionDescription, error) {
	var desc sdp.SessionDescription
	if err := desc.UnmarshalString(raw); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	return &desc, nil
}

func marshal(desc *sdp.SessionDescription, orig string) string {
	out, err := desc.Marshal()
	if err != nil {
		log.Warnf("sdputil: marshal: %v", err)
		return orig
	}
	return string(out)
}

func firstMedia(desc *sdp.SessionDescription, kind string) *sdp.MediaDescription {
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == kind {
			return md
		}
	}
	return nil
}

// rtpmapPayloads returns the payload types whose rtpmap names codec.
func rtpmapPayloads(md *sdp.MediaDescription, codec string) []string {
	var out []string
	for _, a := range md.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		pt, enc, ok := strings.Cut(a.Value, " ")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(enc, "/")
		if strings.EqualFold(name, codec) {
			out = append(out, pt)
		}
	}
	return out
}

// PreferCodec moves every payload type of codec to the front of the first
// audio or video media line. The input is returned unchanged when it cannot
// be parsed, has no such media line or does not offer the codec.
func PreferCodec(raw, codec string, audio bool) string {
	kind := "video"
	if audio {
		kind = "audio"
	}
	desc, err := parse(raw)
	if err != nil {
		log.Warnf("sdputil: %v, can't prefer %s", err, codec)
		return raw
	}
	md := firstMedia(desc, kind)
	if md == nil {
		log.Warnf("sdputil: no %s media description, can't prefer %s", kind, codec)
		return raw
	}
	preferred := rtpmapPayloads(md, codec)
	if len(preferred) == 0 {
		log.Warnf("sdputil: no payload types with name %s", codec)
		return raw
	}
	if len(md.MediaName.Formats) == 0 {
		log.Errorf("sdputil: wrong media description format: %s", md.MediaName)
		return raw
	}

	formats := append([]string(nil), preferred...)
	for _, f := range md.MediaName.Formats {
		if !slices.Contains(preferred, f) {
			formats = append(formats, f)
		}
	}
	log.Debugf("sdputil: change media description from %v to %v", md.MediaName.Formats, formats)
	md.MediaName.Formats = formats
	return marshal(desc, raw)
}

// SetStartBitrate adds a bitrate parameter to the fmtp line of codec:
// x-google-start-bitrate in kbps for video, maxaveragebitrate in bps for
// audio. A new fmtp attribute is inserted after the rtpmap when the codec
// has none.
func SetStartBitrate(raw, codec string, video bool, kbps int) string {
	desc, err := parse(raw)
	if err != nil {
		log.Warnf("sdputil: %v", err)
		return raw
	}

	param := audioMaxBitrate + "=" + strconv.Itoa(kbps*bpsInKbps)
	if video {
		param = videoStartBitrate + "=" + strconv.Itoa(kbps)
	}

	for _, md := range desc.MediaDescriptions {
		pts := rtpmapPayloads(md, codec)
		if len(pts) == 0 {
			continue
		}
		pt := pts[0]
		log.Debugf("sdputil: found %s rtpmap %s", codec, pt)

		for i, a := range md.Attributes {
			if a.Key == "fmtp" && strings.HasPrefix(a.Value, pt+" ") {
				md.Attributes[i].Value = a.Value + "; " + param
				log.Debugf("sdputil: update fmtp %s", md.Attributes[i].Value)
				return marshal(desc, raw)
			}
		}
		for i, a := range md.Attributes {
			if a.Key == "rtpmap" && strings.HasPrefix(a.Value, pt+" ") {
				fmtp := sdp.NewAttribute("fmtp", pt+" "+param)
				md.Attributes = slices.Insert(md.Attributes, i+1, fmtp)
				log.Debugf("sdputil: add fmtp %s", fmtp.Value)
				return marshal(desc, raw)
			}
		}
	}
	log.Warnf("sdputil: no rtpmap for %s codec", codec)
	return raw
}
