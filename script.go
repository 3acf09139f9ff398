package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"rtcaudio/log"
	"rtcaudio/route"
)

// runScript drives a call from line input, for headless runs and tests.
// A pasted session description starts with "v=0" and ends at a blank line
// or at the first command. Candidate lines may follow at any time. Commands:
//
//	MUTE, UNMUTE, DEVICE <name>, SCALE, SLEEP <ms>, QUIT
//
// Input ends the call at EOF or QUIT.
func runScript(r io.Reader, ctl controller) {
	defer ctl.quit()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var sdp []string
	flush := func() {
		if len(sdp) == 0 {
			return
		}
		ctl.remoteDescription(strings.Join(sdp, "\r\n") + "\r\n")
		sdp = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
			continue
		case line == "v=0":
			flush()
			sdp = append(sdp, line)
			continue
		case len(sdp) > 0 && len(line) > 1 && line[1] == '=':
			sdp = append(sdp, line)
			continue
		}
		flush()

		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "MUTE":
			ctl.setMuted(true)
		case "UNMUTE":
			ctl.setMuted(false)
		case "SCALE":
			ctl.switchScaling()
		case "DEVICE":
			d, err := route.ParseDevice(arg)
			if err != nil {
				log.Warnf("script: %v", err)
				continue
			}
			ctl.selectDevice(d)
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return
		default:
			if strings.HasPrefix(line, "candidate:") || strings.HasPrefix(line, "a=candidate:") {
				ctl.remoteCandidate(line)
				continue
			}
			log.Warnf("script: unknown command %q", line)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		log.Warnf("script: read: %v", err)
	}
}
