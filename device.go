package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rtcaudio/route"
)

// devicePicker is the output device list opened with the d key.
type devicePicker struct {
	devices []route.Device
	cursor  int
}

func newDevicePicker(available route.DeviceSet, selected route.Device) *devicePicker {
	p := &devicePicker{devices: available.Slice()}
	for i, d := range p.devices {
		if d == selected {
			p.cursor = i
		}
	}
	return p
}

// key handles one key press. It returns the chosen device and whether the
// picker is finished; esc finishes without a choice.
func (p *devicePicker) key(k string) (route.Device, bool) {
	switch k {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.devices)-1 {
			p.cursor++
		}
	case "enter":
		if len(p.devices) == 0 {
			return route.None, true
		}
		return p.devices[p.cursor], true
	case "esc", "d":
		return route.None, true
	}
	return route.None, false
}

var (
	pickerTitle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pickerCursor = lipgloss.NewStyle().Foreground(lipgloss.Color("36")).Bold(true)
)

func (p *devicePicker) view() string {
	var b strings.Builder
	b.WriteString(pickerTitle.Render("Select output device (↑/↓, Enter to confirm, Esc to cancel):"))
	b.WriteString("\n\n")
	if len(p.devices) == 0 {
		b.WriteString("    no devices available\n")
	}
	for i, d := range p.devices {
		if i == p.cursor {
			b.WriteString(pickerCursor.Render("  ▶ " + deviceLabel(d)))
		} else {
			b.WriteString("    " + deviceLabel(d))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var deviceLabels = map[route.Device]string{
	route.SpeakerPhone: "speakerphone",
	route.WiredHeadset: "wired headset",
	route.Earpiece:     "earpiece",
	route.Bluetooth:    "bluetooth headset",
}

func deviceLabel(d route.Device) string {
	if l, ok := deviceLabels[d]; ok {
		return l
	}
	return "none"
}
