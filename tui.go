package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rtcaudio/route"
	"rtcaudio/session"
)

// TUI message types
type RouteMsg struct {
	Selected  route.Device
	Available route.DeviceSet
}
type IceStateMsg struct{ State session.IceConnectionState }
type MutedMsg struct{ Muted bool }
type RemoteLevelMsg struct{ Level float64 }
type LocalSignalMsg struct {
	Text   string
	Copied bool
}
type StatusMsg struct{ Text string }
type ErrorMsg struct{ Text string }
type tickMsg time.Time

type tuiModel struct {
	ctl         controller
	remoteVideo bool
	offer       bool
	hotkey      bool

	width, height int
	selected      route.Device
	available     route.DeviceSet
	ice           session.IceConnectionState
	iceSeen       bool
	muted         bool
	level         float64 // smoothed remote level
	signalLines   int
	candidates    int
	copied        bool
	status        string
	lastErr       string
	picker        *devicePicker
}

// tuiSink forwards events to a running program.
type tuiSink struct{ p *tea.Program }

func (s tuiSink) Route(selected route.Device, available route.DeviceSet) {
	s.p.Send(RouteMsg{Selected: selected, Available: available})
}
func (s tuiSink) IceState(st session.IceConnectionState) { s.p.Send(IceStateMsg{State: st}) }
func (s tuiSink) Muted(muted bool)                       { s.p.Send(MutedMsg{Muted: muted}) }
func (s tuiSink) RemoteLevel(level float64)              { s.p.Send(RemoteLevelMsg{Level: level}) }
func (s tuiSink) Status(text string)                     { s.p.Send(StatusMsg{Text: text}) }
func (s tuiSink) Error(text string)                      { s.p.Send(ErrorMsg{Text: text}) }
func (s tuiSink) LocalSignal(text string, copied bool) {
	s.p.Send(LocalSignalMsg{Text: text, Copied: copied})
}

func newTUIModel(ctl controller, offer, remoteVideo, hotkey bool) tuiModel {
	return tuiModel{ctl: ctl, offer: offer, remoteVideo: remoteVideo, hotkey: hotkey}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.key(msg.String())

	case tickMsg:
		m.level *= 0.85
		return m, tuiTick()

	case RouteMsg:
		m.selected = msg.Selected
		m.available = msg.Available

	case IceStateMsg:
		m.ice = msg.State
		m.iceSeen = true

	case MutedMsg:
		m.muted = msg.Muted

	case RemoteLevelMsg:
		m.level = m.level*0.6 + msg.Level*0.4

	case LocalSignalMsg:
		m.signalLines = strings.Count(msg.Text, "\n")
		m.candidates = strings.Count(msg.Text, "a=candidate:")
		m.copied = msg.Copied

	case StatusMsg:
		m.status = msg.Text

	case ErrorMsg:
		m.lastErr = msg.Text
	}
	return m, nil
}

func (m tuiModel) key(k string) (tea.Model, tea.Cmd) {
	if k == "ctrl+c" {
		m.ctl.quit()
		return m, tea.Quit
	}
	if m.picker != nil {
		if d, done := m.picker.key(k); done {
			m.picker = nil
			if d != route.None {
				m.ctl.selectDevice(d)
			}
		}
		return m, nil
	}
	switch k {
	case "q":
		m.ctl.quit()
		return m, tea.Quit
	case "m":
		m.ctl.setMuted(!m.ctl.isMuted())
	case "d":
		m.picker = newDevicePicker(m.available, m.selected)
	case "s":
		if m.remoteVideo {
			m.ctl.switchScaling()
		}
	}
	return m, nil
}

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	meterOn    = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	meterOff   = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
)

func iceStyle(st session.IceConnectionState) lipgloss.Style {
	switch st {
	case session.IceConnected, session.IceCompleted:
		return okStyle
	case session.IceFailed:
		return errStyle
	case session.IceDisconnected, session.IceChecking:
		return warnStyle
	}
	return valueStyle
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.picker != nil {
		return m.picker.view()
	}

	var lines []string
	row := func(label, value string) {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-8s", label))+value)
	}

	role := "answer"
	if m.offer {
		role = "offer"
	}
	row("role", valueStyle.Render(role))

	if m.iceSeen {
		row("ice", iceStyle(m.ice).Render(m.ice.String()))
	} else {
		row("ice", labelStyle.Render("-"))
	}

	if m.selected == route.None {
		row("output", labelStyle.Render("not routed"))
	} else {
		row("output", valueStyle.Render(deviceLabel(m.selected))+labelStyle.Render("  of "+availableText(m.available)))
	}

	if m.muted {
		row("mic", errStyle.Bold(true).Render("● MUTED"))
	} else {
		row("mic", okStyle.Render("○ live"))
	}

	row("remote", renderMeter(m.level, 30))

	if m.signalLines > 0 {
		sig := valueStyle.Render(fmt.Sprintf("%d lines, %d candidates", m.signalLines, m.candidates))
		if m.copied {
			sig += " " + okStyle.Render("[✓ copied]")
		}
		row("local", sig)
	}

	lines = append(lines, "")
	if m.status != "" {
		for _, l := range wrapText(m.status, max(m.width-2, 10)) {
			lines = append(lines, labelStyle.Render(l))
		}
	}
	if m.lastErr != "" {
		for _, l := range wrapText("⚠ "+m.lastErr, max(m.width-2, 10)) {
			lines = append(lines, errStyle.Render(l))
		}
	}

	lines = append(lines, "")
	help := boldHelp.Render("m") + helpStyle.Render(" mute  ")
	if m.hotkey {
		help = boldHelp.Render("Ctrl+Shift+Space") + helpStyle.Render(" or ") + help
	}
	help += boldHelp.Render("d") + helpStyle.Render(" device  ")
	if m.remoteVideo {
		help += boldHelp.Render("s") + helpStyle.Render(" scaling  ")
	}
	help += boldHelp.Render("q") + helpStyle.Render(" hang up")
	lines = append(lines, help)
	lines = append(lines, helpStyle.Render("rtcaudio "+version))

	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func availableText(s route.DeviceSet) string {
	var names []string
	for _, d := range s.Slice() {
		names = append(names, deviceLabel(d))
	}
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}

// renderMeter draws level on a square-root scale so speech fills the bar.
func renderMeter(level float64, width int) string {
	n := int(math.Round(math.Sqrt(math.Min(math.Max(level, 0)*4, 1)) * float64(width)))
	return meterOn.Render(strings.Repeat("█", n)) + meterOff.Render(strings.Repeat("░", width-n))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
