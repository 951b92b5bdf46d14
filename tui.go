package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pulse/clipboard"
	"pulse/gui"
	"pulse/hotkey"
	"pulse/session"
	"pulse/transcript"
)

// TUI message types
type StateMsg struct{ State session.State }
type VolumeMsg struct{ Level float64 }
type TranscriptMsg struct{ Transcript transcript.Transcript }
type ErrorMsg struct{ Err error }
type MutedMsg struct{ Muted bool }
type SilenceHintMsg struct{ Show bool }
type DeviceLineMsg struct{ Text string }
type CopiedMsg struct {
	Items int
	Err   error
}
type tickMsg time.Time

const (
	userLabel        = gui.UserLabel
	modelLabel       = gui.ModelLabel
	awaitingInput    = gui.AwaitingInput
	missingKeyNotice = gui.MissingKeyNotice
	partialCursor    = gui.PartialCursor
)

type tuiModel struct {
	ctl        controller
	mute       hotkey.Muter
	connect    func(ctx context.Context) error
	hasKey     bool
	deviceLine string

	state         session.State
	muted         bool
	frame         int
	level         float64
	width, height int
	transcript    transcript.Transcript
	stats         transcript.SessionStats
	lastErr       string
	silenceHint   bool
	notice        string
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// Pre-computed pixel styles to avoid allocations in render loop
var (
	pixelStyles = map[gui.Mode]*[16]lipgloss.Style{}
	pixelBg     = map[gui.Mode]*[16][16]lipgloss.Style{}
)

func init() {
	for mode, colors := range gui.Palettes {
		var fg [16]lipgloss.Style
		var bg [16][16]lipgloss.Style
		for i, c := range colors {
			if c == "" {
				continue
			}
			fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
			for j, b := range colors {
				if b != "" {
					bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Background(lipgloss.Color(b))
				}
			}
		}
		pixelStyles[mode] = &fg
		pixelBg[mode] = &bg
	}
}

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	liveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	modelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func newTUIModel(ctl controller, mute hotkey.Muter, connect func(context.Context) error, hasKey bool, deviceLine string) tuiModel {
	return tuiModel{
		ctl:        ctl,
		mute:       mute,
		connect:    connect,
		hasKey:     hasKey,
		deviceLine: deviceLine,
		transcript: ctl.Transcript(),
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// tuiSink forwards session events into the running program.
type tuiSink struct{}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (tuiSink) StateChange(s session.State)              { tuiSend(StateMsg{State: s}) }
func (tuiSink) Volume(v float64)                         { tuiSend(VolumeMsg{Level: v}) }
func (tuiSink) TranscriptUpdate(t transcript.Transcript) { tuiSend(TranscriptMsg{Transcript: t}) }
func (tuiSink) Error(err error)                          { tuiSend(ErrorMsg{Err: err}) }
func (tuiSink) Muted(m bool)                             { tuiSend(MutedMsg{Muted: m}) }
func (tuiSink) SilenceHint(show bool)                    { tuiSend(SilenceHintMsg{Show: show}) }

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
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
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		m.stats = m.ctl.Stats()
		return m, tuiTick()

	case StateMsg:
		m.state = msg.State
		switch msg.State {
		case session.StateConnecting:
			m.lastErr = ""
			m.notice = ""
		case session.StateConnected:
			m.muted = false
		case session.StateDisconnected:
			m.level = 0
			m.silenceHint = false
		}

	case VolumeMsg:
		if m.state == session.StateConnected {
			m.level = m.level*0.6 + msg.Level*0.4
		}

	case TranscriptMsg:
		m.transcript = msg.Transcript

	case ErrorMsg:
		m.lastErr = msg.Err.Error()

	case MutedMsg:
		m.muted = msg.Muted
		if m.muted {
			m.level = 0
		}

	case SilenceHintMsg:
		m.silenceHint = msg.Show

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case CopiedMsg:
		if msg.Err != nil {
			m.notice = "copy failed: " + msg.Err.Error()
		} else {
			m.notice = fmt.Sprintf("copied %d items", msg.Items)
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "enter":
		switch m.state {
		case session.StateDisconnected:
			connect := m.connect
			return m, func() tea.Msg {
				// Failures arrive through OnError.
				connect(context.Background())
				return nil
			}
		case session.StateConnected:
			ctl := m.ctl
			return m, func() tea.Msg {
				ctl.Disconnect()
				return nil
			}
		}
		// CONNECTING and ERROR ignore the toggle.

	case " ", "m":
		if m.state == session.StateConnected {
			m.mute.SetPaused(!m.mute.Paused())
		}

	case "c":
		t := m.transcript
		return m, func() tea.Msg {
			n, err := clipboard.CopyTranscript(t)
			return CopiedMsg{Items: n, Err: err}
		}

	case "x":
		m.ctl.ClearTranscript()
		m.notice = ""
	}
	return m, nil
}

func (m tuiModel) eyeMode() gui.Mode {
	return gui.ModeFor(m.state, m.muted, m.lastErr != "")
}

func (m tuiModel) statusLine() string {
	text := gui.StatusText(m.state, m.muted)
	switch m.state {
	case session.StateConnecting:
		return pendingStyle.Render(text)
	case session.StateConnected:
		if m.muted {
			return statusStyle.Render(text)
		}
		return liveStyle.Render(text)
	case session.StateError:
		return errStyle.Render(text)
	}
	return statusStyle.Render(text)
}

func statsLine(s transcript.SessionStats) string {
	secs := int(s.ConnectedS)
	return fmt.Sprintf("user %d chars | model %d chars | %02d:%02d",
		s.UserChars, s.ModelChars, secs/60, secs%60)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	mode := m.eyeMode()
	level := 0.0
	if mode == gui.ModeLive {
		level = m.level
	}
	eye := renderPulseEye(m.frame, level, mode)

	infoLines := []string{m.statusLine()}
	if m.silenceHint && mode == gui.ModeLive {
		infoLines = append(infoLines, warnStyle.Render("  ⚠ no voice detected"))
	}
	if m.deviceLine != "" {
		infoLines = append(infoLines, statusStyle.Render(m.deviceLine))
	}
	infoLines = append(infoLines, statusStyle.Render(statsLine(m.stats)))
	if !m.hasKey {
		infoLines = append(infoLines, warnStyle.Render(missingKeyNotice))
	}
	if m.lastErr != "" {
		for _, l := range wrapText(m.lastErr, eyeWidth-2) {
			infoLines = append(infoLines, errStyle.Render(l))
		}
	}
	if m.notice != "" {
		infoLines = append(infoLines, okStyle.Render(m.notice))
	}

	infoLines = append(infoLines, "")
	infoLines = append(infoLines,
		boldHelp.Render("enter")+helpStyle.Render(" connect  ")+
			boldHelp.Render("space")+helpStyle.Render(" mute  ")+
			boldHelp.Render("c")+helpStyle.Render(" copy  ")+
			boldHelp.Render("x")+helpStyle.Render(" clear"),
		boldHelp.Render(hotkey.Combo)+helpStyle.Render(" tap mute, hold talk"),
		helpStyle.Render("pulse "+version),
	)

	for _, line := range infoLines {
		eye += line + "\n"
	}
	eyeLines := strings.Split(eye, "\n")

	logWidth := max(m.width-eyeWidth-1, 20)
	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(renderTranscript(m.transcript, logWidth-2, m.height))

	// Pad eye panel to full height (eye at top)
	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}

	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

// renderTranscript lays out the newest items that fit in height lines:
// user turns right-aligned, model turns left-aligned, a cursor on partial
// items.
func renderTranscript(t transcript.Transcript, width, height int) string {
	width = max(width, 10)
	if t.Len() == 0 {
		return statusStyle.Render(awaitingInput)
	}

	var blocks [][]string
	for _, it := range t.Items() {
		text := strings.TrimSpace(it.Text)
		lines := wrapText(text, width-1)
		if it.Partial {
			lines[len(lines)-1] += partialCursor
		}

		label, style, align := modelLabel, modelStyle, lipgloss.Left
		if it.Sender == transcript.SenderUser {
			label, style, align = userLabel, userStyle, lipgloss.Right
		}
		place := lipgloss.NewStyle().Width(width).Align(align)

		block := []string{place.Render(labelStyle.Render(label))}
		for _, l := range lines {
			block = append(block, place.Render(style.Render(l)))
		}
		block = append(block, "")
		blocks = append(blocks, block)
	}

	// Newest last; drop whole blocks from the top until it fits.
	total := 0
	start := len(blocks)
	for start > 0 && total+len(blocks[start-1]) <= height {
		start--
		total += len(blocks[start])
	}
	if start == len(blocks) {
		start = len(blocks) - 1
	}

	var out []string
	for _, b := range blocks[start:] {
		out = append(out, b...)
	}
	if len(out) > height && height > 0 {
		out = out[len(out)-height:]
	}
	return strings.Join(out, "\n")
}

func renderPulseEye(frame int, level float64, mode gui.Mode) string {
	pixels := gui.Pixels(frame, level, mode)
	styles := pixelStyles[mode]
	bgStyles := pixelBg[mode]

	var result strings.Builder
	for cy := 0; cy < gui.EyeHeight; cy++ {
		for cx := 0; cx < gui.EyeWidth; cx++ {
			top := pixels[cy*2][cx]
			bot := pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				result.WriteString(" ")
			case top == bot:
				result.WriteString(styles[top].Render("█"))
			case bot == 0:
				result.WriteString(styles[top].Render("▀"))
			case top == 0:
				result.WriteString(styles[bot].Render("▄"))
			default:
				result.WriteString(bgStyles[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

// wrapText breaks text at spaces into lines of at most width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	width = max(width, 1)

	var lines []string
	for utf8.RuneCountInString(text) > width {
		runes := []rune(text)
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		text = strings.TrimLeft(string(runes[splitAt:]), " ")
	}
	if text != "" {
		lines = append(lines, text)
	}
	return lines
}
