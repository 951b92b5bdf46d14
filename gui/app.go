//go:build gui

package gui

import (
	"context"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"pulse/hotkey"
	"pulse/session"
	"pulse/transcript"
)

// Controller is the part of the session controller the window drives.
type Controller interface {
	State() session.State
	Disconnect()
	ClearTranscript()
	Transcript() transcript.Transcript
}

// Bindings connect the window's buttons to a running session.
type Bindings struct {
	Controller Controller
	Mute       hotkey.Muter
	Connect    func(ctx context.Context) error
	Copy       func(t transcript.Transcript) (int, error)
	HasKey     bool
	DeviceLine string
}

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	eye     *EyeWidget

	status  *widget.Label
	device  *widget.Label
	notice  *widget.Label
	hint    *widget.Label
	connect *widget.Button
	mute    *widget.Button
	entries *fyne.Container
	scroll  *container.Scroll

	onReady func()
	done    chan struct{}

	mu     sync.Mutex
	b      Bindings
	state  session.State
	muted  bool
	failed bool
	silent bool
}

func NewApp(onReady func()) *App {
	return &App{onReady: onReady, done: make(chan struct{})}
}

// Run builds the window and blocks in the fyne event loop. It must be
// called from the main goroutine; onReady runs on its own goroutine once
// the window exists.
func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.pulse.app")
	a.fyneApp.Settings().SetTheme(pulseTheme{})
	a.window = a.fyneApp.NewWindow("The Pulse")
	a.window.SetMaster()
	a.window.SetContent(a.build())
	a.window.Resize(fyne.NewSize(920, 560))

	if desk, ok := a.fyneApp.(desktop.App); ok {
		desk.SetSystemTrayMenu(fyne.NewMenu("pulse",
			fyne.NewMenuItem("Show", a.window.Show),
			fyne.NewMenuItem("Connect / Disconnect", a.toggleConnection),
		))
		desk.SetSystemTrayIcon(theme.MediaRecordIcon())
	}

	a.refresh()
	a.window.Show()
	go a.onReady()
	a.fyneApp.Run()
	close(a.done)
	return nil
}

func (a *App) build() fyne.CanvasObject {
	a.eye = NewEyeWidget()
	a.status = widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	a.device = widget.NewLabel("")
	a.notice = widget.NewLabel("")
	a.notice.Wrapping = fyne.TextWrapWord
	a.hint = widget.NewLabel("no voice detected: check your microphone")
	a.hint.Hide()

	a.connect = widget.NewButton("CONNECT", a.toggleConnection)
	a.mute = widget.NewButton("MUTE", a.toggleMute)
	copyBtn := widget.NewButton("COPY", a.copyTranscript)
	clearBtn := widget.NewButton("CLEAR", a.clearTranscript)

	a.entries = container.NewVBox(widget.NewLabel(AwaitingInput))
	a.scroll = container.NewVScroll(a.entries)

	left := container.NewVBox(
		a.eye,
		a.status,
		a.hint,
		container.NewGridWithColumns(2, a.connect, a.mute, copyBtn, clearBtn),
		a.device,
		a.notice,
	)
	return container.NewBorder(nil, nil, left, nil, a.scroll)
}

// Bind attaches the session. Buttons are inert until it is called.
func (a *App) Bind(b Bindings) {
	a.mu.Lock()
	a.b = b
	a.mu.Unlock()
	fyne.Do(func() {
		a.device.SetText(b.DeviceLine)
		if !b.HasKey {
			a.notice.SetText(MissingKeyNotice)
		}
		a.refresh()
	})
}

// Done is closed once the event loop has exited.
func (a *App) Done() <-chan struct{} { return a.done }

func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(a.fyneApp.Quit)
	}
}

func (a *App) bindings() (Bindings, session.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.b, a.state
}

func (a *App) toggleConnection() {
	b, state := a.bindings()
	if b.Controller == nil {
		return
	}
	switch state {
	case session.StateDisconnected:
		a.notice.SetText("")
		go b.Connect(context.Background())
	case session.StateConnected:
		go b.Controller.Disconnect()
	}
}

func (a *App) toggleMute() {
	b, state := a.bindings()
	if b.Mute == nil || state != session.StateConnected {
		return
	}
	b.Mute.SetPaused(!b.Mute.Paused())
}

func (a *App) copyTranscript() {
	b, _ := a.bindings()
	if b.Controller == nil || b.Copy == nil {
		return
	}
	n, err := b.Copy(b.Controller.Transcript())
	if err != nil {
		a.notice.SetText("copy failed: " + err.Error())
		return
	}
	a.notice.SetText(fmt.Sprintf("copied %d items", n))
}

func (a *App) clearTranscript() {
	b, _ := a.bindings()
	if b.Controller != nil {
		b.Controller.ClearTranscript()
	}
}

// refresh syncs every control with the recorded session state. UI
// goroutine only.
func (a *App) refresh() {
	a.mu.Lock()
	state, muted, failed, silent := a.state, a.muted, a.failed, a.silent
	bound := a.b.Controller != nil
	a.mu.Unlock()

	a.status.SetText(StatusText(state, muted))
	a.eye.SetMode(ModeFor(state, muted, failed))

	switch state {
	case session.StateConnecting:
		a.connect.SetText("CONNECTING...")
		a.connect.Disable()
	case session.StateConnected:
		a.connect.SetText("DISCONNECT")
		a.connect.Enable()
	case session.StateError:
		a.connect.Disable()
	default:
		a.connect.SetText("CONNECT")
		a.connect.Enable()
	}
	if !bound {
		a.connect.Disable()
	}

	if muted {
		a.mute.SetText("UNMUTE")
	} else {
		a.mute.SetText("MUTE")
	}
	if state == session.StateConnected {
		a.mute.Enable()
	} else {
		a.mute.Disable()
	}

	if silent && state == session.StateConnected && !muted {
		a.hint.Show()
	} else {
		a.hint.Hide()
	}
}

func (a *App) StateChange(s session.State) {
	a.mu.Lock()
	a.state = s
	if s == session.StateConnecting {
		a.failed = false
	}
	a.mu.Unlock()
	fyne.Do(a.refresh)
}

func (a *App) Volume(level float64) {
	a.eye.SetLevel(level)
}

func (a *App) TranscriptUpdate(t transcript.Transcript) {
	entries := Entries(t)
	fyne.Do(func() {
		a.entries.RemoveAll()
		if len(entries) == 0 {
			a.entries.Add(widget.NewLabel(AwaitingInput))
			return
		}
		for _, e := range entries {
			align := fyne.TextAlignLeading
			if e.User {
				align = fyne.TextAlignTrailing
			}
			label := widget.NewLabelWithStyle(e.Label, align, fyne.TextStyle{Bold: true, Monospace: true})
			body := widget.NewLabelWithStyle(e.Text, align, fyne.TextStyle{})
			body.Wrapping = fyne.TextWrapWord
			a.entries.Add(label)
			a.entries.Add(body)
		}
		a.scroll.ScrollToBottom()
	})
}

func (a *App) Error(err error) {
	a.mu.Lock()
	a.failed = true
	a.mu.Unlock()
	fyne.Do(func() {
		a.notice.SetText("error: " + err.Error())
		a.refresh()
	})
}

func (a *App) Muted(m bool) {
	a.mu.Lock()
	a.muted = m
	a.mu.Unlock()
	fyne.Do(a.refresh)
}

func (a *App) SilenceHint(show bool) {
	a.mu.Lock()
	a.silent = show
	a.mu.Unlock()
	fyne.Do(a.refresh)
}
