// Package gui holds the Pulse eye shared by the terminal and desktop front
// ends. The fyne window itself is only compiled with -tags gui.
package gui

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"pulse/session"
	"pulse/transcript"
)

const (
	UserLabel        = "USER_AUDIO_IN"
	ModelLabel       = "THE_PULSE_RESPONSE"
	AwaitingInput    = "AWAITING INPUT STREAM..."
	MissingKeyNotice = "API key missing: run pulse setkey <key>"
	PartialCursor    = "▌"
)

// Eye grid in half-block cells; each cell stacks two pixels.
const (
	EyeWidth    = 44
	EyeHeight   = 15
	PixelHeight = EyeHeight * 2
)

type Mode int

const (
	ModeIdle Mode = iota
	ModeConnecting
	ModeLive
	ModeMuted
	ModeError
)

// ModeFor picks the eye mode for a session state. failed keeps the error
// colours after the session fell back to DISCONNECTED.
func ModeFor(state session.State, muted, failed bool) Mode {
	switch state {
	case session.StateConnecting:
		return ModeConnecting
	case session.StateConnected:
		if muted {
			return ModeMuted
		}
		return ModeLive
	case session.StateError:
		return ModeError
	}
	if failed {
		return ModeError
	}
	return ModeIdle
}

// StatusText is the one-line session status without styling.
func StatusText(state session.State, muted bool) string {
	switch state {
	case session.StateConnecting:
		return "◌ CONNECTING"
	case session.StateConnected:
		if muted {
			return "● LIVE [MUTED]"
		}
		return "● LIVE"
	case session.StateError:
		return "✕ ERROR"
	}
	return "○ STANDBY"
}

// Palettes are xterm-256 colour codes indexed by pixel value. Index 0 is
// background; 14 and 15 are the glass highlights.
var Palettes = map[Mode][16]string{
	ModeLive:       {"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"},
	ModeIdle:       {"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"},
	ModeConnecting: {"", "230", "229", "228", "221", "214", "178", "136", "94", "236", "236", "236", "236", "236", "255", "249"},
	ModeMuted:      {"", "252", "250", "248", "246", "244", "242", "240", "238", "236", "236", "236", "236", "236", "255", "249"},
	ModeError:      {"", "224", "217", "210", "203", "196", "160", "124", "88", "236", "236", "236", "236", "236", "255", "249"},
}

var ansiBase = [16]color.RGBA{
	{0, 0, 0, 255}, {128, 0, 0, 255}, {0, 128, 0, 255}, {128, 128, 0, 255},
	{0, 0, 128, 255}, {128, 0, 128, 255}, {0, 128, 128, 255}, {192, 192, 192, 255},
	{128, 128, 128, 255}, {255, 0, 0, 255}, {0, 255, 0, 255}, {255, 255, 0, 255},
	{0, 0, 255, 255}, {255, 0, 255, 255}, {0, 255, 255, 255}, {255, 255, 255, 255},
}

var cubeLevels = [6]uint8{0, 95, 135, 175, 215, 255}

// RGB converts an xterm-256 code to its colour. Empty or invalid codes are
// black.
func RGB(code string) color.RGBA {
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 || n > 255 {
		return color.RGBA{A: 255}
	}
	switch {
	case n < 16:
		return ansiBase[n]
	case n < 232:
		n -= 16
		return color.RGBA{cubeLevels[n/36], cubeLevels[(n/6)%6], cubeLevels[n%6], 255}
	}
	g := uint8(8 + 10*(n-232))
	return color.RGBA{g, g, g, 255}
}

// Pixels renders the eye as EyeWidth x PixelHeight palette indices. level
// only matters in ModeLive.
func Pixels(frame int, level float64, mode Mode) [][]int {
	centerX := float64(EyeWidth) / 2
	centerY := float64(PixelHeight) / 2

	var breathe float64
	switch mode {
	case ModeLive:
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	case ModeConnecting:
		breathe = math.Sin(float64(frame)*0.35)*0.06 - 0.02
	case ModeMuted:
		breathe = -0.08
	default:
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, PixelHeight)
	for i := range pixels {
		pixels[i] = make([]int, EyeWidth)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4}, // inner rings react most to the voice
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < PixelHeight; y++ {
		for x := 0; x < EyeWidth; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	dSide, dSide2 := 9.0, 7.2
	dTop, dTop2 := 10.0, 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := 0; y < PixelHeight; y++ {
		for x := 0; x < EyeWidth; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}
	return pixels
}

// Entry is one transcript item as a front end shows it.
type Entry struct {
	Label string
	Text  string
	User  bool
}

// Entries labels each item by sender and marks open turns with the cursor.
func Entries(t transcript.Transcript) []Entry {
	items := t.Items()
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		e := Entry{Label: ModelLabel, Text: strings.TrimSpace(it.Text)}
		if it.Sender == transcript.SenderUser {
			e.Label, e.User = UserLabel, true
		}
		if it.Partial {
			e.Text += PartialCursor
		}
		out = append(out, e)
	}
	return out
}
