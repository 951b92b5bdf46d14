//go:build gui

package gui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

var colors = map[Mode][16]color.Color{}

func init() {
	for mode, codes := range Palettes {
		var c [16]color.Color
		for i, code := range codes {
			c[i] = RGB(code)
		}
		colors[mode] = c
	}
}

// EyeWidget draws the Pulse eye as a grid of rectangles, one per
// half-block cell, redrawn at about 30 fps.
type EyeWidget struct {
	widget.BaseWidget
	mu     sync.Mutex
	frame  int
	level  float64
	mode   Mode
	stopCh chan struct{}
}

func NewEyeWidget() *EyeWidget {
	e := &EyeWidget{stopCh: make(chan struct{})}
	e.ExtendBaseWidget(e)
	go e.animate()
	return e
}

func (e *EyeWidget) SetMode(m Mode) {
	e.mu.Lock()
	e.mode = m
	if m != ModeLive {
		e.level = 0
	}
	e.mu.Unlock()
}

// SetLevel eases toward l: fast attack, slow release.
func (e *EyeWidget) SetLevel(l float64) {
	e.mu.Lock()
	if e.mode == ModeLive {
		if l > e.level {
			e.level = e.level*0.2 + l*0.8
		} else {
			e.level = e.level*0.7 + l*0.3
		}
	}
	e.mu.Unlock()
}

func (e *EyeWidget) Stop() {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
}

func (e *EyeWidget) animate() {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			e.frame++
			e.mu.Unlock()
			fyne.Do(e.Refresh)
		}
	}
}

func (e *EyeWidget) MinSize() fyne.Size {
	return fyne.NewSize(float32(EyeWidth*8), float32(EyeHeight*16))
}

func (e *EyeWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &eyeRenderer{eye: e, objects: make([]fyne.CanvasObject, 0, EyeWidth*EyeHeight)}
	for y := range EyeHeight {
		for x := range EyeWidth {
			rect := canvas.NewRectangle(color.Black)
			r.rects[y][x] = rect
			r.objects = append(r.objects, rect)
		}
	}
	return r
}

type eyeRenderer struct {
	eye     *EyeWidget
	rects   [EyeHeight][EyeWidth]*canvas.Rectangle
	objects []fyne.CanvasObject
}

func (r *eyeRenderer) Layout(size fyne.Size) {
	cellW := size.Width / EyeWidth
	cellH := size.Height / EyeHeight
	for y := range EyeHeight {
		for x := range EyeWidth {
			r.rects[y][x].Move(fyne.NewPos(float32(x)*cellW, float32(y)*cellH))
			r.rects[y][x].Resize(fyne.NewSize(cellW, cellH))
		}
	}
}

func (r *eyeRenderer) MinSize() fyne.Size { return r.eye.MinSize() }

func (r *eyeRenderer) Refresh() {
	r.eye.mu.Lock()
	frame, level, mode := r.eye.frame, r.eye.level, r.eye.mode
	r.eye.mu.Unlock()

	pixels := Pixels(frame, level, mode)
	palette := colors[mode]
	for cy := range EyeHeight {
		for cx := range EyeWidth {
			c := blend(palette[pixels[cy*2][cx]], palette[pixels[cy*2+1][cx]])
			r.rects[cy][cx].FillColor = c
			r.rects[cy][cx].Refresh()
		}
	}
}

// blend averages the two stacked pixels of a cell.
func blend(top, bot color.Color) color.Color {
	tr, tg, tb, _ := top.RGBA()
	br, bg, bb, _ := bot.RGBA()
	return color.RGBA{
		R: uint8((tr + br) / 512),
		G: uint8((tg + bg) / 512),
		B: uint8((tb + bb) / 512),
		A: 255,
	}
}

func (r *eyeRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *eyeRenderer) Destroy() { r.eye.Stop() }
