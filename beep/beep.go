// Package beep plays short local chimes for session lifecycle changes.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const sampleRate = 44100

type Cue int

const (
	CueConnected Cue = iota
	CueDisconnected
	CueError
)

func (c Cue) String() string {
	switch c {
	case CueConnected:
		return "connected"
	case CueDisconnected:
		return "disconnected"
	case CueError:
		return "error"
	}
	return "unknown"
}

// tone is one decaying sine segment. A zero freq is a gap.
type tone struct {
	freq   float64
	dur    float64
	volume float64
	decay  float64
}

var cues = map[Cue][]tone{
	// Rising pair
	CueConnected: {
		{freq: 880, dur: 0.06, volume: 0.45, decay: 50},
		{dur: 0.02},
		{freq: 1320, dur: 0.12, volume: 0.45, decay: 40},
	},
	// Falling single tick
	CueDisconnected: {
		{freq: 1320, dur: 0.04, volume: 0.4, decay: 60},
		{freq: 880, dur: 0.12, volume: 0.4, decay: 40},
	},
	// Low double beep
	CueError: {
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30},
		{dur: 0.05},
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30},
	},
}

// Synthesize renders c as mono int16 samples at rate.
func Synthesize(c Cue, rate int) []int16 {
	var out []int16
	for _, t := range cues[c] {
		n := int(float64(rate) * t.dur)
		if t.freq == 0 {
			out = append(out, make([]int16, n)...)
			continue
		}
		for i := 0; i < n; i++ {
			x := float64(i) / float64(rate)
			env := math.Exp(-x * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*x)*32767*t.volume*env))
		}
	}
	return out
}

// Play starts c in the background. It never blocks the caller on audio I/O.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	go play(c)
}

func PlayConnected()    { Play(CueConnected) }
func PlayDisconnected() { Play(CueDisconnected) }
func PlayError()        { Play(CueError) }
