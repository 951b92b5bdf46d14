package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechLevel      = 0.08
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // voice resumed after warning
)

// silenceMonitor turns the volume stream of a live, unmuted session into
// "no voice detected" hints. Levels are bucketed into 100ms ticks; a tick
// has speech if any level in it reached speechLevel.
type silenceMonitor struct {
	windowSz int

	ticks  int
	window []bool
	warned bool

	bucketStart time.Time
	bucketPeak  float64
}

func newSilenceMonitor() *silenceMonitor {
	n := int(silenceWarnAfter / tickInterval)
	return &silenceMonitor{windowSz: n, window: make([]bool, n)}
}

// Reset forgets history, e.g. on mute or disconnect.
func (m *silenceMonitor) Reset() {
	m.ticks = 0
	clear(m.window)
	m.warned = false
	m.bucketStart = time.Time{}
	m.bucketPeak = 0
}

func (m *silenceMonitor) Warned() bool { return m.warned }

// Observe feeds one volume reading taken at now. Readings inside the
// current bucket only raise its peak; the bucket closes when a reading
// arrives tickInterval or more after it opened.
func (m *silenceMonitor) Observe(level float64, now time.Time) SilenceEvent {
	if m.bucketStart.IsZero() {
		m.bucketStart = now
	}
	ev := SilenceNone
	for now.Sub(m.bucketStart) >= tickInterval {
		if e := m.Tick(m.bucketPeak >= speechLevel); e != SilenceNone {
			ev = e
		}
		m.bucketPeak = 0
		m.bucketStart = m.bucketStart.Add(tickInterval)
	}
	m.bucketPeak = max(m.bucketPeak, level)
	return ev
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.windowSz)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	m.window[m.ticks%m.windowSz] = hasSpeech
	m.ticks++

	r := m.ratio()
	if m.ticks >= m.windowSz && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}
