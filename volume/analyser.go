package volume

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	FFTSize   = 256
	Smoothing = 0.5
	MinDB     = -100.0
	MaxDB     = -30.0
)

// Analyser keeps the most recent FFTSize input samples and produces smoothed
// byte frequency magnitudes, the live-spectrum input to Spectrum.
type Analyser struct {
	mu       sync.Mutex
	ring     [FFTSize]float32
	pos      int
	smoothed [FFTSize / 2]float64

	fft    *fourier.FFT
	seq    []float64
	coeffs []complex128
}

func NewAnalyser() *Analyser {
	return &Analyser{
		fft:    fourier.NewFFT(FFTSize),
		seq:    make([]float64, FFTSize),
		coeffs: make([]complex128, FFTSize/2+1),
	}
}

// Write appends captured samples; only the last FFTSize are kept.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % FFTSize
	}
}

// Reset clears buffered samples and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring = [FFTSize]float32{}
	a.smoothed = [FFTSize / 2]float64{}
	a.pos = 0
}

// ByteFrequencyData fills dst (up to FFTSize/2 bins) and returns the bin count written.
func (a *Analyser) ByteFrequencyData(dst []uint8) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.seq {
		a.seq[i] = float64(a.ring[(a.pos+i)%FFTSize])
	}
	window.Blackman(a.seq)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	n := min(len(dst), FFTSize/2)
	for k := range FFTSize / 2 {
		mag := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = Smoothing*a.smoothed[k] + (1-Smoothing)*mag
		if k >= n {
			continue
		}
		dst[k] = toByte(a.smoothed[k])
	}
	return n
}

func toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := math.Floor(255 / (MaxDB - MinDB) * (db - MinDB))
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
