// Package volume derives the normalized loudness scalar shown by the visualizer.
package volume

import "math"

const (
	// Stride bounds the cost of Buffer on long model audio chunks.
	Stride = 50
	// Gain lifts speech-level output audio into a visible range.
	Gain = 3.0
)

// Spectrum returns the mean of byte frequency magnitudes normalized by 255.
func Spectrum(mags []uint8) float64 {
	if len(mags) == 0 {
		return 0
	}
	var sum int
	for _, m := range mags {
		sum += int(m)
	}
	return float64(sum) / float64(len(mags)) / 255
}

// Buffer returns the strided mean absolute amplitude of decoded audio,
// scaled by Gain and clamped to 1.
func Buffer(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i < len(samples); i += Stride {
		sum += math.Abs(float64(samples[i]))
		n++
	}
	return math.Min(1, sum/float64(n)*Gain)
}
