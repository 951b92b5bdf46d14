package codec

import (
	"encoding/base64"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

// Truncation toward zero costs under one step; encoding positives by 0x7FFF
// and decoding by 0x8000 costs under one more.
const maxRoundTripError = 2.0 / 32768.0

func TestEncodeScaling(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 0x7FFF},
		{-1, -0x8000},
		{0.5, 16383},
		{-0.5, -16384},
		{2, 0x7FFF},
		{-3, -0x8000},
	} {
		raw := PCM16([]float32{tt.in})
		got := int16(uint16(raw[0]) | uint16(raw[1])<<8)
		if got != tt.want {
			t.Errorf("PCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeMIMEType(t *testing.T) {
	c := Encode(make([]float32, 4))
	if c.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", c.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 8 {
		t.Errorf("len = %d, want 8", len(raw))
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	in := make([]float32, BlockSize)
	for i := range in {
		in[i] = rng.Float32()*2.4 - 1.2 // include out-of-range values
	}

	buf, err := Decode(Encode(in).Data, InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Samples) != len(in) {
		t.Fatalf("len = %d, want %d", len(buf.Samples), len(in))
	}
	for i, x := range in {
		want := math.Max(-1, math.Min(1, float64(x)))
		if d := math.Abs(float64(buf.Samples[i]) - want); d > maxRoundTripError {
			t.Fatalf("sample %d: |%v - %v| = %v exceeds quantization error", i, buf.Samples[i], want, d)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
	}{
		{"malformed", "not*base64!"},
		{"odd", base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, OutputSampleRate)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
		})
	}

	_, err := Decode(base64.StdEncoding.EncodeToString([]byte{1}), OutputSampleRate)
	if !errors.Is(err, ErrOddLength) {
		t.Errorf("err = %v, want ErrOddLength", err)
	}
}

func TestBufferDuration(t *testing.T) {
	b := Buffer{Samples: make([]float32, OutputSampleRate/2), SampleRate: OutputSampleRate}
	if got := b.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
}

func TestSilenceDecodesToZero(t *testing.T) {
	buf, err := Decode(Encode(Silence(BlockSize)).Data, InputSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range buf.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v", i, s)
		}
	}
}
