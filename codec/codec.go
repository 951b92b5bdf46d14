package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	Channels         = 1
	BitsPerSample    = 16
	BlockSize        = 4096
)

// MIMEType returns the wire descriptor for mono PCM16 at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// Chunk is one base64 PCM16 block ready for a realtime input message.
type Chunk struct {
	Data     string
	MIMEType string
}

// Buffer is decoded mono audio.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

var ErrOddLength = errors.New("odd byte length")

type DecodeError struct {
	Len int
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio (%d bytes): %v", e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode converts captured samples to a chunk tagged with the input rate.
func Encode(samples []float32) Chunk {
	return EncodeRate(samples, InputSampleRate)
}

func EncodeRate(samples []float32, rate int) Chunk {
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(PCM16(samples)),
		MIMEType: MIMEType(rate),
	}
}

// PCM16 clamps samples to [-1, 1] and serializes them as little-endian int16.
// Negative values scale by 0x8000 and non-negative values by 0x7FFF.
func PCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(toInt16(s)))
	}
	return buf
}

func toInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s < -1:
		s = -1
	case s > 1:
		s = 1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// Decode parses base64 PCM16 into float samples at the declared rate.
func Decode(data string, rate int) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Buffer{}, &DecodeError{Len: len(data), Err: err}
	}
	samples, err := FromPCM16(raw)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Samples: samples, SampleRate: rate}, nil
}

func FromPCM16(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Len: len(raw), Err: ErrOddLength}
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return samples, nil
}

// Silence returns a zero-filled frame of n samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}
