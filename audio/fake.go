package audio

import (
	"os"
	"sync"
	"time"

	"pulse/codec"
)

const fakeFrameSize = 1024

// FakeContext replays a 16 kHz mono PCM16 WAV file as a capture device.
type FakeContext struct {
	samples  []float32
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	return NewFakeContextPCM(data, realtime)
}

// NewFakeContextPCM accepts raw WAV bytes; anything past the header is
// treated as little-endian int16 samples.
func NewFakeContextPCM(data []byte, realtime bool) (*FakeContext, error) {
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	samples, err := codec.FromPCM16(data)
	if err != nil {
		return nil, err
	}
	return &FakeContext{samples: samples, realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{samples: f.samples, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

type FakeCapture struct {
	samples   []float32
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole file has been fed; silence follows.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos int) int {
	end := min(pos+fakeFrameSize, len(f.samples))
	chunk := make([]float32, end-pos)
	copy(chunk, f.samples[pos:end])
	cb(chunk)
	return end
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(codec.InputSampleRate)
	if !f.realtime {
		interval = time.Millisecond
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]float32, fakeFrameSize)
		finished := false
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			if cb := f.callback(); cb != nil {
				if pos < len(f.samples) {
					pos = f.feedChunk(cb, pos)
				} else {
					if !finished {
						finished = true
						close(f.audioDone)
					}
					cb(silence)
				}
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {}
