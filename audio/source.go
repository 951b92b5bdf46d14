package audio

import (
	"context"
	"fmt"
	"sync"

	"pulse/log"
)

const frameQueue = 32

// DeviceSource opens frames from a capture device of ctx.
type DeviceSource struct {
	ctx    Context
	device *DeviceInfo
}

func NewDeviceSource(ctx Context, device *DeviceInfo) *DeviceSource {
	return &DeviceSource{ctx: ctx, device: device}
}

func (s *DeviceSource) Open(ctx context.Context, config CaptureConfig) (FrameStream, error) {
	if config.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", config.BlockSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := s.ctx.NewCapture(s.device, config)
	if err != nil {
		return nil, fmt.Errorf("capture device init: %w", err)
	}

	st := &deviceStream{
		dev:    dev,
		frames: make(chan Frame, frameQueue),
		block:  make([]float32, 0, config.BlockSize),
		size:   config.BlockSize,
	}
	dev.SetCallback(st.feed)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("capture device start: %w", err)
	}
	return st, nil
}

type deviceStream struct {
	dev  CaptureDevice
	size int

	mu      sync.Mutex
	block   []float32
	seq     uint64
	stopped bool
	dropped int
	frames  chan Frame

	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *deviceStream) Frames() <-chan Frame { return s.frames }

func (s *deviceStream) DeviceName() string { return s.dev.DeviceName() }

// feed runs on the backend's callback thread and must never block it.
func (s *deviceStream) feed(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for len(samples) > 0 {
		n := min(s.size-len(s.block), len(samples))
		s.block = append(s.block, samples[:n]...)
		samples = samples[n:]
		if len(s.block) < s.size {
			return
		}
		frame := Frame{Seq: s.seq, Samples: s.block}
		s.seq++
		s.block = make([]float32, 0, s.size)
		select {
		case s.frames <- frame:
		default:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				log.Warnf("capture frame queue full, dropped %d frames", s.dropped)
			}
		}
	}
}

func (s *deviceStream) Stop() {
	s.stopOnce.Do(func() {
		s.dev.ClearCallback()
		s.dev.Stop()
		s.mu.Lock()
		s.stopped = true
		close(s.frames)
		s.mu.Unlock()
	})
}

func (s *deviceStream) Close() {
	s.Stop()
	s.closeOnce.Do(s.dev.Close)
}
