package audio

import (
	"context"
	"strings"
)

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name; headsets in HFP mode degrade
// capture to 8-16 kHz narrowband.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives mono float samples in [-1, 1] in whatever sizes the
// backend delivers them. The slice is only valid for the duration of the call.
type DataCallback func(samples []float32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	BlockSize  int
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Frame is one fixed-size block of captured samples.
type Frame struct {
	Seq     uint64
	Samples []float32
}

// FrameSource acquires an input device and yields fixed-size frames.
type FrameSource interface {
	Open(ctx context.Context, config CaptureConfig) (FrameStream, error)
}

// FrameStream is a cancellable, ordered sequence of frames. Stop ends
// production and closes Frames; Close releases the device. Both are
// idempotent and Close implies Stop.
type FrameStream interface {
	Frames() <-chan Frame
	Stop()
	Close()
	DeviceName() string
}
