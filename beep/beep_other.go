//go:build !linux && !windows

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"pulse/log"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	rendered  map[Cue][]byte
	soundOnce sync.Once

	// Accessed from the device callback.
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: fill})
	return err
}

func initSound() {
	rendered = make(map[Cue][]byte, len(cues))
	for c := range cues {
		samples := Synthesize(c, sampleRate)
		buf := make([]byte, len(samples)*2)
		for i, s := range samples {
			buf[i*2] = byte(s)
			buf[i*2+1] = byte(s >> 8)
		}
		rendered[c] = buf
	}

	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: malgo context: %v", err)
		return
	}
	if err := initDevice(); err != nil {
		log.Warnf("beep: playback device: %v", err)
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func fill(out, _ []byte, frames uint32) {
	want := frames * 2
	n := uint32(0)
	if p := current.Load(); p != nil {
		at := pos.Load()
		if at < uint32(len(*p)) {
			n = uint32(copy(out[:want], (*p)[at:]))
			pos.Store(at + n)
		} else {
			current.Store(nil)
		}
	}
	clear(out[n:want])
}

func Init() {
	soundOnce.Do(initSound)
}

func play(c Cue) {
	soundOnce.Do(initSound)
	if malgoCtx == nil {
		return
	}
	buf := rendered[c]

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}

	device.Stop()
	pos.Store(0)
	current.Store(&buf)

	if err := device.Start(); err != nil {
		// Device can go stale across sleep/wake; rebuild once.
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
