//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"pulse/log"
)

var (
	rendered  map[Cue][]int16
	soundOnce sync.Once
	// One chime at a time so overlapping cues don't pile up PA streams.
	playMu sync.Mutex
)

func initSound() {
	rendered = make(map[Cue][]int16, len(cues))
	for c := range cues {
		rendered[c] = Synthesize(c, sampleRate)
	}
}

func Init() {
	soundOnce.Do(initSound)
}

func play(c Cue) {
	soundOnce.Do(initSound)
	samples := rendered[c]
	if len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	client, err := pulse.NewClient(pulse.ClientApplicationName("pulse"))
	if err != nil {
		log.Warnf("beep: pulse client: %v", err)
		return
	}
	defer client.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := client.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		log.Warnf("beep: %s playback: %v", c, err)
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
