//go:build linux

package beep

import (
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var (
	samplesByCue map[cue][]int16
	soundOnce    sync.Once
)

func initSound() {
	samplesByCue = map[cue][]int16{
		cueStart:  tick(startFreq, 0.2, startVolume, startDecay),
		cueStop:   tick(stopFreq, 0.2, stopVolume, stopDecay),
		cueResult: join(tick(resultFreq*0.8, 0.06, resultVolume, resultDecay), gap(0.03), tick(resultFreq, 0.06, resultVolume, resultDecay)),
		cueError:  join(tick(errorFreq, 0.08, errorVolume, errorDecay), gap(0.05), tick(errorFreq, 0.08, errorVolume, errorDecay)),
	}
}

func tick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func gap(duration float64) []int16 {
	return make([]int16, int(sampleRate*duration))
}

func join(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func play(c cue) {
	soundOnce.Do(initSound)
	go func() {
		samples := samplesByCue[c]
		if len(samples) == 0 {
			return
		}
		client, err := pulse.NewClient()
		if err != nil {
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
			return
		}
		stream.Start()
		stream.Drain()
		stream.Stop()
		stream.Close()
	}()
}
