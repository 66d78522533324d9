package deemph

import (
	"encoding/binary"
	"math"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// Parameters of the de-emphasis curve.
const (
	Frequency = 5277.0
	Slope     = 0.4850
	GainDB    = -9.465
)

// Stage filters interleaved 16-bit stereo PCM, one Biquad per channel.
type Stage struct {
	channels [disc.Channels]*Biquad
	buf      [disc.Channels][]float32
}

// NewStage creates a stage with cleared history.
func NewStage() *Stage {
	c := HighShelf(Frequency, Slope, GainDB, disc.SampleRate)
	s := &Stage{}
	for i := range s.channels {
		s.channels[i] = NewBiquad(c)
	}
	return s
}

// Reset clears the history of every channel.
func (s *Stage) Reset() {
	for _, f := range s.channels {
		f.Reset()
	}
}

// ProcessSample runs one sample of channel ch through its filter.
func (s *Stage) ProcessSample(ch int, sample float32) float32 {
	return s.channels[ch].Process(sample)
}

// Process filters little endian 16-bit stereo PCM in place. A trailing
// partial frame is left untouched.
func (s *Stage) Process(pcm []byte) {
	const frameSize = disc.Channels * disc.BytesPerSample
	frames := len(pcm) / frameSize
	for ch := range s.buf {
		if cap(s.buf[ch]) < frames {
			s.buf[ch] = make([]float32, frames)
		}
		s.buf[ch] = s.buf[ch][:frames]
	}

	for i := range frames {
		for ch := range disc.Channels {
			off := i*frameSize + ch*disc.BytesPerSample
			s.buf[ch][i] = float32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
	}
	for ch, samples := range s.buf {
		for i, v := range samples {
			samples[i] = s.channels[ch].Process(v)
		}
	}
	for i := range frames {
		for ch := range disc.Channels {
			off := i*frameSize + ch*disc.BytesPerSample
			binary.LittleEndian.PutUint16(pcm[off:], uint16(toInt16(s.buf[ch][i])))
		}
	}
}

func toInt16(v float32) int16 {
	r := math.Round(float64(v))
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	default:
		return int16(r)
	}
}
