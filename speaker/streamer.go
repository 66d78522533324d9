package speaker

import (
	"encoding/binary"
	"io"

	"github.com/faiface/beep"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// Format is the beep format of Redbook audio.
var Format = beep.Format{
	SampleRate:  disc.SampleRate,
	NumChannels: disc.Channels,
	Precision:   disc.BytesPerSample,
}

const frameSize = disc.Channels * disc.BytesPerSample

// pcmStreamer adapts a reader of 16-bit little endian stereo PCM into a
// beep.Streamer.
type pcmStreamer struct {
	r   io.Reader
	buf []byte
	err error
}

func newStreamer(r io.Reader) *pcmStreamer {
	return &pcmStreamer{r: r}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.err != nil {
		return 0, false
	}
	need := len(samples) * frameSize
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]
	if _, err := io.ReadFull(s.r, buf); err != nil {
		s.err = err
		return 0, false
	}
	for i := range samples {
		samples[i][0], samples[i][1] = extractFrame(buf[i*frameSize : (i+1)*frameSize])
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error {
	return s.err
}

func extractFrame(p []byte) (l, r float64) {
	li := int16(binary.LittleEndian.Uint16(p[0:2]))
	ri := int16(binary.LittleEndian.Uint16(p[2:4]))
	return float64(li) / (1 << 15), float64(ri) / (1 << 15)
}

var _ beep.Streamer = (*pcmStreamer)(nil)
