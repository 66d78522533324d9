package deemph

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noise(frames int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed))
	pcm := make([]byte, frames*4)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(r.IntN(1<<16)))
	}
	return pcm
}

func TestShelfResponse(t *testing.T) {
	want := math.Pow(10, GainDB/20)

	hs := HighShelf(Frequency, Slope, GainDB, disc.SampleRate)
	assert.InDelta(t, 1.0, hs.Gain(10, disc.SampleRate), 0.001)
	assert.InDelta(t, want, hs.Gain(disc.SampleRate/2, disc.SampleRate), 0.001)

	ls := LowShelf(Frequency, Slope, GainDB, disc.SampleRate)
	assert.InDelta(t, want, ls.Gain(0, disc.SampleRate), 0.001)
	assert.InDelta(t, 1.0, ls.Gain(disc.SampleRate/2, disc.SampleRate), 0.001)
}

func TestBiquadImpulse(t *testing.T) {
	c := HighShelf(Frequency, Slope, GainDB, disc.SampleRate)
	f := NewBiquad(c)
	assert.InDelta(t, c.B0, f.Process(1), 1e-6)
	assert.InDelta(t, c.B1-c.A1*c.B0, f.Process(0), 1e-6)

	f.Reset()
	assert.InDelta(t, c.B0, f.Process(1), 1e-6)
}

func TestDeterministic(t *testing.T) {
	in := noise(4096, 1)

	a := bytes.Clone(in)
	s := NewStage()
	s.Process(a)

	b := bytes.Clone(in)
	s.Reset()
	s.Process(b)

	assert.Equal(t, a, b)
	assert.NotEqual(t, in, a)

	c := bytes.Clone(in)
	NewStage().Process(c)
	assert.Equal(t, a, c)
}

func TestStatefulAcrossCalls(t *testing.T) {
	in := noise(1000, 2)

	whole := bytes.Clone(in)
	NewStage().Process(whole)

	split := bytes.Clone(in)
	s := NewStage()
	s.Process(split[:400])
	s.Process(split[400:])

	assert.Equal(t, whole, split)
}

func TestSilenceStaysSilent(t *testing.T) {
	pcm := make([]byte, disc.BytesPerSector)
	NewStage().Process(pcm)
	assert.Equal(t, make([]byte, disc.BytesPerSector), pcm)
}

func TestChannelsIndependent(t *testing.T) {
	pcm := noise(500, 3)
	// silence the right channel
	for i := 2; i < len(pcm); i += 4 {
		pcm[i], pcm[i+1] = 0, 0
	}
	NewStage().Process(pcm)
	for i := 2; i < len(pcm); i += 4 {
		require.Zero(t, pcm[i])
		require.Zero(t, pcm[i+1])
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), toInt16(40000))
	assert.Equal(t, int16(math.MinInt16), toInt16(-40000))
	assert.Equal(t, int16(-3), toInt16(-2.6))
}

func TestPartialFrame(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	NewStage().Process(pcm)
	assert.Equal(t, []byte{5, 6}, pcm[4:])
}
