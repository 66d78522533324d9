package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/memimage"
	"github.com/rabidaudio/cdz-nuts/position"
	"github.com/rabidaudio/cdz-nuts/toc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failIfErr(t *testing.T, err error) {
	if err != nil {
		t.Fatal(err)
	}
}

// patternDisc returns an image whose sector n is filled with byte n+1.
func patternDisc(lengths ...uint64) (*memimage.Image, []byte) {
	tracks := memimage.Layout(lengths...)
	total := tracks[len(tracks)-1].End
	data := make([]byte, total*disc.BytesPerSector)
	for i := range data {
		data[i] = byte(i/disc.BytesPerSector + 1)
	}
	return memimage.New(tracks, data), data
}

func newProvider(t *testing.T, img disc.Image, dopts disc.Options, contents *toc.TOC, opts ...Option) (*Provider, *position.Model) {
	t.Helper()
	m := position.New(dopts, nil)
	failIfErr(t, m.Load(img, contents))
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	return New(m, img, opts...), m
}

func sector(b byte) []byte {
	return bytes.Repeat([]byte{b}, disc.BytesPerSector)
}

func TestReadOneSector(t *testing.T) {
	img, _ := patternDisc(10)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil)

	buf := make([]byte, disc.BytesPerSector)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, disc.BytesPerSector, n)
	assert.Equal(t, sector(1), buf)
	assert.Equal(t, uint64(1), m.Snapshot().Sector)
	assert.Equal(t, 0, p.offset)

	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, sector(2), buf)
	assert.Equal(t, uint64(2), m.Snapshot().Sector)
}

func TestReadContinuity(t *testing.T) {
	img, data := patternDisc(10)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil)

	var out []byte
	for _, size := range []int{1000, 1352, 4704, 7, 2345, 1, 5000, 3000} {
		buf := make([]byte, size)
		n, err := p.Read(buf)
		require.NoError(t, err)
		require.Equal(t, size, n)
		out = append(out, buf...)
	}
	assert.Equal(t, data[:len(out)], out)
	assert.Equal(t, uint64(len(out)/disc.BytesPerSector), m.Snapshot().Sector)
	assert.Equal(t, len(out)%disc.BytesPerSector, p.offset)
}

func TestReadExactCount(t *testing.T) {
	img, _ := patternDisc(3, 2)
	p, _ := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatAll))

	for _, size := range []int{1, 3, 588, 2352, 4096, 2352*5 + 7, 44100} {
		buf := make([]byte, size)
		n, err := p.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, size, n)
	}
	n, err := p.Read(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadPastDiscEnd(t *testing.T) {
	img, _ := patternDisc(2)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatAll))
	m.SetSector(1)

	buf := make([]byte, 3*disc.BytesPerSector)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, sector(2), buf[:disc.BytesPerSector])
	assert.Equal(t, make([]byte, 2*disc.BytesPerSector), buf[disc.BytesPerSector:])
}

func TestRepeatSingle(t *testing.T) {
	img, _ := patternDisc(5, 5)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatSingle))

	buf := make([]byte, 5*disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	s := m.Snapshot()
	assert.Equal(t, 1, s.Track)
	assert.Equal(t, uint64(0), s.Sector)

	one := make([]byte, disc.BytesPerSector)
	_, err = p.Read(one)
	require.NoError(t, err)
	assert.Equal(t, sector(1), one)
}

func TestRepeatSingleAcrossTrackEnd(t *testing.T) {
	img, _ := patternDisc(5, 5)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatSingle))

	buf := make([]byte, 4*disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)

	buf = make([]byte, 2*disc.BytesPerSector)
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, sector(5), buf[:disc.BytesPerSector])
	assert.Equal(t, sector(1), buf[disc.BytesPerSector:])
	s := m.Snapshot()
	assert.Equal(t, 1, s.Track)
	assert.Equal(t, uint64(1), s.Sector)

	one := make([]byte, disc.BytesPerSector)
	_, err = p.Read(one)
	require.NoError(t, err)
	assert.Equal(t, sector(2), one)
}

func TestRepeatSingleUnalignedRead(t *testing.T) {
	img, data := patternDisc(2, 2)
	p, _ := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatSingle))

	track := data[:2*disc.BytesPerSector]
	var out []byte
	for _, size := range []int{1000, 3000, 2000} {
		buf := make([]byte, size)
		_, err := p.Read(buf)
		require.NoError(t, err)
		out = append(out, buf...)
	}
	want := append(append([]byte{}, track...), track...)
	assert.Equal(t, want[:len(out)], out)
}

func TestSilentAfterDiscEnd(t *testing.T) {
	img, _ := patternDisc(2, 2)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil)
	m.SetSector(3)

	buf := make([]byte, 2*disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, sector(4), buf[:disc.BytesPerSector])
	assert.Equal(t, make([]byte, disc.BytesPerSector), buf[disc.BytesPerSector:])

	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(buf)), buf)
	assert.Equal(t, uint64(0), m.Snapshot().Sector)

	p.Reset()
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, sector(1), buf[:disc.BytesPerSector])
}

func TestRepeatNoneStopsAtDiscEnd(t *testing.T) {
	img, _ := patternDisc(2, 2)
	ended := make(chan struct{}, 1)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithOnEnd(func() { ended <- struct{}{} }))
	assert.Equal(t, RepeatNone, p.Repeat())

	m.SetSector(2)
	buf := make([]byte, disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	select {
	case <-ended:
		t.Fatal("ended before the last sector was played")
	default:
	}

	_, err = p.Read(buf)
	require.NoError(t, err)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("end of disc not reported")
	}
	assert.Equal(t, 1, m.Snapshot().Track)
	assert.Equal(t, uint64(0), m.Snapshot().Sector)
}

func TestRepeatAllContinues(t *testing.T) {
	img, _ := patternDisc(2, 2)
	var ended atomic.Bool
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithOnEnd(func() { ended.Store(true) }))
	p.SetRepeat(RepeatAll)
	m.SetSector(3)

	buf := make([]byte, 2*disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Snapshot().Sector)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ended.Load())
}

func TestRetryThenSucceed(t *testing.T) {
	img, _ := patternDisc(10)
	var calls atomic.Int32
	img.ReadHook = func(start uint64, count uint32) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	p, m := newProvider(t, img, disc.DefaultOptions(), nil)
	m.SetSector(3)

	buf := make([]byte, disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	// retries restart from the top of the track
	assert.Equal(t, sector(1), buf)
	assert.Equal(t, uint64(1), m.Snapshot().Sector)
}

func TestRetriesExhausted(t *testing.T) {
	img, _ := patternDisc(10)
	var calls atomic.Int32
	img.ReadHook = func(start uint64, count uint32) error {
		calls.Add(1)
		return errors.New("bad sector")
	}
	p, m := newProvider(t, img, disc.DefaultOptions(), nil)
	m.SetSector(3)

	buf := bytes.Repeat([]byte{0xFF}, 1000)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, make([]byte, 1000), buf)
	assert.Equal(t, int32(DefaultRetries), calls.Load())
	assert.Equal(t, uint64(0), m.Snapshot().Sector)
	assert.Equal(t, 0, p.offset)
}

func TestBackendPanic(t *testing.T) {
	img, _ := patternDisc(10)
	img.ReadHook = func(uint64, uint32) error { panic("driver crashed") }
	p, _ := newProvider(t, img, disc.DefaultOptions(), nil, WithRetries(1))

	buf := bytes.Repeat([]byte{0xFF}, 100)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, make([]byte, 100), buf)
}

func TestTimeout(t *testing.T) {
	img, _ := patternDisc(10)
	img.Delay = 500 * time.Millisecond
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithTimeout(20*time.Millisecond))

	buf := bytes.Repeat([]byte{0xFF}, disc.BytesPerSector)
	start := time.Now()
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, disc.BytesPerSector, n)
	assert.Equal(t, make([]byte, disc.BytesPerSector), buf)
	assert.Equal(t, uint64(0), m.Snapshot().Sector)
}

func TestBlankDataTracks(t *testing.T) {
	tracks := memimage.Layout(2, 2)
	tracks[1].Type = disc.TrackTypeData
	_, data := patternDisc(2, 2)
	img := memimage.New(tracks, data)

	opts := disc.DefaultOptions()
	opts.DataTracks = disc.DataTracksBlank
	p, m := newProvider(t, img, opts, nil)
	m.SetSector(2)
	require.Equal(t, 2, m.Snapshot().Track)

	buf := make([]byte, disc.BytesPerSector)
	_, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, disc.BytesPerSector), buf)
	assert.Equal(t, uint64(3), m.Snapshot().Sector)

	opts.DataTracks = disc.DataTracksPlay
	p, m = newProvider(t, img, opts, nil)
	m.SetSector(2)
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, sector(3), buf)
}

func TestDeEmphasis(t *testing.T) {
	tracks := memimage.Layout(4)
	img := memimage.ToneDisc(1, 1)
	raw, err := img.ReadSectors(0, 1)
	require.NoError(t, err)
	img = memimage.New(tracks, bytes.Repeat(raw, 4))
	contents := &toc.TOC{Descriptors: []toc.Descriptor{
		{Session: 1, ADR: 1, Point: 1, Control: toc.ControlPreEmphasis, PSec: 2},
	}}

	p, m := newProvider(t, img, disc.DefaultOptions(), contents)
	assert.True(t, p.Emphasis())

	buf := make([]byte, disc.BytesPerSector)
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.NotEqual(t, raw, buf)

	p.SetDeEmphasis(false)
	assert.False(t, p.Emphasis())
	m.SetSector(0)
	p.Reset()
	_, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, raw, buf)
}

func TestUnreadableTrack(t *testing.T) {
	tracks := memimage.Layout(4)
	tracks[0].BytesPerSector = 0
	_, data := patternDisc(4)
	p, m := newProvider(t, memimage.New(tracks, data), disc.DefaultOptions(), nil)

	buf := bytes.Repeat([]byte{0xFF}, 64)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, make([]byte, 64), buf)
	assert.Equal(t, uint64(0), m.Snapshot().Sector)
}

func TestUnloadedModel(t *testing.T) {
	img, _ := patternDisc(4)
	m := position.New(disc.DefaultOptions(), nil)
	p := New(m, img, WithLogger(log.New(io.Discard)))

	buf := bytes.Repeat([]byte{0xFF}, 64)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, make([]byte, 64), buf)
}

func TestConcurrentSeek(t *testing.T) {
	img, _ := patternDisc(50, 50)
	p, m := newProvider(t, img, disc.DefaultOptions(), nil, WithRepeat(RepeatAll))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]byte, 4096)
		for range 200 {
			n, _ := p.Read(buf)
			assert.Equal(t, len(buf), n)
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			m.SetTrack(i%2 + 1)
			p.Reset()
		}
	}()
	wg.Wait()
}

func TestParseRepeatMode(t *testing.T) {
	r, ok := ParseRepeatMode("single")
	assert.True(t, ok)
	assert.Equal(t, RepeatSingle, r)
	_, ok = ParseRepeatMode("shuffle")
	assert.False(t, ok)
}
