package vfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/memimage"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "UPCASE", sanitizeName("upcase"))
	assert.Equal(t, "MYFILE", sanitizeName("my file"))
	assert.Equal(t, "LIMITSLE", sanitizeName("limitslengthtoeight"))
	assert.Equal(t, "RMVNUMR", sanitizeName("r3m0v35 num83r5"))
	assert.Equal(t, "", sanitizeName(""))
	assert.Equal(t, "ILUV", sanitizeName("I luv ĀḞÍ♥︎✨ :3"))
}

func TestTrackPath(t *testing.T) {
	tr := disc.Track{Sequence: 3}
	assert.Equal(t, "/chronict/track03.wav", trackPath("Chronic Town", tr))
	assert.Equal(t, "/track03.wav", trackPath("", tr))
}

func TestSizeFor(t *testing.T) {
	small := memimage.Layout(75, 75)
	assert.Equal(t, int64(DefaultSize), SizeFor(small))

	// roughly 80 minutes of audio
	big := memimage.Layout(80 * 60 * disc.SectorsPerSecond)
	size := SizeFor(big)
	assert.Greater(t, size, trackSizeBytes(big[0]))
	assert.Zero(t, size%(1024*1024))
}

func TestCreate(t *testing.T) {
	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)

	_, err = os.Stat(fsys.Path)
	assert.NoError(t, err)

	assert.NoError(t, fsys.Close())
	_, err = os.Stat(fsys.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestCreateAtPathKeepsImage(t *testing.T) {
	path := t.TempDir() + "/export.img"
	fsys, err := Create(path, DefaultSize, nil)
	require.NoError(t, err)
	require.NoError(t, fsys.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultSize), fi.Size())
}

func TestLoadDisc(t *testing.T) {
	img := memimage.ToneDisc(2, 1)
	defer img.Close()

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.LoadDisc(context.Background(), "The Tones", img))
	assert.Equal(t, []string{"/thetones/track01.wav", "/thetones/track02.wav"}, fsys.Files())

	fileInfo, err := fsys.fs.ReadDir("/thetones")
	require.NoError(t, err)
	sizes := map[string]int64{}
	for _, fi := range fileInfo {
		sizes[fi.Name()] = fi.Size()
	}
	for _, tr := range img.Tracks() {
		assert.Equal(t, trackSizeBytes(tr), sizes[trackPath("The Tones", tr)[len("/thetones/"):]])
	}

	// the exported audio decodes back to the sectors of the disc
	tr := img.Tracks()[1]
	file, err := fsys.fs.OpenFile(trackPath("The Tones", tr), os.O_RDONLY)
	require.NoError(t, err)
	defer file.Close()

	// fat32 files return the last bytes together with io.EOF, which the wav
	// decoder treats as a failed read, so decode from memory
	contents, err := io.ReadAll(file)
	require.NoError(t, err)
	raw, err := img.ReadSectors(tr.Start, uint32(tr.Length()))
	require.NoError(t, err)
	require.Len(t, contents, len(raw)+44)
	assert.Equal(t, raw, contents[44:])

	dec := wav.NewDecoder(bytes.NewReader(contents))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, disc.SampleRate, buf.Format.SampleRate)
	assert.Equal(t, toInts(nil, raw, len(raw)), buf.Data)
}

func TestLoadDiscSkipsDataTracks(t *testing.T) {
	tracks := memimage.Layout(75, 75)
	tracks[1].Type = disc.TrackTypeData
	img := memimage.New(tracks, nil)

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.LoadDisc(context.Background(), "mixed", img))
	assert.Equal(t, []string{"/mixed/track01.wav"}, fsys.Files())
}

func TestLoadDiscTwice(t *testing.T) {
	img := memimage.ToneDisc(1, 1)

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.LoadDisc(context.Background(), "one", img))
	assert.Error(t, fsys.LoadDisc(context.Background(), "two", img))

	require.NoError(t, fsys.Eject())
	assert.Empty(t, fsys.Files())
	_, err = fsys.fs.OpenFile("/one/track01.wav", os.O_RDONLY)
	assert.Error(t, err)
	assert.NoError(t, fsys.LoadDisc(context.Background(), "two", img))
	assert.Equal(t, []string{"/two/track01.wav"}, fsys.Files())

	require.NoError(t, fsys.Eject())
	entries, err := fsys.fs.ReadDir("/")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "two", e.Name())
	}
}

func TestEjectWithoutDirectory(t *testing.T) {
	img := memimage.ToneDisc(2, 1)

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.LoadDisc(context.Background(), "", img))
	assert.Equal(t, []string{"/track01.wav", "/track02.wav"}, fsys.Files())
	require.NoError(t, fsys.Eject())
	assert.NoError(t, fsys.LoadDisc(context.Background(), "", img))
}

func TestLoadDiscCancelled(t *testing.T) {
	img := memimage.ToneDisc(1, 1)

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = fsys.LoadDisc(ctx, "", img)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDiscReadError(t *testing.T) {
	img := memimage.ToneDisc(1, 1)
	img.ReadHook = func(uint64, uint32) error { return os.ErrInvalid }

	fsys, err := Create("", DefaultSize, nil)
	require.NoError(t, err)
	defer fsys.Close()

	assert.ErrorIs(t, fsys.LoadDisc(context.Background(), "", img), os.ErrInvalid)
}

func TestToInts(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x09}
	assert.Equal(t, []int{1, -1, -32768}, toInts(nil, raw, len(raw)))
	assert.Equal(t, []int{1}, toInts(nil, raw, 2))
}
