// Package wavdisc assembles a disc image from WAV files, one track per file.
// Files must hold 44.1kHz 16-bit stereo PCM. Tracks are laid out back to
// back, each padded with silence to a whole number of sectors.
package wavdisc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-audio/wav"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/memimage"
)

var ErrNoTracks = errors.New("wavdisc: no WAV files found")

// FormatError reports a WAV file that is not Redbook audio.
type FormatError struct {
	Path       string
	SampleRate int
	BitDepth   int
	Channels   int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wavdisc: %v is %d Hz %d-bit %d channel audio, need %d Hz %d-bit %d channel",
		e.Path, e.SampleRate, e.BitDepth, e.Channels, disc.SampleRate, disc.BytesPerSample*8, disc.Channels)
}

// Open builds a disc from path, which is either a single WAV file or a
// directory whose WAV files are used in lexical order.
func Open(path string) (disc.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return OpenFiles(path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return OpenFiles(files...)
}

// OpenFiles builds a disc with one track per file, in the given order.
func OpenFiles(paths ...string) (disc.Image, error) {
	if len(paths) == 0 {
		return nil, ErrNoTracks
	}
	var (
		data   []byte
		tracks []disc.Track
	)
	for i, p := range paths {
		pcm, err := decode(p)
		if err != nil {
			return nil, err
		}
		if rem := len(pcm) % disc.BytesPerSector; rem != 0 {
			pcm = append(pcm, make([]byte, disc.BytesPerSector-rem)...)
		}
		start := uint64(len(data) / disc.BytesPerSector)
		data = append(data, pcm...)
		tracks = append(tracks, disc.Track{
			Sequence:       i + 1,
			Session:        1,
			Start:          start,
			End:            uint64(len(data) / disc.BytesPerSector),
			BytesPerSector: disc.BytesPerSector,
			Type:           disc.TrackTypeAudio,
			Indexes:        map[uint16]int64{1: int64(start)},
		})
	}
	return memimage.New(tracks, data), nil
}

// decode reads a WAV file into little endian 16-bit PCM.
func decode(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("wavdisc: %v is not a valid WAV file", path)
	}
	if d.SampleRate != disc.SampleRate || d.BitDepth != disc.BytesPerSample*8 || d.NumChans != disc.Channels {
		return nil, &FormatError{Path: path, SampleRate: int(d.SampleRate), BitDepth: int(d.BitDepth), Channels: int(d.NumChans)}
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavdisc: decode %v: %w", path, err)
	}

	pcm := make([]byte, len(buf.Data)*disc.BytesPerSample)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*disc.BytesPerSample:], uint16(int16(v)))
	}
	return pcm, nil
}
