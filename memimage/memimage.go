// Package memimage provides a disc image held in memory. It backs tests and
// the demo disc, and lets callers inject read faults and latency.
package memimage

import (
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// FillFunc writes the raw bytes of one sector into p.
type FillFunc func(sector uint64, p []byte)

// Image is an in-memory disc.Image. Every sector is disc.BytesPerSector
// bytes long regardless of track type.
type Image struct {
	mu      sync.Mutex
	tracks  []disc.Track
	sectors uint64
	fill    FillFunc
	flags   map[int]byte
	fullTOC []byte
	closed  bool

	// ReadHook, when set, runs before every ReadSectors call. A non-nil
	// error fails the read.
	ReadHook func(start uint64, count uint32) error
	// Delay is slept inside every ReadSectors call.
	Delay time.Duration
}

var _ disc.Image = (*Image)(nil)

// New creates an image from a track list and the raw sector data of the
// whole disc. Sectors past the end of data read as zeros.
func New(tracks []disc.Track, data []byte) *Image {
	return NewFunc(tracks, sectorsOf(tracks, uint64(len(data)/disc.BytesPerSector)), func(sector uint64, p []byte) {
		off := sector * disc.BytesPerSector
		if off >= uint64(len(data)) {
			clear(p)
			return
		}
		n := copy(p, data[off:])
		clear(p[n:])
	})
}

// NewFunc creates an image whose sector contents are produced on demand.
func NewFunc(tracks []disc.Track, sectors uint64, fill FillFunc) *Image {
	t := slices.Clone(tracks)
	disc.SortByStart(t)
	return &Image{
		tracks:  t,
		sectors: sectorsOf(t, sectors),
		fill:    fill,
		flags:   map[int]byte{},
	}
}

func sectorsOf(tracks []disc.Track, atLeast uint64) uint64 {
	n := atLeast
	for _, t := range tracks {
		n = max(n, t.End)
	}
	return n
}

// Layout builds contiguous single-session audio tracks numbered from 1 with
// the given lengths in sectors. Each track has index 1 at its start.
func Layout(lengths ...uint64) []disc.Track {
	tracks := make([]disc.Track, len(lengths))
	pos := uint64(0)
	for i, l := range lengths {
		tracks[i] = disc.Track{
			Sequence:       i + 1,
			Session:        1,
			Start:          pos,
			End:            pos + l,
			BytesPerSector: disc.BytesPerSector,
			Type:           disc.TrackTypeAudio,
			Indexes:        map[uint16]int64{1: int64(pos)},
		}
		pos += l
	}
	return tracks
}

// SetTrackFlags sets the control nibble returned by the track flags sector
// tag for every sector of the track with the given sequence number.
func (img *Image) SetTrackFlags(sequence int, control byte) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.flags[sequence] = control
}

// SetFullTOC sets the raw bytes returned for disc.DiscTagFullTOC.
// A nil slice removes the tag.
func (img *Image) SetFullTOC(raw []byte) {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.fullTOC = raw
}

func (img *Image) Tracks() []disc.Track {
	return slices.Clone(img.tracks)
}

func (img *Image) Sectors() uint64 {
	return img.sectors
}

func (img *Image) ReadSectors(start uint64, count uint32) ([]byte, error) {
	img.mu.Lock()
	hook, delay, closed := img.ReadHook, img.Delay, img.closed
	img.mu.Unlock()

	if closed {
		return nil, os.ErrClosed
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if hook != nil {
		if err := hook(start, count); err != nil {
			return nil, err
		}
	}
	if start+uint64(count) > img.sectors {
		return nil, fmt.Errorf("memimage: read of %d sectors at %d exceeds %d sectors", count, start, img.sectors)
	}
	buf := make([]byte, int(count)*disc.BytesPerSector)
	for i := range uint64(count) {
		img.fill(start+i, buf[i*disc.BytesPerSector:(i+1)*disc.BytesPerSector])
	}
	return buf, nil
}

func (img *Image) ReadSectorTag(sector uint64, tag disc.SectorTag) ([]byte, error) {
	if tag != disc.SectorTagTrackFlags {
		return nil, disc.ErrTagNotFound
	}
	img.mu.Lock()
	defer img.mu.Unlock()
	for _, t := range img.tracks {
		if !t.Contains(sector) {
			continue
		}
		if c, ok := img.flags[t.Sequence]; ok {
			return []byte{c}, nil
		}
		return nil, disc.ErrTagNotFound
	}
	return nil, fmt.Errorf("memimage: sector %d is outside every track", sector)
}

func (img *Image) ReadDiscTag(tag disc.DiscTag) ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if tag != disc.DiscTagFullTOC || img.fullTOC == nil {
		return nil, disc.ErrTagNotFound
	}
	return slices.Clone(img.fullTOC), nil
}

func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.closed = true
	return nil
}

// ToneDisc creates a disc of ntracks audio tracks, each seconds long,
// holding a sine tone that rises a semitone per track.
func ToneDisc(ntracks int, seconds int) *Image {
	lengths := make([]uint64, ntracks)
	for i := range lengths {
		lengths[i] = uint64(seconds * disc.SectorsPerSecond)
	}
	tracks := Layout(lengths...)
	return NewFunc(tracks, 0, func(sector uint64, p []byte) {
		freq := 440.0
		for _, t := range tracks {
			if t.Contains(sector) {
				freq = 440 * math.Pow(2, float64(t.Sequence-1)/12)
				break
			}
		}
		for i := range disc.SamplesPerSector {
			n := float64(sector*disc.SamplesPerSector + uint64(i))
			v := int16(math.Sin(2*math.Pi*freq*n/disc.SampleRate) * 8000)
			for ch := range disc.Channels {
				off := (i*disc.Channels + ch) * disc.BytesPerSample
				p[off] = byte(v)
				p[off+1] = byte(uint16(v) >> 8)
			}
		}
	})
}
