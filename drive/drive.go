// Package drive reads discs from a physical CD drive through cdparanoia.
package drive

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/rabidaudio/audiocd"

	"github.com/rabidaudio/cdz-nuts/disc"
)

const dataTrackFlag = 0x04

// Drive is a disc.Image over a CD in a drive. Reads are serialized.
type Drive struct {
	mu      sync.Mutex
	cd      *audiocd.AudioCD
	tracks  []disc.Track
	flags   map[int]byte
	sectors uint64
}

var _ disc.Image = (*Drive)(nil)

// Open opens the disc in the drive at device. An empty device selects the
// first drive found.
func Open(device string) (disc.Image, error) {
	return OpenWithLogger(device, nil)
}

// OpenWithLogger is Open with cdparanoia diagnostics sent to logger.
func OpenWithLogger(device string, logger *log.Logger) (disc.Image, error) {
	cd := &audiocd.AudioCD{Device: device}
	if logger != nil {
		cd.LogMode = audiocd.LogModeLogger
		cd.Logger = logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel})
	}
	if err := cd.Open(); err != nil {
		return nil, fmt.Errorf("drive: open %q: %w", device, err)
	}

	positions := cd.TOC()
	tracks, flags := tracksFromTOC(positions)
	if len(tracks) == 0 {
		cd.Close()
		return nil, errors.New("drive: disc has no tracks")
	}
	d := &Drive{
		cd:      cd,
		tracks:  tracks,
		flags:   flags,
		sectors: uint64(max(int64(cd.LengthSectors()), 0)),
	}
	for _, t := range tracks {
		d.sectors = max(d.sectors, t.End)
	}
	return d, nil
}

// tracksFromTOC converts the drive's table of contents into tracks and the
// control nibble of each track.
func tracksFromTOC(positions []audiocd.TrackPosition) ([]disc.Track, map[int]byte) {
	tracks := make([]disc.Track, 0, len(positions))
	flags := make(map[int]byte, len(positions))
	for _, p := range positions {
		start, length := int64(p.StartSector), int64(p.LengthSectors)
		if start < 0 || length <= 0 {
			continue
		}
		control := uint8(p.Flags) & 0x0F
		t := disc.Track{
			Sequence:       int(p.TrackNum),
			Session:        1,
			Start:          uint64(start),
			End:            uint64(start + length),
			BytesPerSector: disc.BytesPerSector,
			Type:           disc.TrackTypeAudio,
			Indexes:        map[uint16]int64{1: start},
		}
		if control&dataTrackFlag != 0 {
			t.Type = disc.TrackTypeData
		}
		tracks = append(tracks, t)
		flags[t.Sequence] = control
	}
	disc.SortByStart(tracks)
	return tracks, flags
}

func (d *Drive) Tracks() []disc.Track {
	return append([]disc.Track(nil), d.tracks...)
}

func (d *Drive) Sectors() uint64 {
	return d.sectors
}

func (d *Drive) ReadSectors(start uint64, count uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if start+uint64(count) > d.sectors {
		return nil, fmt.Errorf("drive: read of %d sectors at %d past end of disc", count, start)
	}
	if _, err := d.cd.Seek(int64(start)*disc.BytesPerSector, io.SeekStart); err != nil {
		return nil, fmt.Errorf("drive: seek to sector %d: %w", start, err)
	}
	buf := make([]byte, int(count)*disc.BytesPerSector)
	if _, err := io.ReadFull(d.cd, buf); err != nil {
		return nil, fmt.Errorf("drive: read sector %d: %w", start, err)
	}
	return buf, nil
}

// ReadSectorTag returns the control nibble the drive reported for the track
// holding sector.
func (d *Drive) ReadSectorTag(sector uint64, tag disc.SectorTag) ([]byte, error) {
	if tag != disc.SectorTagTrackFlags {
		return nil, disc.ErrTagNotFound
	}
	for _, t := range d.tracks {
		if t.Contains(sector) {
			return []byte{d.flags[t.Sequence]}, nil
		}
	}
	return nil, disc.ErrTagNotFound
}

// ReadDiscTag always reports the tag missing; cdparanoia does not expose
// the raw full TOC.
func (d *Drive) ReadDiscTag(tag disc.DiscTag) ([]byte, error) {
	return nil, disc.ErrTagNotFound
}

func (d *Drive) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cd.Close()
}
