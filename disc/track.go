package disc

import (
	"slices"
)

// TrackType distinguishes audio tracks from data tracks.
// Mixed-mode disks can have data tracks in addition to audio tracks.
type TrackType int

const (
	TrackTypeAudio TrackType = iota
	TrackTypeData
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// Track is one entry of the disc layout as reported by the image backend.
// Tracks are created once when the disc is loaded and never modified.
type Track struct {
	Sequence       int       // track number, 0 for a hidden track in the first pregap
	Session        int       // session the track was written in, starting at 1
	Start          uint64    // absolute address of the first sector
	End            uint64    // absolute address of the sector after the last one
	BytesPerSector int       // raw size of each sector in this track
	Type           TrackType // audio or data

	// Indexes maps index numbers to absolute start sectors. Index 0 is the
	// pregap. A negative start is a placeholder and not a real position.
	Indexes map[uint16]int64
}

// IsAudio reports whether the track holds audio.
func (t Track) IsAudio() bool {
	return t.Type == TrackTypeAudio
}

// Length is the number of sectors the track covers.
func (t Track) Length() uint64 {
	if t.End < t.Start {
		return 0
	}
	return t.End - t.Start
}

// Contains reports whether the given sector is within the track bounds.
func (t Track) Contains(sector uint64) bool {
	return sector >= t.Start && sector < t.End
}

// IndexNumbers returns the index numbers of the track in ascending order.
func (t Track) IndexNumbers() []uint16 {
	keys := make([]uint16, 0, len(t.Indexes))
	for k := range t.Indexes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// IndexStart returns the start sector of index n and whether it is a
// real position on the disc.
func (t Track) IndexStart(n uint16) (uint64, bool) {
	s, ok := t.Indexes[n]
	if !ok || s < 0 {
		return 0, false
	}
	return uint64(s), true
}

// FirstIndex returns the lowest index with a real start sector. If no index
// qualifies the lowest index number is returned. Tracks without indexes
// report index 1.
func (t Track) FirstIndex() uint16 {
	keys := t.IndexNumbers()
	if len(keys) == 0 {
		return 1
	}
	for _, k := range keys {
		if t.Indexes[k] >= 0 {
			return k
		}
	}
	return keys[0]
}

// FirstSector returns the sector playback of the track starts at: the start
// of FirstIndex, or the track start when that index has no real position.
func (t Track) FirstSector() uint64 {
	s, ok := t.IndexStart(t.FirstIndex())
	if !ok || s < t.Start {
		return t.Start
	}
	return s
}

// SortByStart orders tracks by their first sector.
func SortByStart(tracks []Track) {
	slices.SortStableFunc(tracks, func(a, b Track) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return a.Sequence - b.Sequence
		}
	})
}
