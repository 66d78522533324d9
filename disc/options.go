package disc

import "fmt"

// DataTrackPolicy decides what playback does with data tracks.
type DataTrackPolicy int

const (
	DataTracksSkip  DataTrackPolicy = iota // navigation never lands on data tracks
	DataTracksBlank                        // data tracks play as silence
	DataTracksPlay                         // data tracks are streamed as if they were audio
)

func (p DataTrackPolicy) String() string {
	switch p {
	case DataTracksSkip:
		return "skip"
	case DataTracksBlank:
		return "blank"
	case DataTracksPlay:
		return "play"
	default:
		return fmt.Sprintf("DataTrackPolicy(%d)", int(p))
	}
}

// ParseDataTrackPolicy parses the String form of a DataTrackPolicy.
func ParseDataTrackPolicy(s string) (DataTrackPolicy, error) {
	switch s {
	case "skip":
		return DataTracksSkip, nil
	case "blank":
		return DataTracksBlank, nil
	case "play":
		return DataTracksPlay, nil
	}
	return 0, fmt.Errorf("disc: unknown data track policy %q", s)
}

// SessionHandling decides which sessions of a multi-session disc are loaded.
type SessionHandling int

const (
	AllSessions SessionHandling = iota
	FirstSessionOnly
)

// Options configure how a disc is loaded. They are fixed for the lifetime
// of one loaded disc.
type Options struct {
	GenerateMissingTOC bool            // synthesize a TOC when the image has none
	LoadHiddenTracks   bool            // allow track 0 in the first pregap
	DataTracks         DataTrackPolicy // see DataTrackPolicy
	Sessions           SessionHandling // see SessionHandling
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		GenerateMissingTOC: true,
		LoadHiddenTracks:   false,
		DataTracks:         DataTracksSkip,
		Sessions:           AllSessions,
	}
}
