package position

import (
	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/toc"
)

// TrackFilter reports whether navigation may land on a track.
type TrackFilter func(t disc.Track, flags toc.Flags) bool

// DataTrackFilter accepts audio tracks, and data tracks only when load is set.
func DataTrackFilter(load bool) TrackFilter {
	return func(t disc.Track, flags toc.Flags) bool {
		return load || (t.IsAudio() && !flags.Data)
	}
}

// FilterFor returns the filter matching the data track policy of opts.
// Data tracks are only skipped under disc.DataTracksSkip.
func FilterFor(opts disc.Options) TrackFilter {
	return DataTrackFilter(opts.DataTracks != disc.DataTracksSkip)
}
