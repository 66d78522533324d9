package disc

import "errors"

// SectorTag selects per-sector metadata from an Image.
type SectorTag int

const (
	// SectorTagTrackFlags is the Q subchannel control nibble of a sector,
	// returned as a single byte.
	SectorTagTrackFlags SectorTag = iota
)

// DiscTag selects disc-wide metadata from an Image.
type DiscTag int

const (
	// DiscTagFullTOC is the raw full table of contents, as returned by a
	// READ TOC format 0010b command.
	DiscTagFullTOC DiscTag = iota
)

// ErrTagNotFound is returned by an Image that does not carry the
// requested tag.
var ErrTagNotFound = errors.New("disc: tag not present in image")

// Image is a disc image backend. Implementations are not required to be
// safe for concurrent use; callers serialize access.
type Image interface {
	// Tracks returns the tracks of all sessions ordered by start sector.
	Tracks() []Track
	// Sectors returns the total number of addressable sectors.
	Sectors() uint64
	// ReadSectors returns count raw sectors starting at start.
	ReadSectors(start uint64, count uint32) ([]byte, error)
	// ReadSectorTag returns metadata attached to a single sector.
	ReadSectorTag(sector uint64, tag SectorTag) ([]byte, error)
	// ReadDiscTag returns disc-wide metadata.
	ReadDiscTag(tag DiscTag) ([]byte, error)
	Close() error
}

// Opener opens the image at path.
type Opener func(path string) (Image, error)
