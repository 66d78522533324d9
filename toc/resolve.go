package toc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// Resolve obtains the table of contents for img. An embedded full TOC is
// preferred; otherwise one is generated from the track list if opts allow it.
// Errors are always of type *ResolveError.
func Resolve(img disc.Image, opts disc.Options) (*TOC, error) {
	if img == nil {
		return nil, &ResolveError{Kind: ErrReadTOC, Err: errors.New("no image")}
	}

	raw, err := img.ReadDiscTag(disc.DiscTagFullTOC)
	switch {
	case err == nil && len(raw) > 0:
		t, err := Decode(normalizeLength(raw))
		if err != nil {
			return nil, &ResolveError{Kind: ErrDecodeTOC, Err: err}
		}
		return t, nil
	case err == nil:
		return nil, &ResolveError{Kind: ErrReadTOC, Err: errors.New("image returned an empty TOC")}
	case !errors.Is(err, disc.ErrTagNotFound):
		return nil, &ResolveError{Kind: ErrReadTOC, Err: err}
	}

	if !opts.GenerateMissingTOC {
		return nil, &ResolveError{Kind: ErrMissingTOC}
	}
	t, err := Generate(img)
	if err != nil {
		return nil, &ResolveError{Kind: ErrGenerateTOC, Err: err}
	}
	return t, nil
}

// normalizeLength prepends a length field to images that store the TOC
// without one.
func normalizeLength(raw []byte) []byte {
	if len(raw) >= 2 && int(binary.BigEndian.Uint16(raw[0:2]))+2 == len(raw) {
		return raw
	}
	fixed := make([]byte, len(raw)+2)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(len(raw)))
	copy(fixed[2:], raw)
	return fixed
}

// Generate synthesizes a full TOC from the tracks of img. Control fields
// come from the track flags sector tag when the image has it, and from the
// track type otherwise.
func Generate(img disc.Image) (t *TOC, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = fmt.Errorf("toc: generate: %v", r)
		}
	}()

	tracks := slices.Clone(img.Tracks())
	if len(tracks) == 0 {
		return nil, errors.New("toc: image has no tracks")
	}
	slices.SortStableFunc(tracks, func(a, b disc.Track) int {
		if a.Session != b.Session {
			return a.Session - b.Session
		}
		return a.Sequence - b.Sequence
	})

	var sessions [][]disc.Track
	for i, tr := range tracks {
		if i == 0 || tr.Session != tracks[i-1].Session {
			sessions = append(sessions, nil)
		}
		sessions[len(sessions)-1] = append(sessions[len(sessions)-1], tr)
	}

	t = &TOC{
		FirstSession: uint8(tracks[0].Session),
		LastSession:  uint8(tracks[len(tracks)-1].Session),
	}
	for si, session := range sessions {
		controls := make([]Control, len(session))
		for i, tr := range session {
			controls[i], err = trackControl(img, tr)
			if err != nil {
				return nil, fmt.Errorf("toc: track %d flags: %w", tr.Sequence, err)
			}
		}

		num := uint8(session[0].Session)
		first, last := session[0], session[len(session)-1]
		firstControl, lastControl := controls[0], controls[len(controls)-1]
		if first.Sequence == 0 && len(session) > 1 {
			first, firstControl = session[1], controls[1]
		}

		t.Descriptors = append(t.Descriptors,
			Descriptor{Session: num, ADR: 1, Control: firstControl, Point: PointFirstTrack, PMin: uint8(first.Sequence)},
			Descriptor{Session: num, ADR: 1, Control: lastControl, Point: PointLastTrack, PMin: uint8(last.Sequence)},
			withPMSF(Descriptor{Session: num, ADR: 1, Control: lastControl, Point: PointLeadOut}, last.End),
		)
		for i, tr := range session {
			if tr.Sequence < 1 {
				continue
			}
			t.Descriptors = append(t.Descriptors,
				withPMSF(Descriptor{Session: num, ADR: 1, Control: controls[i], Point: uint8(tr.Sequence)}, tr.Start))
		}
		if si < len(sessions)-1 {
			next := disc.MSFFromSector(sessions[si+1][0].Start + disc.PregapSectors)
			d := withPMSF(Descriptor{Session: num, ADR: 5, Point: PointNextSession}, img.Sectors())
			d.Min, d.Sec, d.Frame = next.Minute, next.Second, next.Frame
			t.Descriptors = append(t.Descriptors, d)
		}
	}
	return t, nil
}

func withPMSF(d Descriptor, sector uint64) Descriptor {
	m := disc.MSFFromSector(sector + disc.PregapSectors)
	d.PMin, d.PSec, d.PFrame = m.Minute, m.Second, m.Frame
	return d
}

func trackControl(img disc.Image, tr disc.Track) (Control, error) {
	sector := tr.Start + 1
	if tr.Length() < 2 {
		sector = tr.Start
	}
	tag, err := img.ReadSectorTag(sector, disc.SectorTagTrackFlags)
	switch {
	case err == nil && len(tag) > 0:
		c := Control(tag[0]) & controlMask
		if !tr.IsAudio() {
			c |= ControlDataTrack
		}
		return c, nil
	case err == nil, errors.Is(err, disc.ErrTagNotFound):
		return DefaultFlags(tr).Control(), nil
	default:
		return 0, err
	}
}
