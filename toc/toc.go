// Package toc models the full table of contents of a compact disc and
// resolves one for a disc image, either from the image itself or by
// synthesizing it from the track layout.
package toc

import (
	"encoding/binary"
	"fmt"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// Control is the 4-bit Q subchannel control field of a TOC entry.
type Control uint8

const (
	ControlPreEmphasis   Control = 0x01 // audio was recorded with 50/15µs pre-emphasis
	ControlCopyPermitted Control = 0x02 // digital copy permitted
	ControlDataTrack     Control = 0x04 // track holds data, not audio
	ControlFourChannel   Control = 0x08 // four-channel audio

	controlMask Control = 0x0F
)

// Special values of Descriptor.Point.
const (
	PointFirstTrack  = 0xA0 // PMin holds the first track number of the session
	PointLastTrack   = 0xA1 // PMin holds the last track number of the session
	PointLeadOut     = 0xA2 // PMSF holds the start of the session lead-out
	PointNextSession = 0xB0 // MSF holds the start of the next program area
)

const (
	headerSize     = 4
	descriptorSize = 11
)

// Descriptor is one 11-byte entry of the full TOC.
type Descriptor struct {
	Session uint8
	ADR     uint8
	Control Control
	TNO     uint8
	Point   uint8
	Min     uint8
	Sec     uint8
	Frame   uint8
	Zero    uint8
	PMin    uint8
	PSec    uint8
	PFrame  uint8
}

// PSector returns the absolute sector of the PMSF field, without the
// pregap offset removed.
func (d Descriptor) PSector() uint64 {
	return disc.MSF{Minute: d.PMin, Second: d.PSec, Frame: d.PFrame}.Sector()
}

// TOC is a decoded full table of contents.
type TOC struct {
	FirstSession uint8
	LastSession  uint8
	Descriptors  []Descriptor
}

// Flags are the per-track properties carried by the control field.
type Flags struct {
	Emphasis    bool
	CopyAllowed bool
	Data        bool
	QuadChannel bool
}

// FlagsFromControl extracts Flags from a control field.
func FlagsFromControl(c Control) Flags {
	c &= controlMask
	return Flags{
		Emphasis:    c&ControlPreEmphasis != 0,
		CopyAllowed: c&ControlCopyPermitted != 0,
		Data:        c&ControlDataTrack != 0,
		QuadChannel: c&ControlFourChannel != 0,
	}
}

// Control packs the flags back into a control field.
func (f Flags) Control() Control {
	var c Control
	if f.Emphasis {
		c |= ControlPreEmphasis
	}
	if f.CopyAllowed {
		c |= ControlCopyPermitted
	}
	if f.Data {
		c |= ControlDataTrack
	}
	if f.QuadChannel {
		c |= ControlFourChannel
	}
	return c
}

// DefaultFlags are used for tracks the TOC has no entry for.
func DefaultFlags(t disc.Track) Flags {
	return Flags{Data: !t.IsAudio()}
}

// Decode parses a full TOC. raw must start with the 2-byte big-endian
// length of the data that follows it.
func Decode(raw []byte) (*TOC, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("toc: %d bytes is too short for a header", len(raw))
	}
	length := int(binary.BigEndian.Uint16(raw[0:2]))
	if length+2 > len(raw) {
		return nil, fmt.Errorf("toc: length field %d exceeds data size %d", length, len(raw)-2)
	}
	if length < 2 {
		return nil, fmt.Errorf("toc: length field %d too small", length)
	}
	body := raw[headerSize : length+2]
	if len(body)%descriptorSize != 0 {
		return nil, fmt.Errorf("toc: %d bytes of descriptors is not a multiple of %d", len(body), descriptorSize)
	}

	t := TOC{
		FirstSession: raw[2],
		LastSession:  raw[3],
		Descriptors:  make([]Descriptor, 0, len(body)/descriptorSize),
	}
	for off := 0; off < len(body); off += descriptorSize {
		b := body[off : off+descriptorSize]
		t.Descriptors = append(t.Descriptors, Descriptor{
			Session: b[0],
			ADR:     b[1] >> 4,
			Control: Control(b[1]) & controlMask,
			TNO:     b[2],
			Point:   b[3],
			Min:     b[4],
			Sec:     b[5],
			Frame:   b[6],
			Zero:    b[7],
			PMin:    b[8],
			PSec:    b[9],
			PFrame:  b[10],
		})
	}
	return &t, nil
}

// Encode serializes the TOC in the layout Decode accepts.
func (t *TOC) Encode() []byte {
	raw := make([]byte, headerSize+len(t.Descriptors)*descriptorSize)
	binary.BigEndian.PutUint16(raw[0:2], uint16(len(raw)-2))
	raw[2] = t.FirstSession
	raw[3] = t.LastSession
	for i, d := range t.Descriptors {
		b := raw[headerSize+i*descriptorSize:]
		b[0] = d.Session
		b[1] = d.ADR<<4 | uint8(d.Control&controlMask)
		b[2] = d.TNO
		b[3] = d.Point
		b[4] = d.Min
		b[5] = d.Sec
		b[6] = d.Frame
		b[7] = d.Zero
		b[8] = d.PMin
		b[9] = d.PSec
		b[10] = d.PFrame
	}
	return raw
}

// Find returns the first mode-1 descriptor with the given point.
func (t *TOC) Find(point int) (Descriptor, bool) {
	if t == nil || point < 0 || point > 0xFF {
		return Descriptor{}, false
	}
	for _, d := range t.Descriptors {
		if d.ADR == 1 && int(d.Point) == point {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Flags returns the flags of the track with the given sequence number.
func (t *TOC) Flags(sequence int) (Flags, bool) {
	if sequence < 1 || sequence > 99 {
		return Flags{}, false
	}
	d, ok := t.Find(sequence)
	if !ok {
		return Flags{}, false
	}
	return FlagsFromControl(d.Control), true
}

// TimeOffset is the length of the pregap before track 1, recovered from
// the track 1 entry. It is where a hidden track would live.
func (t *TOC) TimeOffset() uint64 {
	d, ok := t.Find(1)
	if !ok {
		return 0
	}
	s := d.PSector()
	if s < disc.PregapSectors {
		return 0
	}
	return s - disc.PregapSectors
}

// Sessions returns the session numbers present in the TOC in order.
func (t *TOC) Sessions() []uint8 {
	var sessions []uint8
	seen := map[uint8]bool{}
	for _, d := range t.Descriptors {
		if !seen[d.Session] {
			seen[d.Session] = true
			sessions = append(sessions, d.Session)
		}
	}
	return sessions
}

// LeadOut returns the logical sector the lead-out of a session starts at.
func (t *TOC) LeadOut(session uint8) (uint64, bool) {
	for _, d := range t.Descriptors {
		if d.Session == session && d.ADR == 1 && d.Point == PointLeadOut {
			s := d.PSector()
			if s < disc.PregapSectors {
				return 0, true
			}
			return s - disc.PregapSectors, true
		}
	}
	return 0, false
}
