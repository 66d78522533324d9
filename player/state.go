package player

import (
	"io"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/position"
	"github.com/rabidaudio/cdz-nuts/stream"
)

// State is the transport state of the player.
type State int

const (
	NoDisc State = iota
	Stopped
	Paused
	Playing
)

func (s State) String() string {
	switch s {
	case NoDisc:
		return "no disc"
	case Stopped:
		return "stopped"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// RepeatMode decides what happens at the end of a track or the disc.
type RepeatMode = stream.RepeatMode

const (
	RepeatNone   = stream.RepeatNone
	RepeatSingle = stream.RepeatSingle
	RepeatAll    = stream.RepeatAll
)

// SinkState is what the audio output reports about itself.
type SinkState int

const (
	SinkStopped SinkState = iota
	SinkPaused
	SinkPlaying
)

func (s SinkState) String() string {
	switch s {
	case SinkStopped:
		return "stopped"
	case SinkPaused:
		return "paused"
	case SinkPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Sink is an audio output that pulls PCM from a reader: 44.1kHz 16-bit
// little endian stereo.
type Sink interface {
	// Attach sets the reader audio is pulled from. A nil reader detaches
	// the current one. The sink starts out stopped.
	Attach(r io.Reader) error
	Play()
	Pause()
	Stop()
	// SetVolume sets the output volume in percent, 0 to 100.
	SetVolume(v int)
	State() SinkState
	Close() error
}

// Status is a snapshot of everything the player exposes.
type Status struct {
	State      State
	Output     SinkState
	Repeat     RepeatMode
	Volume     int
	DeEmphasis bool // the de-emphasis filter is enabled
	Emphasis   bool // the filter is being applied to the current track
	Position   position.State
	DiscTime   disc.MSF // time since the start of the disc
	TrackTime  disc.MSF // time since the start of the current track
}
