package stream

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// RepeatMode decides what happens at the end of a track.
type RepeatMode int

const (
	RepeatNone   RepeatMode = iota // stop at the end of the disc
	RepeatSingle                   // loop the current track
	RepeatAll                      // loop the whole disc
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatNone:
		return "none"
	case RepeatSingle:
		return "single"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses the String form of a RepeatMode.
func ParseRepeatMode(s string) (RepeatMode, bool) {
	for _, r := range []RepeatMode{RepeatNone, RepeatSingle, RepeatAll} {
		if r.String() == s {
			return r, true
		}
	}
	return RepeatNone, false
}

const (
	DefaultTimeout = 100 * time.Millisecond
	DefaultRetries = 4
	DefaultMargin  = 4
)

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout bounds how long one Read waits on the image backend.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetries sets how many times a failed sector fetch is attempted.
func WithRetries(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.retries = n
		}
	}
}

// WithMargin sets how many sectors beyond the requested byte count are
// fetched to cover the offset into the current sector.
func WithMargin(sectors int) Option {
	return func(p *Provider) {
		if sectors >= 1 {
			p.margin = sectors
		}
	}
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRepeat sets the initial repeat mode.
func WithRepeat(r RepeatMode) Option {
	return func(p *Provider) {
		p.repeat = r
	}
}

// WithOnEnd sets the function called when playback runs off the end of the
// disc with RepeatNone. It is called on its own goroutine.
func WithOnEnd(fn func()) Option {
	return func(p *Provider) {
		p.onEnd = fn
	}
}

// WithDataTrackPolicy overrides the data track policy of the position model.
func WithDataTrackPolicy(policy disc.DataTrackPolicy) Option {
	return func(p *Provider) {
		p.policy = policy
	}
}

// WithDeEmphasis sets whether de-emphasis is applied to tracks flagged
// with pre-emphasis. It is enabled by default.
func WithDeEmphasis(enabled bool) Option {
	return func(p *Provider) {
		p.deemphasis = enabled
	}
}
