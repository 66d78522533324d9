package player

import (
	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/stream"
)

// Option configures a Controller.
type Option func(*Controller)

// WithOpener sets how Load opens a path.
func WithOpener(open disc.Opener) Option {
	return func(c *Controller) {
		c.opener = open
	}
}

func WithDiscOptions(opts disc.Options) Option {
	return func(c *Controller) {
		c.discOpts = opts
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStreamOptions passes options to the stream of every loaded disc.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *Controller) {
		c.streamOpts = append(c.streamOpts, opts...)
	}
}

func WithRepeatMode(r RepeatMode) Option {
	return func(c *Controller) {
		c.repeat = r
	}
}

func WithVolume(v int) Option {
	return func(c *Controller) {
		c.volume = clampVolume(v)
	}
}

func WithDeEmphasis(enabled bool) Option {
	return func(c *Controller) {
		c.deemphasis = enabled
	}
}
