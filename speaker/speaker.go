// Package speaker plays a PCM stream on the default audio device.
package speaker

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	beepspeaker "github.com/faiface/beep/speaker"

	"github.com/rabidaudio/cdz-nuts/player"
)

// mixer is the part of the beep speaker the sink uses.
type mixer interface {
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

type deviceMixer struct{}

func (deviceMixer) Play(s ...beep.Streamer) { beepspeaker.Play(s...) }
func (deviceMixer) Clear()                  { beepspeaker.Clear() }
func (deviceMixer) Lock()                   { beepspeaker.Lock() }
func (deviceMixer) Unlock()                 { beepspeaker.Unlock() }

var (
	initOnce sync.Once
	initErr  error
)

// Sink is a player.Sink on the beep speaker. The speaker is shared by the
// process, so only one Sink should be in use at a time.
type Sink struct {
	mixer  mixer
	logger *log.Logger

	mu     sync.Mutex
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  int
	state  player.SinkState
}

var _ player.Sink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*options)

type options struct {
	buffer time.Duration
	logger *log.Logger
}

// WithBuffer sets the size of the device buffer. Larger buffers survive
// slower drives at the cost of latency.
func WithBuffer(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.buffer = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New opens the audio device.
func New(opts ...Option) (*Sink, error) {
	o := options{buffer: time.Second / 10, logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	initOnce.Do(func() {
		initErr = beepspeaker.Init(Format.SampleRate, Format.SampleRate.N(o.buffer))
	})
	if initErr != nil {
		return nil, initErr
	}
	o.logger.Debug("audio device ready", "rate", Format.SampleRate, "buffer", o.buffer)
	return newSink(deviceMixer{}, o.logger), nil
}

func newSink(m mixer, logger *log.Logger) *Sink {
	return &Sink{mixer: m, logger: logger, level: 100, state: player.SinkStopped}
}

// Attach replaces the stream being played. The sink starts out stopped.
func (s *Sink) Attach(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
	s.ctrl, s.volume = nil, nil
	s.state = player.SinkStopped
	if r == nil {
		return nil
	}

	s.ctrl = &beep.Ctrl{Streamer: newStreamer(r), Paused: true}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2}
	setLevel(s.volume, s.level)
	s.mixer.Play(s.volume)
	return nil
}

func (s *Sink) setPaused(paused bool, state player.SinkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return
	}
	s.mixer.Lock()
	s.ctrl.Paused = paused
	s.mixer.Unlock()
	s.state = state
}

func (s *Sink) Play() {
	s.setPaused(false, player.SinkPlaying)
}

func (s *Sink) Pause() {
	s.setPaused(true, player.SinkPaused)
}

func (s *Sink) Stop() {
	s.setPaused(true, player.SinkStopped)
}

// SetVolume sets the volume in percent. 0 mutes the output.
func (s *Sink) SetVolume(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = min(max(v, 0), 100)
	if s.volume == nil {
		return
	}
	s.mixer.Lock()
	setLevel(s.volume, s.level)
	s.mixer.Unlock()
}

// setLevel maps a percentage onto a base 2 volume: halving the percentage
// halves the amplitude.
func setLevel(v *effects.Volume, level int) {
	v.Silent = level == 0
	if level > 0 {
		v.Volume = math.Log2(float64(level) / 100)
	}
}

func (s *Sink) State() player.SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops playback. The device itself stays open for the process.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
	s.ctrl, s.volume = nil, nil
	s.state = player.SinkStopped
	return nil
}
