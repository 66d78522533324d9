// Package player drives disc playback: it loads a disc, owns the position
// and the stream feeding the audio sink, and implements the transport and
// navigation commands.
package player

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/position"
	"github.com/rabidaudio/cdz-nuts/stream"
	"github.com/rabidaudio/cdz-nuts/toc"
)

// SeekStep is how far FastForward and Rewind move, one second.
const SeekStep = disc.SectorsPerSecond

var ErrNoOpener = errors.New("player: no image opener configured")

// Controller is the top level player. Commands are safe to call from any
// goroutine; they are no-ops while no disc is loaded.
type Controller struct {
	sink       Sink
	opener     disc.Opener
	discOpts   disc.Options
	logger     *log.Logger
	streamOpts []stream.Option

	// cmdMu serializes commands. It is never held by the audio pull path.
	cmdMu sync.Mutex

	// mu guards the fields below and is never held while calling into the
	// position model or the sink.
	mu          sync.Mutex
	img         disc.Image
	contents    *toc.TOC
	model       *position.Model
	provider    *stream.Provider
	unsubscribe func()
	state       State
	repeat      RepeatMode
	volume      int
	deemphasis  bool
	subs        map[int]func(Status)
	nextID      int

	// changed coalesces position updates from the audio pull path so
	// subscribers never run on it.
	changed   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a controller playing into sink.
func New(sink Sink, opts ...Option) *Controller {
	c := &Controller{
		sink:       sink,
		discOpts:   disc.DefaultOptions(),
		logger:     log.Default(),
		volume:     100,
		deemphasis: true,
		subs:       map[int]func(Status){},
		changed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	sink.SetVolume(c.volume)
	go c.forward()
	return c
}

func (c *Controller) forward() {
	for {
		select {
		case <-c.changed:
			c.notify()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) positionChanged(position.State) {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Load opens the image at path and loads it. Any disc already loaded is
// ejected first.
func (c *Controller) Load(path string) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.eject()

	if c.opener == nil {
		return c.loadFailed(nil, ErrNoOpener)
	}
	img, err := c.opener(path)
	if err != nil {
		return c.loadFailed(nil, fmt.Errorf("player: open %v: %w", path, err))
	}
	return c.load(img)
}

// LoadImage loads an opened image. The controller takes ownership of img
// and closes it on eject or when loading fails. On failure the controller
// is left with no disc.
func (c *Controller) LoadImage(img disc.Image) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.eject()
	return c.load(img)
}

func (c *Controller) load(img disc.Image) error {
	contents, err := toc.Resolve(img, c.discOpts)
	if err != nil {
		return c.loadFailed(img, err)
	}
	model := position.New(c.discOpts, nil)
	if err := model.Load(img, contents); err != nil {
		return c.loadFailed(img, err)
	}

	c.mu.Lock()
	opts := append([]stream.Option{
		stream.WithLogger(c.logger),
		stream.WithRepeat(c.repeat),
		stream.WithDeEmphasis(c.deemphasis),
	}, c.streamOpts...)
	c.mu.Unlock()
	var provider *stream.Provider
	provider = stream.New(model, img, append(opts, stream.WithOnEnd(func() { c.discEnded(provider) }))...)

	if err := c.sink.Attach(provider); err != nil {
		return c.loadFailed(img, fmt.Errorf("player: attach stream: %w", err))
	}

	unsubscribe := model.Subscribe(c.positionChanged)
	c.mu.Lock()
	c.img = img
	c.contents = contents
	c.model = model
	c.provider = provider
	c.unsubscribe = unsubscribe
	c.state = Stopped
	c.mu.Unlock()

	c.logger.Info("disc loaded", "tracks", len(model.Tracks()), "sectors", model.TotalSectors())
	c.notify()
	return nil
}

func (c *Controller) loadFailed(img disc.Image, err error) error {
	c.logger.Error("unable to load disc", "err", err)
	if img != nil {
		if cerr := img.Close(); cerr != nil {
			c.logger.Debug("closing image", "err", cerr)
		}
	}
	c.notify()
	return err
}

// Initialized reports whether a disc is loaded.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model != nil
}

// TOC returns the table of contents of the loaded disc.
func (c *Controller) TOC() *toc.TOC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contents
}

// Tracks returns the tracks of the loaded disc.
func (c *Controller) Tracks() []disc.Track {
	c.mu.Lock()
	model := c.model
	c.mu.Unlock()
	if model == nil {
		return nil
	}
	return model.Tracks()
}

// Image returns the loaded disc image.
func (c *Controller) Image() disc.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img
}

// loaded returns the model and provider of the current disc, if any.
func (c *Controller) loaded() (*position.Model, *stream.Provider, State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model, c.provider, c.state, c.model != nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Play starts or resumes playback.
func (c *Controller) Play() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if _, _, state, ok := c.loaded(); !ok || state == Playing {
		return
	}
	c.sink.Play()
	c.setState(Playing)
	c.notify()
}

// Pause holds playback at the current position.
func (c *Controller) Pause() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if _, _, state, ok := c.loaded(); !ok || state != Playing {
		return
	}
	c.sink.Pause()
	c.setState(Paused)
	c.notify()
}

// TogglePlayback pauses while playing and plays otherwise.
func (c *Controller) TogglePlayback() {
	if c.Status().State == Playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// Stop halts playback and returns to the first playable track.
func (c *Controller) Stop() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	model, provider, _, ok := c.loaded()
	if !ok {
		return
	}
	c.sink.Stop()
	model.ToFirstTrack()
	provider.Reset()
	c.setState(Stopped)
	c.notify()
}

// discEnded is called by the stream when playback runs off the end of the
// disc without repeat.
func (c *Controller) discEnded(p *stream.Provider) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	model, provider, _, ok := c.loaded()
	if !ok || provider != p {
		return
	}
	c.logger.Debug("reached end of disc")
	c.sink.Stop()
	model.ToFirstTrack()
	provider.Reset()
	c.setState(Stopped)
	c.notify()
}

// Eject stops playback and unloads the disc.
func (c *Controller) Eject() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.eject() {
		c.notify()
	}
}

func (c *Controller) eject() bool {
	c.mu.Lock()
	img, model := c.img, c.model
	unsubscribe := c.unsubscribe
	c.img, c.contents, c.model, c.provider, c.unsubscribe = nil, nil, nil, nil, nil
	c.state = NoDisc
	c.mu.Unlock()
	if model == nil {
		return false
	}

	c.sink.Stop()
	if err := c.sink.Attach(nil); err != nil {
		c.logger.Debug("detaching stream", "err", err)
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	model.Unload()
	if err := img.Close(); err != nil {
		c.logger.Warn("closing disc image", "err", err)
	}
	c.logger.Info("disc ejected")
	return true
}

// navigate applies fn to the position with the sink paused around it.
func (c *Controller) navigate(fn func(m *position.Model)) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	model, provider, state, ok := c.loaded()
	if !ok {
		return
	}
	wasPlaying := state == Playing
	if wasPlaying {
		c.sink.Pause()
	}
	fn(model)
	provider.Reset()
	if wasPlaying {
		c.sink.Play()
	}
	c.notify()
}

func (c *Controller) NextTrack() {
	c.navigate(func(m *position.Model) {
		m.SetTrack(m.Snapshot().Track + 1)
	})
}

func (c *Controller) PreviousTrack() {
	c.navigate(func(m *position.Model) {
		m.SetTrack(m.Snapshot().Track - 1)
	})
}

// NextIndex moves to the next index of the current track. When there is none
// it moves to the next track if changeTrack is set and does nothing otherwise.
func (c *Controller) NextIndex(changeTrack bool) {
	c.navigate(func(m *position.Model) {
		s := m.Snapshot()
		t, ok := m.Track(s.Track)
		if !ok {
			return
		}
		for _, k := range t.IndexNumbers() {
			if _, valid := t.IndexStart(k); valid && k > s.Index {
				m.SetIndex(int(k))
				return
			}
		}
		if changeTrack {
			m.SetTrack(s.Track + 1)
		}
	})
}

// PreviousIndex moves to the previous index of the current track. When there
// is none it moves to the last index of the previous track if changeTrack is
// set and does nothing otherwise.
func (c *Controller) PreviousIndex(changeTrack bool) {
	c.navigate(func(m *position.Model) {
		s := m.Snapshot()
		t, ok := m.Track(s.Track)
		if !ok {
			return
		}
		if k, ok := lastValidIndex(t, int(s.Index)); ok {
			m.SetIndex(int(k))
			return
		}
		if !changeTrack {
			return
		}
		m.SetTrack(s.Track - 1)
		after := m.Snapshot()
		if after.Track == s.Track {
			return
		}
		if prev, ok := m.Track(after.Track); ok {
			if k, ok := lastValidIndex(prev, 0xFFFF+1); ok {
				m.SetIndex(int(k))
			}
		}
	})
}

// lastValidIndex returns the highest index below limit with a real start.
func lastValidIndex(t disc.Track, limit int) (uint16, bool) {
	keys := t.IndexNumbers()
	for i := len(keys) - 1; i >= 0; i-- {
		if _, valid := t.IndexStart(keys[i]); valid && int(keys[i]) < limit {
			return keys[i], true
		}
	}
	return 0, false
}

// FastForward moves one second forward, stopping at the last sector.
func (c *Controller) FastForward() {
	c.seekBy(SeekStep)
}

// Rewind moves one second back, stopping at the first sector.
func (c *Controller) Rewind() {
	c.seekBy(-SeekStep)
}

func (c *Controller) seekBy(delta int64) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	model, provider, _, ok := c.loaded()
	if !ok {
		return
	}
	total := int64(model.TotalSectors())
	target := int64(model.Snapshot().Sector) + delta
	target = min(max(target, 0), total-1)
	model.SetSector(uint64(target))
	provider.Reset()
	c.notify()
}

// Seek moves to an absolute sector. Sectors past the end of the disc are
// ignored.
func (c *Controller) Seek(sector uint64) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	model, provider, _, ok := c.loaded()
	if !ok || sector >= model.TotalSectors() {
		return
	}
	model.SetSector(sector)
	provider.Reset()
	c.notify()
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}

// SetVolume sets the volume in percent, clamped to 0 to 100.
func (c *Controller) SetVolume(v int) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	v = clampVolume(v)
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
	c.sink.SetVolume(v)
	c.notify()
}

func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Controller) SetRepeatMode(r RepeatMode) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.mu.Lock()
	c.repeat = r
	provider := c.provider
	c.mu.Unlock()
	if provider != nil {
		provider.SetRepeat(r)
	}
	c.notify()
}

func (c *Controller) RepeatMode() RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat
}

// SetDeEmphasis enables or disables de-emphasis of tracks flagged with
// pre-emphasis.
func (c *Controller) SetDeEmphasis(enabled bool) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.mu.Lock()
	c.deemphasis = enabled
	provider := c.provider
	c.mu.Unlock()
	if provider != nil {
		provider.SetDeEmphasis(enabled)
	}
	c.notify()
}

// Status returns a snapshot of the player.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		State:      c.state,
		Repeat:     c.repeat,
		Volume:     c.volume,
		DeEmphasis: c.deemphasis,
	}
	model, provider := c.model, c.provider
	c.mu.Unlock()

	s.Output = c.sink.State()
	if model == nil {
		return s
	}
	s.Position = model.Snapshot()
	s.Emphasis = provider.Emphasis()
	s.DiscTime = disc.MSFFromSector(s.Position.Sector)
	if t, ok := model.Track(s.Position.Track); ok && s.Position.Sector >= t.Start {
		s.TrackTime = disc.MSFFromSector(s.Position.Sector - t.Start)
	}
	return s
}

// Subscribe registers fn to be called with the new status after every
// change, including the position moving during playback. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(Status)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	if len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	s := c.Status()
	for _, fn := range subs {
		fn(s)
	}
}

// Close ejects the disc and releases the sink.
func (c *Controller) Close() error {
	c.Eject()
	c.closeOnce.Do(func() { close(c.done) })
	return c.sink.Close()
}
