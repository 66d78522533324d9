// Package position keeps track of where playback is on a loaded disc.
//
// The current track, index and sector are never independently valid, so
// they only change through setters that cascade into each other: setting the
// sector derives the track and index that own it, and setting the track moves
// the index and sector to its start. Every public method leaves the model
// consistent and is a silent no-op when the disc is not loaded or the
// argument is out of range.
package position

import (
	"errors"
	"slices"
	"sync"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/toc"
)

// State is a snapshot of the position.
type State struct {
	Track        int       // current track number
	Index        uint16    // current index within the track
	Sector       uint64    // current absolute sector
	SectionStart int64     // start sector of the current index
	TotalIndexes int       // highest index number of the current track
	TotalTracks  int       // number of loaded tracks
	TimeOffset   uint64    // length of the pregap before track 1
	TotalTime    uint64    // length of the current track in sectors
	Flags        toc.Flags // control flags of the current track
}

// Model is the authoritative playback position. It is safe for concurrent use.
type Model struct {
	mu           sync.Mutex
	opts         disc.Options
	filter       TrackFilter
	customFilter bool

	contents     *toc.TOC
	tracks       []disc.Track
	totalSectors uint64
	positioned   bool
	state        State

	subs   map[int]func(State)
	nextID int
}

// New creates an unloaded model. A nil filter selects FilterFor(opts).
func New(opts disc.Options, filter TrackFilter) *Model {
	m := &Model{opts: opts, subs: map[int]func(State){}}
	m.setFilter(filter)
	return m
}

func (m *Model) setFilter(f TrackFilter) {
	m.customFilter = f != nil
	if f == nil {
		f = FilterFor(m.opts)
	}
	m.filter = f
}

// Load replaces the disc and moves to the first playable track. contents
// may be nil, in which case every track uses its default flags.
func (m *Model) Load(img disc.Image, contents *toc.TOC) error {
	if img == nil {
		return errors.New("position: no image")
	}
	tracks := slices.Clone(img.Tracks())
	disc.SortByStart(tracks)
	total := img.Sectors()
	if m.opts.Sessions == disc.FirstSessionOnly && len(tracks) > 0 {
		first := tracks[0].Session
		for _, t := range tracks {
			first = min(first, t.Session)
		}
		tracks = slices.DeleteFunc(tracks, func(t disc.Track) bool { return t.Session != first })
		total = 0
	}
	if len(tracks) == 0 {
		return errors.New("position: disc has no tracks")
	}
	for _, t := range tracks {
		total = max(total, t.End)
	}

	m.mu.Lock()
	m.contents = contents
	m.tracks = tracks
	m.totalSectors = total
	m.positioned = false
	m.state = State{TotalTracks: len(tracks)}
	if contents != nil {
		m.state.TimeOffset = contents.TimeOffset()
	}
	lo, hi := m.bounds()
	if !m.setTrack(lo, 1, true) {
		// no track carries the lowest allowed number, or the bounds exclude
		// every track as on a disc holding only a hidden track
		t := tracks[0]
		for _, c := range tracks {
			if c.Sequence >= lo && c.Sequence <= hi {
				t = c
				break
			}
		}
		m.commitTrack(t, true)
	}
	m.unlockAndNotify(true)
	return nil
}

// Unload forgets the disc.
func (m *Model) Unload() {
	m.mu.Lock()
	m.contents = nil
	m.tracks = nil
	m.totalSectors = 0
	m.positioned = false
	m.state = State{}
	m.unlockAndNotify(true)
}

// Loaded reports whether a disc is loaded.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded()
}

func (m *Model) loaded() bool {
	return len(m.tracks) > 0
}

// SetOptions replaces the disc options. Session handling applies from the
// next Load; hidden track and data track handling apply immediately.
func (m *Model) SetOptions(opts disc.Options) {
	m.mu.Lock()
	m.opts = opts
	if !m.customFilter {
		m.filter = FilterFor(opts)
	}
	changed := m.revalidate()
	m.unlockAndNotify(changed)
}

// SetFilter replaces the track filter. A nil filter selects the default
// filter for the current options.
func (m *Model) SetFilter(f TrackFilter) {
	m.mu.Lock()
	m.setFilter(f)
	changed := m.revalidate()
	m.unlockAndNotify(changed)
}

// revalidate moves off the current track if the options no longer allow it.
func (m *Model) revalidate() bool {
	if !m.loaded() {
		return false
	}
	t, ok := m.track(m.state.Track)
	lo, hi := m.bounds()
	if ok && m.state.Track >= lo && m.state.Track <= hi && m.filter(t, m.flagsFor(t)) {
		return false
	}
	return m.setTrack(m.state.Track, 1, true)
}

// Subscribe registers fn to be called with the new state after every
// change. The returned function removes the subscription.
func (m *Model) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// unlockAndNotify releases the lock taken by the caller and, if changed,
// hands the new state to subscribers outside of it.
func (m *Model) unlockAndNotify(changed bool) {
	if !changed {
		m.mu.Unlock()
		return
	}
	s := m.state
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// SetTrack moves to the start of track v. Out of range values are clamped
// and tracks rejected by the filter are skipped in the direction of travel.
func (m *Model) SetTrack(v int) {
	m.mu.Lock()
	dir := 1
	if v < m.state.Track {
		dir = -1
	}
	changed := m.setTrack(v, dir, true)
	m.unlockAndNotify(changed)
}

// SetIndex moves to index v of the current track. Values past the last
// index wrap to the first and values before the first wrap to the last.
func (m *Model) SetIndex(v int) {
	m.mu.Lock()
	changed := m.setIndex(v, true)
	m.unlockAndNotify(changed)
}

// SetSector moves to an absolute sector, deriving the track and index that
// own it.
func (m *Model) SetSector(v uint64) {
	m.mu.Lock()
	changed := m.setSector(v)
	m.unlockAndNotify(changed)
}

// Advance moves one sector forward. Moving past the last sector of the disc,
// or skipping forward past the last playable track, wraps to the first
// playable track and reports wrapped.
func (m *Model) Advance() (wrapped bool) {
	m.mu.Lock()
	if !m.loaded() {
		m.mu.Unlock()
		return false
	}
	next := m.state.Sector + 1
	var changed bool
	if next >= m.totalSectors {
		lo, _ := m.bounds()
		changed = m.setTrack(lo, 1, true)
		wrapped = true
	} else {
		changed = m.setSector(next)
		// the skip search went round past the last playable track
		wrapped = changed && m.state.Sector < next
	}
	m.unlockAndNotify(changed)
	return wrapped
}

// ReloadTrack moves back to the start of the current track.
func (m *Model) ReloadTrack() {
	m.mu.Lock()
	changed := m.loaded() && m.setTrack(m.state.Track, 1, true)
	m.unlockAndNotify(changed)
}

// ToFirstTrack moves to the start of the first playable track.
func (m *Model) ToFirstTrack() {
	m.mu.Lock()
	lo, _ := m.bounds()
	changed := m.loaded() && m.setTrack(lo, 1, true)
	m.unlockAndNotify(changed)
}

// bounds returns the lowest and highest track number navigation may use.
func (m *Model) bounds() (lo, hi int) {
	if !m.loaded() {
		return 0, -1
	}
	lo, hi = m.tracks[0].Sequence, m.tracks[0].Sequence
	for _, t := range m.tracks {
		lo = min(lo, t.Sequence)
		hi = max(hi, t.Sequence)
	}
	if !m.opts.LoadHiddenTracks {
		lo = max(lo, 1)
	}
	return lo, hi
}

func (m *Model) track(seq int) (disc.Track, bool) {
	for _, t := range m.tracks {
		if t.Sequence == seq {
			return t, true
		}
	}
	return disc.Track{}, false
}

// owner returns the track whose range holds sector: the one with the highest
// start not after it.
func (m *Model) owner(sector uint64) (disc.Track, bool) {
	for i := len(m.tracks) - 1; i >= 0; i-- {
		if m.tracks[i].Start <= sector {
			return m.tracks[i], true
		}
	}
	return disc.Track{}, false
}

func (m *Model) flagsFor(t disc.Track) toc.Flags {
	if m.contents != nil {
		if f, ok := m.contents.Flags(t.Sequence); ok {
			return f
		}
	}
	return toc.DefaultFlags(t)
}

// setTrack selects track v, searching in direction dir for a track the
// filter accepts. With moveSector the sector follows to the first valid
// index of the selected track. It reports whether anything was committed.
func (m *Model) setTrack(v, dir int, moveSector bool) bool {
	if !m.loaded() {
		return false
	}
	lo, hi := m.bounds()
	if lo > hi {
		return false
	}
	v = min(max(v, lo), hi)
	if _, ok := m.track(v); !ok {
		return false
	}

	start := v
	for {
		if t, ok := m.track(v); ok && m.filter(t, m.flagsFor(t)) {
			break
		}
		v += dir
		switch {
		case v > hi:
			v = lo
		case v < lo:
			v = hi
		}
		if v == start {
			if m.positioned {
				return false
			}
			// nothing is playable; settle on the requested track
			break
		}
	}

	t, _ := m.track(v)
	m.commitTrack(t, moveSector)
	return true
}

func (m *Model) commitTrack(t disc.Track, moveSector bool) {
	m.state.Track = t.Sequence
	m.state.Flags = m.flagsFor(t)
	m.commitIndex(t, t.FirstIndex())
	if moveSector {
		m.state.Sector = t.FirstSector()
	}
	m.positioned = true
}

func (m *Model) commitIndex(t disc.Track, idx uint16) {
	keys := t.IndexNumbers()
	m.state.Index = idx
	m.state.SectionStart = t.Indexes[idx]
	if len(keys) > 0 {
		m.state.TotalIndexes = int(keys[len(keys)-1])
	} else {
		m.state.TotalIndexes = 0
		m.state.SectionStart = int64(t.Start)
	}
	m.state.TotalTime = t.Length()
}

// setIndex selects index v of the current track, snapping values between
// existing index numbers up to the next one.
func (m *Model) setIndex(v int, moveSector bool) bool {
	if !m.loaded() {
		return false
	}
	t, ok := m.track(m.state.Track)
	if !ok {
		return false
	}
	keys := t.IndexNumbers()
	if len(keys) == 0 {
		return false
	}
	first, last := int(keys[0]), int(keys[len(keys)-1])
	var idx uint16
	switch {
	case v > last:
		idx = keys[0]
	case v < first:
		idx = keys[len(keys)-1]
	default:
		for _, k := range keys {
			if int(k) >= v {
				idx = k
				break
			}
		}
	}

	m.commitIndex(t, idx)
	if moveSector {
		if s, ok := t.IndexStart(idx); ok && s >= t.Start && s < m.ownedEnd(t) {
			m.state.Sector = s
		}
	}
	return true
}

// ownedEnd is the sector after the last one owned by t.
func (m *Model) ownedEnd(t disc.Track) uint64 {
	for _, o := range m.tracks {
		if o.Start > t.Start {
			return o.Start
		}
	}
	return m.totalSectors
}

func (m *Model) setSector(v uint64) bool {
	if !m.loaded() || v >= m.totalSectors {
		return false
	}
	owner, ok := m.owner(v)
	if !ok {
		return false
	}
	if owner.Sequence != m.state.Track || !m.positioned {
		dir := 1
		if owner.Sequence < m.state.Track {
			dir = -1
		}
		if !m.setTrack(owner.Sequence, dir, false) {
			lo, hi := m.bounds()
			if owner.Sequence < lo || owner.Sequence > hi {
				return false
			}
			// nothing is playable; keep streaming through the disc in order
			m.commitTrack(owner, false)
		}
		if m.state.Track != owner.Sequence {
			// the owning track is not playable; land at the start of the
			// track the search settled on
			t, _ := m.track(m.state.Track)
			v = t.FirstSector()
			owner = t
		}
	}

	keys := owner.IndexNumbers()
	if len(keys) > 0 {
		idx := keys[0]
		for i := len(keys) - 1; i >= 0; i-- {
			if s, ok := owner.IndexStart(keys[i]); ok && s <= v {
				idx = keys[i]
				break
			}
		}
		m.commitIndex(owner, idx)
	}
	m.state.Sector = v
	return true
}

// Snapshot returns the current state.
func (m *Model) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Track returns the loaded track with sequence number n.
func (m *Model) Track(n int) (disc.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track(n)
}

// CurrentTrack returns the track the position is in.
func (m *Model) CurrentTrack() (disc.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded() {
		return disc.Track{}, false
	}
	return m.track(m.state.Track)
}

// Tracks returns the loaded tracks ordered by start sector.
func (m *Model) Tracks() []disc.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tracks)
}

// TotalSectors returns the number of addressable sectors of the loaded disc.
func (m *Model) TotalSectors() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSectors
}

// FirstTrack returns the lowest track number navigation may select.
func (m *Model) FirstTrack() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, _ := m.bounds()
	return lo
}

// LastTrack returns the highest track number.
func (m *Model) LastTrack() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, hi := m.bounds()
	return hi
}

// Flags returns the control flags of the current track.
func (m *Model) Flags() toc.Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Flags
}

// Options returns the disc options in effect.
func (m *Model) Options() disc.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}
