// Package stream turns the position of a loaded disc into a stream of PCM
// bytes for an audio sink.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/deemph"
	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/position"
)

// Provider is an io.Reader over the audio at the current position. Every
// Read fills the whole buffer and advances the position by the bytes it
// returned. Reads that cannot be served in time return silence, so Read
// never fails and never blocks for much longer than the fetch timeout.
type Provider struct {
	model *position.Model
	img   disc.Image

	timeout time.Duration
	retries int
	margin  int
	logger  *log.Logger
	policy  disc.DataTrackPolicy
	onEnd   func()

	// fetchMu serializes calls into the image backend
	fetchMu sync.Mutex

	mu          sync.Mutex
	offset      int // bytes of the current sector already returned
	repeat      RepeatMode
	deemphasis  bool
	stage       *deemph.Stage
	filterTrack int // track the filter history belongs to
	ended       bool
}

// New creates a provider reading img at the position held by model.
func New(model *position.Model, img disc.Image, opts ...Option) *Provider {
	p := &Provider{
		model:       model,
		img:         img,
		timeout:     DefaultTimeout,
		retries:     DefaultRetries,
		margin:      DefaultMargin,
		logger:      log.Default(),
		policy:      model.Options().DataTracks,
		deemphasis:  true,
		stage:       deemph.NewStage(),
		filterTrack: -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetRepeat changes the repeat mode for the following reads.
func (p *Provider) SetRepeat(r RepeatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeat = r
}

// Repeat returns the current repeat mode.
func (p *Provider) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

// SetDeEmphasis enables or disables the de-emphasis filter for tracks
// flagged with pre-emphasis.
func (p *Provider) SetDeEmphasis(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if enabled != p.deemphasis {
		p.stage.Reset()
	}
	p.deemphasis = enabled
}

// Emphasis reports whether the filter is applied to the current track.
func (p *Provider) Emphasis() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deemphasis && p.model.Flags().Emphasis
}

// Reset restarts streaming at the start of the current sector. Call it after
// moving the position, including after the end of the disc was reported.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = 0
	p.ended = false
	p.stage.Reset()
	p.filterTrack = -1
}

// Read fills b with audio. It always returns len(b), nil.
//
// With RepeatSingle a read never crosses the end of the current track: the
// bytes past it come from the start of the same track. Once the end of the
// disc has been reached with RepeatNone, reads return silence until Reset.
func (p *Provider) Read(b []byte) (int, error) {
	n := len(b)
	if n == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	for filled := 0; filled < n; {
		track, ok := p.model.CurrentTrack()
		if p.ended || !ok || track.BytesPerSector <= 0 {
			clear(b[filled:])
			break
		}
		bps := track.BytesPerSector
		seg := n - filled
		if p.repeat == RepeatSingle {
			if at := p.model.Snapshot().Sector; at < track.End {
				seg = min(seg, int(track.End-at)*bps-p.offset)
			}
		}
		if !p.readSegment(ctx, b[filled:filled+seg], bps) {
			clear(b[filled:])
			break
		}
		filled += seg
	}
	return n, nil
}

// readSegment fills b from the current position and advances past it. It
// reports false when the sectors could not be fetched.
func (p *Provider) readSegment(ctx context.Context, b []byte, bps int) bool {
	n := len(b)
	buf, start, err := p.fetch(ctx, n, bps)
	if err != nil {
		p.logger.Debug("sector fetch failed, returning silence", "err", err)
		return false
	}
	if len(buf)-p.offset < n {
		p.logger.Debug("short sector buffer, returning silence", "have", len(buf)-p.offset, "want", n)
		return false
	}
	p.blankUnplayable(buf, start, bps)
	copy(b, buf[p.offset:p.offset+n])

	state := p.model.Snapshot()
	if p.deemphasis && state.Flags.Emphasis {
		if p.filterTrack != state.Track {
			p.stage.Reset()
			p.filterTrack = state.Track
		}
		p.stage.Process(b)
	}

	p.advance(n, bps)
	return true
}

// fetch reads enough sectors from the current position to serve n bytes,
// padding with silence past the end of the disc. Failed reads are retried
// from the start of the current track until the attempts or ctx run out.
func (p *Provider) fetch(ctx context.Context, n, bps int) (buf []byte, start uint64, err error) {
	for attempt := range p.retries {
		if attempt > 0 {
			p.model.ReloadTrack()
			p.offset = 0
		}
		start = p.model.Snapshot().Sector
		total := p.model.TotalSectors()

		want := uint64((p.offset+n+bps-1)/bps + p.margin)
		var count, padding uint64
		switch {
		case start >= total:
			padding = want
		case start+want > total:
			count = total - start
			padding = want - count
		default:
			count = want
		}

		var data []byte
		if count > 0 {
			data, err = p.read(ctx, start, uint32(count))
		}
		if err == nil {
			if padding > 0 {
				data = append(data, make([]byte, int(padding)*bps)...)
			}
			return data, start, nil
		}
		if ctx.Err() != nil {
			return nil, start, fmt.Errorf("fetch at sector %d: %w", start, ctx.Err())
		}
		p.logger.Debug("sector read failed", "sector", start, "attempt", attempt+1, "err", err)
	}
	return nil, start, fmt.Errorf("fetch at sector %d: %d attempts failed: %w", start, p.retries, err)
}

type readResult struct {
	data []byte
	err  error
}

// read performs one backend read. If ctx expires first the read is
// abandoned and its result dropped when it eventually arrives.
func (p *Provider) read(ctx context.Context, start uint64, count uint32) ([]byte, error) {
	done := make(chan readResult, 1)
	go func() {
		var r readResult
		defer func() {
			if v := recover(); v != nil {
				r = readResult{err: fmt.Errorf("backend panic: %v", v)}
			}
			done <- r
		}()
		p.fetchMu.Lock()
		defer p.fetchMu.Unlock()
		if err := ctx.Err(); err != nil {
			r.err = err
			return
		}
		r.data, r.err = p.img.ReadSectors(start, count)
	}()

	select {
	case r := <-done:
		if r.err == nil && len(r.data) == 0 {
			return nil, errors.New("backend returned no data")
		}
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// blankUnplayable silences sectors of data tracks unless they are played
// as audio.
func (p *Provider) blankUnplayable(buf []byte, start uint64, bps int) {
	if p.policy == disc.DataTracksPlay {
		return
	}
	tracks := p.model.Tracks()
	for i := 0; (i+1)*bps <= len(buf); i++ {
		sector := start + uint64(i)
		for _, t := range tracks {
			if t.Contains(sector) {
				if !t.IsAudio() {
					clear(buf[i*bps : (i+1)*bps])
				}
				break
			}
		}
	}
}

// advance accounts for n returned bytes, moving the position one sector for
// every full sector consumed.
func (p *Provider) advance(n, bps int) {
	p.offset += n
	for p.offset >= bps {
		p.offset -= bps
		before := p.model.Snapshot().Track
		wrapped := p.model.Advance()
		switch p.repeat {
		case RepeatNone:
			if wrapped {
				p.offset = 0
				p.ended = true
				if p.onEnd != nil {
					go p.onEnd()
				}
				return
			}
		case RepeatSingle:
			if p.model.Snapshot().Track != before {
				p.model.SetTrack(before)
			}
		}
	}
}
