package cmd

import (
	"context"
	"fmt"

	"github.com/nsf/termbox-go"
	"golang.org/x/sync/errgroup"

	"github.com/rabidaudio/cdz-nuts/player"
)

const volumeStep = 5

var panelHelp = []string{
	"space play/pause   s stop   q quit",
	"←/→ track   [/] index   ,/. rewind/forward",
	"-/+ volume   r repeat   e de-emphasis",
}

// Controls is the part of player.Controller the front panel drives.
type Controls interface {
	TogglePlayback()
	Stop()
	NextTrack()
	PreviousTrack()
	NextIndex(changeTrack bool)
	PreviousIndex(changeTrack bool)
	FastForward()
	Rewind()
	SetVolume(v int)
	Volume() int
	SetRepeatMode(r player.RepeatMode)
	RepeatMode() player.RepeatMode
	SetDeEmphasis(enabled bool)
	Status() player.Status
}

// keyAction maps a key press to a command. quit is set for the keys that
// close the panel.
func keyAction(ev termbox.Event) (action func(Controls), quit bool) {
	switch ev.Key {
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return nil, true
	case termbox.KeySpace:
		return Controls.TogglePlayback, false
	case termbox.KeyArrowRight:
		return Controls.NextTrack, false
	case termbox.KeyArrowLeft:
		return Controls.PreviousTrack, false
	}
	switch ev.Ch {
	case 'q':
		return nil, true
	case 's':
		return Controls.Stop, false
	case ']':
		return func(c Controls) { c.NextIndex(true) }, false
	case '[':
		return func(c Controls) { c.PreviousIndex(true) }, false
	case '.':
		return Controls.FastForward, false
	case ',':
		return Controls.Rewind, false
	case '+', '=':
		return func(c Controls) { c.SetVolume(c.Volume() + volumeStep) }, false
	case '-':
		return func(c Controls) { c.SetVolume(c.Volume() - volumeStep) }, false
	case 'r':
		return func(c Controls) { c.SetRepeatMode(nextRepeat(c.RepeatMode())) }, false
	case 'e':
		return func(c Controls) { c.SetDeEmphasis(!c.Status().DeEmphasis) }, false
	}
	return nil, false
}

func nextRepeat(r player.RepeatMode) player.RepeatMode {
	switch r {
	case player.RepeatNone:
		return player.RepeatSingle
	case player.RepeatSingle:
		return player.RepeatAll
	default:
		return player.RepeatNone
	}
}

// statusLines renders the display of the front panel.
func statusLines(s player.Status) []string {
	if s.State == player.NoDisc {
		return []string{"NO DISC"}
	}
	p := s.Position
	emph := "   "
	if s.Emphasis {
		emph = "EMP"
	}
	flags := ""
	if p.Flags.Data {
		flags += " DATA"
	}
	if p.Flags.CopyAllowed {
		flags += " COPY"
	}
	return []string{
		fmt.Sprintf("%-8s TRACK %02d/%02d  INDEX %02d/%02d", s.State, p.Track, p.TotalTracks, p.Index, p.TotalIndexes),
		fmt.Sprintf("%s  DISC %s  %s%s", s.TrackTime, s.DiscTime, emph, flags),
		fmt.Sprintf("VOL %3d  REPEAT %-6s  DE-EMPH %v", s.Volume, s.Repeat, onOff(s.DeEmphasis)),
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func draw(s player.Status) error {
	if err := termbox.Clear(termbox.ColorDefault, termbox.ColorDefault); err != nil {
		return err
	}
	y := 0
	for i, line := range statusLines(s) {
		fg := termbox.ColorDefault
		if i == 0 {
			fg = termbox.ColorGreen | termbox.AttrBold
		}
		drawLine(0, y, line, fg)
		y++
	}
	y++
	for _, line := range panelHelp {
		drawLine(0, y, line, termbox.ColorBlue)
		y++
	}
	return termbox.Flush()
}

func drawLine(x, y int, s string, fg termbox.Attribute) {
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, termbox.ColorDefault)
		x++
	}
}

// runPanel shows the front panel until the user quits or ctx ends.
func runPanel(ctx context.Context, c *player.Controller) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer termbox.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	updates := make(chan player.Status, 1)
	// offer keeps only the newest status queued
	offer := func(s player.Status) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}
	unsubscribe := c.Subscribe(offer)
	defer unsubscribe()

	// closed once the event loop no longer polls
	quit := make(chan struct{})

	g.Go(func() error {
		defer cancel()
		defer close(quit)
		for ctx.Err() == nil {
			ev := termbox.PollEvent()
			switch ev.Type {
			case termbox.EventInterrupt:
				return nil
			case termbox.EventError:
				return ev.Err
			case termbox.EventResize:
				offer(c.Status())
			case termbox.EventKey:
				action, done := keyAction(ev)
				if done {
					return nil
				}
				if action != nil {
					action(c)
				}
			}
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			select {
			case <-quit:
			default:
				// Interrupt blocks until the event loop polls again
				go termbox.Interrupt()
			}
		}()
		if err := draw(c.Status()); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-updates:
				if err := draw(s); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}
