package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nsf/termbox-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/memimage"
	"github.com/rabidaudio/cdz-nuts/player"
	"github.com/rabidaudio/cdz-nuts/position"
	"github.com/rabidaudio/cdz-nuts/toc"
)

func TestDiscOptions(t *testing.T) {
	f := rootFlags{generateTOC: true, dataTracks: "blank", firstSessionOnly: true, hiddenTracks: true}
	opts, err := f.discOptions()
	require.NoError(t, err)
	assert.Equal(t, disc.Options{
		GenerateMissingTOC: true,
		LoadHiddenTracks:   true,
		DataTracks:         disc.DataTracksBlank,
		Sessions:           disc.FirstSessionOnly,
	}, opts)

	f.dataTracks = "burn"
	_, err = f.discOptions()
	assert.Error(t, err)
}

func TestPlayerOptions(t *testing.T) {
	f := rootFlags{dataTracks: "skip", repeat: "all", volume: 40}
	opts, err := f.playerOptions(log.New(io.Discard))
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	f.repeat = "sometimes"
	_, err = f.playerOptions(log.New(io.Discard))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := newLogger(rootFlags{}, &buf)
	require.NoError(t, err)
	assert.Nil(t, closer)
	l.Debug("hidden")
	l.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	path := filepath.Join(t.TempDir(), "cdz.log")
	l, closer, err = newLogger(rootFlags{verbose: true, logFile: path}, &buf)
	require.NoError(t, err)
	require.NotNil(t, closer)
	l.Debug("to file")
	require.NoError(t, closer.Close())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "to file")

	_, _, err = newLogger(rootFlags{logFile: filepath.Join(t.TempDir(), "missing", "x.log")}, &buf)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, sourceDemo, classify("demo"))
	assert.Equal(t, sourceWAV, classify("song.WAV"))
	assert.Equal(t, sourceWAV, classify(dir))
	assert.Equal(t, sourceDrive, classify("/dev/cdrom"))
	assert.Equal(t, sourceDrive, classify(""))

	assert.Equal(t, "demo", discName("demo"))
	assert.Equal(t, "album", discName("/music/album.wav"))
	assert.Equal(t, filepath.Base(dir), discName(dir))
	assert.Equal(t, "audiocd", discName("/dev/sr0"))
}

func TestOpenerDemo(t *testing.T) {
	img, err := opener(log.New(io.Discard), 0)(DemoDisc)
	require.NoError(t, err)
	defer img.Close()
	assert.Len(t, img.Tracks(), 5)
}

type recordingControls struct {
	Controls
	calls  []string
	volume int
	repeat player.RepeatMode
}

func (r *recordingControls) TogglePlayback()                   { r.calls = append(r.calls, "toggle") }
func (r *recordingControls) NextTrack()                        { r.calls = append(r.calls, "next") }
func (r *recordingControls) PreviousTrack()                    { r.calls = append(r.calls, "previous") }
func (r *recordingControls) NextIndex(bool)                    { r.calls = append(r.calls, "next index") }
func (r *recordingControls) FastForward()                      { r.calls = append(r.calls, "forward") }
func (r *recordingControls) Volume() int                       { return r.volume }
func (r *recordingControls) SetVolume(v int)                   { r.volume = v }
func (r *recordingControls) RepeatMode() player.RepeatMode     { return r.repeat }
func (r *recordingControls) SetRepeatMode(m player.RepeatMode) { r.repeat = m }

func TestKeyAction(t *testing.T) {
	r := &recordingControls{volume: 50}
	press := func(ev termbox.Event) bool {
		action, quit := keyAction(ev)
		if action != nil {
			action(r)
		}
		return quit
	}

	assert.False(t, press(termbox.Event{Key: termbox.KeySpace}))
	assert.False(t, press(termbox.Event{Key: termbox.KeyArrowRight}))
	assert.False(t, press(termbox.Event{Key: termbox.KeyArrowLeft}))
	assert.False(t, press(termbox.Event{Ch: ']'}))
	assert.False(t, press(termbox.Event{Ch: '.'}))
	assert.Equal(t, []string{"toggle", "next", "previous", "next index", "forward"}, r.calls)

	press(termbox.Event{Ch: '+'})
	assert.Equal(t, 55, r.volume)
	press(termbox.Event{Ch: '-'})
	press(termbox.Event{Ch: '-'})
	assert.Equal(t, 45, r.volume)

	press(termbox.Event{Ch: 'r'})
	assert.Equal(t, player.RepeatSingle, r.repeat)
	press(termbox.Event{Ch: 'r'})
	press(termbox.Event{Ch: 'r'})
	assert.Equal(t, player.RepeatNone, r.repeat)

	assert.True(t, press(termbox.Event{Ch: 'q'}))
	assert.True(t, press(termbox.Event{Key: termbox.KeyEsc}))

	action, quit := keyAction(termbox.Event{Ch: 'z'})
	assert.Nil(t, action)
	assert.False(t, quit)
}

func TestStatusLines(t *testing.T) {
	assert.Equal(t, []string{"NO DISC"}, statusLines(player.Status{}))

	lines := statusLines(player.Status{
		State:      player.Playing,
		Repeat:     player.RepeatAll,
		Volume:     80,
		DeEmphasis: true,
		Emphasis:   true,
		Position: position.State{
			Track: 3, TotalTracks: 12, Index: 1, TotalIndexes: 2,
			Flags: toc.Flags{CopyAllowed: true},
		},
		DiscTime:  disc.MSFFromSector(75 * 90),
		TrackTime: disc.MSFFromSector(75*30 + 5),
	})
	require.Len(t, lines, 3)
	assert.Equal(t, "playing  TRACK 03/12  INDEX 01/02", lines[0])
	assert.Equal(t, "00:30:05  DISC 01:30:00  EMP COPY", lines[1])
	assert.Equal(t, "VOL  80  REPEAT all     DE-EMPH on", lines[2])
}

func TestPrintTracks(t *testing.T) {
	img := memimage.ToneDisc(2, 2)
	contents, err := toc.Generate(img)
	require.NoError(t, err)

	var buf bytes.Buffer
	printTracks(&buf, img.Tracks(), contents)
	out := buf.String()
	assert.Contains(t, out, "TRACK")
	assert.Contains(t, out, "01  ")
	assert.Contains(t, out, "00:04:00")
	assert.Contains(t, out, "audio")

	buf.Reset()
	printDescriptors(&buf, contents)
	assert.Contains(t, buf.String(), "A2")
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "-", flagString(toc.Flags{}))
	assert.Equal(t, "data,copy", flagString(toc.Flags{Data: true, CopyAllowed: true}))
}

func TestTocCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"toc", "--raw", "--log-file", filepath.Join(t.TempDir(), "log"), DemoDisc})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 5, strings.Count(out.String(), "audio"))
	assert.Contains(t, out.String(), "sessions 1-1")
}

type idleSink struct {
	mu    sync.Mutex
	state player.SinkState
}

func (s *idleSink) set(st player.SinkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *idleSink) Attach(io.Reader) error { s.set(player.SinkStopped); return nil }
func (s *idleSink) Play()                  { s.set(player.SinkPlaying) }
func (s *idleSink) Pause()                 { s.set(player.SinkPaused) }
func (s *idleSink) Stop()                  { s.set(player.SinkStopped) }
func (s *idleSink) SetVolume(int)          {}
func (s *idleSink) Close() error           { return nil }

func (s *idleSink) State() player.SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func TestWaitForEnd(t *testing.T) {
	c := player.New(&idleSink{}, player.WithLogger(log.New(io.Discard)))
	defer c.Close()
	require.NoError(t, c.LoadImage(memimage.ToneDisc(1, 1)))

	ended, cancel := waitForEnd(c)
	defer cancel()

	c.Play()
	c.Pause()
	select {
	case <-ended:
		t.Fatal("pause is not the end of the disc")
	case <-time.After(20 * time.Millisecond):
	}

	c.Play()
	c.Stop()
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("stop did not end playback")
	}
	// further changes are ignored
	c.Play()
	c.Stop()
}
