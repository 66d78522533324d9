// Package cmd implements the cdz-nuts command line.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/player"
	"github.com/rabidaudio/cdz-nuts/stream"
)

type rootFlags struct {
	generateTOC      bool
	hiddenTracks     bool
	dataTracks       string
	firstSessionOnly bool
	repeat           string
	volume           int
	noDeEmphasis     bool
	verbose          bool
	logFile          string
	readAhead        time.Duration
}

var flags rootFlags

// logger is configured by the root command before any subcommand runs.
var logger = log.Default()

var logCloser io.Closer

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cdz-nuts",
	Short: "Compact disc audio player",
	Long: `cdz-nuts plays Red Book audio discs.

A disc is a CD drive device, a WAV file, a directory of WAV files or
"demo" for a generated test disc.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, closer, err := newLogger(flags, os.Stderr)
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		log.SetDefault(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.generateTOC, "generate-toc", true, "synthesize a table of contents when the disc has none")
	pf.BoolVar(&flags.hiddenTracks, "hidden-tracks", false, "allow playing audio hidden in the track 1 pregap")
	pf.StringVar(&flags.dataTracks, "data-tracks", "skip", "data track handling: skip, blank or play")
	pf.BoolVar(&flags.firstSessionOnly, "first-session-only", false, "ignore sessions after the first")
	pf.StringVar(&flags.repeat, "repeat", "none", "repeat mode: none, single or all")
	pf.IntVar(&flags.volume, "volume", 100, "initial volume, 0 to 100")
	pf.BoolVar(&flags.noDeEmphasis, "no-deemphasis", false, "never apply the de-emphasis filter")
	pf.DurationVar(&flags.readAhead, "read-ahead", 2*time.Second, "audio to buffer ahead of playback when reading a drive, 0 to disable")
	pf.BoolVarP(&flags.verbose, "verbose", "V", false, "enable debug logging")
	pf.StringVar(&flags.logFile, "log-file", "", "write logs to this file instead of stderr")
}

func newLogger(f rootFlags, stderr io.Writer) (*log.Logger, io.Closer, error) {
	var w io.Writer = stderr
	var closer io.Closer
	if f.logFile != "" {
		lf, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = lf, lf
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "cdz-nuts",
	})
	if f.verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l, closer, nil
}

func (f rootFlags) discOptions() (disc.Options, error) {
	opts := disc.DefaultOptions()
	policy, err := disc.ParseDataTrackPolicy(f.dataTracks)
	if err != nil {
		return opts, err
	}
	opts.GenerateMissingTOC = f.generateTOC
	opts.LoadHiddenTracks = f.hiddenTracks
	opts.DataTracks = policy
	if f.firstSessionOnly {
		opts.Sessions = disc.FirstSessionOnly
	}
	return opts, nil
}

// playerOptions builds the controller configuration from the flags.
func (f rootFlags) playerOptions(l *log.Logger) ([]player.Option, error) {
	opts, err := f.discOptions()
	if err != nil {
		return nil, err
	}
	repeat, ok := stream.ParseRepeatMode(f.repeat)
	if !ok {
		return nil, fmt.Errorf("unknown repeat mode %q", f.repeat)
	}
	return []player.Option{
		player.WithDiscOptions(opts),
		player.WithLogger(l),
		player.WithOpener(opener(l, f.readAhead)),
		player.WithRepeatMode(repeat),
		player.WithVolume(f.volume),
		player.WithDeEmphasis(!f.noDeEmphasis),
	}, nil
}
