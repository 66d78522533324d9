package cmd

import (
	"io"
	"sync"
	"time"

	"github.com/caarlos0/ctrlc"
	"github.com/spf13/cobra"

	"github.com/rabidaudio/cdz-nuts/player"
	"github.com/rabidaudio/cdz-nuts/speaker"
)

var (
	playHeadless bool
	playBuffer   time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play [disc]",
	Short: "Play a disc on the default audio output",
	Long: `Play a disc on the default audio output.

With a terminal attached a front panel shows the position and takes
single-key commands. With --headless the disc plays through once (or
forever with --repeat all) and Ctrl-C stops it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := flags.playerOptions(logger)
		if err != nil {
			return err
		}
		sink, err := speaker.New(speaker.WithBuffer(playBuffer), speaker.WithLogger(logger))
		if err != nil {
			return err
		}
		c := player.New(sink, opts...)
		defer c.Close()

		if err := c.Load(sourceArg(args)); err != nil {
			return err
		}

		ctx := cmd.Context()
		if playHeadless {
			ended, unsubscribe := waitForEnd(c)
			defer unsubscribe()
			c.Play()
			return ctrlc.Default.Run(ctx, func() error {
				select {
				case <-ended:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}

		// the panel owns the terminal
		if flags.logFile == "" {
			logger.SetOutput(io.Discard)
		}
		c.Play()
		return runPanel(ctx, c)
	},
}

// waitForEnd returns a channel closed when c leaves the playing state on
// its own, which is the end of the disc.
func waitForEnd(c *player.Controller) (ended <-chan struct{}, cancel func()) {
	done := make(chan struct{})
	var mu sync.Mutex
	started, closed := false, false
	cancel = c.Subscribe(func(s player.Status) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case closed:
		case s.State == player.Playing:
			started = true
		case started && s.State != player.Paused:
			closed = true
			close(done)
		}
	})
	return done, cancel
}

func init() {
	playCmd.Flags().BoolVar(&playHeadless, "headless", false, "play without the front panel")
	playCmd.Flags().DurationVar(&playBuffer, "buffer", 100*time.Millisecond, "audio output buffer")
	rootCmd.AddCommand(playCmd)
}
