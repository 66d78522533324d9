package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rabidaudio/cdz-nuts/player"
	"github.com/rabidaudio/cdz-nuts/remote"
	"github.com/rabidaudio/cdz-nuts/speaker"
)

var (
	serveAddr    string
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve [disc]",
	Short: "Serve an HTTP remote control for the player",
	Long: `Serve an HTTP remote control for the player under /api/v1.

The disc given as an argument is loaded at startup; others can be loaded
with POST /api/v1/load.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := flags.playerOptions(logger)
		if err != nil {
			return err
		}
		sink, err := speaker.New(speaker.WithLogger(logger))
		if err != nil {
			return err
		}
		c := player.New(sink, opts...)
		defer c.Close()

		if len(args) > 0 {
			if err := c.Load(args[0]); err != nil {
				return err
			}
		}

		if !flags.verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           remote.NewRouter(c, logger, serveOrigins...),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("remote listening", "addr", serveAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("remote shutting down")
			return srv.Shutdown(shutdown)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "cors-origin", nil, "browser origins allowed to call the API")
	rootCmd.AddCommand(serveCmd)
}
