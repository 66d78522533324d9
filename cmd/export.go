package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/ctrlc"
	"github.com/spf13/cobra"

	"github.com/rabidaudio/cdz-nuts/vfs"
)

var (
	exportName string
	exportSize int64
)

var exportCmd = &cobra.Command{
	Use:   "export <disc> <image>",
	Short: "Write the audio tracks of a disc to a FAT32 disk image",
	Long: `Write the audio tracks of a disc as WAV files to a new FAT32 disk
image, which can be copied to a USB stick with dd. The image is sized
to fit the disc unless --size is given. Data tracks are skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dst := args[0], args[1]
		img, err := opener(logger, flags.readAhead)(src)
		if err != nil {
			return err
		}
		defer img.Close()

		if _, err := os.Stat(dst); err == nil {
			return errors.New("refusing to overwrite " + dst)
		}

		size := exportSize
		if size <= 0 {
			size = vfs.SizeFor(img.Tracks())
		}
		name := exportName
		if name == "" {
			name = discName(src)
		}

		fsys, err := vfs.Create(dst, size, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		// LoadDisc keeps running after an interrupt until it sees ctx end
		finished := make(chan struct{})
		err = ctrlc.Default.Run(ctx, func() error {
			defer close(finished)
			return fsys.LoadDisc(ctx, name, img)
		})
		cancel()
		<-finished
		if cerr := fsys.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
			return err
		}
		logger.Info("export complete", "image", dst, "tracks", len(fsys.Files()), "size", size)
		return nil
	},
}

// discName derives a directory name from the source of a disc.
func discName(src string) string {
	switch classify(src) {
	case sourceDemo:
		return "demo"
	case sourceWAV:
		base := filepath.Base(src)
		return strings.TrimSuffix(base, filepath.Ext(base))
	default:
		return "audiocd"
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportName, "name", "", "directory name for the tracks (default derived from the disc)")
	exportCmd.Flags().Int64Var(&exportSize, "size", 0, "image size in bytes")
	rootCmd.AddCommand(exportCmd)
}
