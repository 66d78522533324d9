package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/drive"
	"github.com/rabidaudio/cdz-nuts/memimage"
	"github.com/rabidaudio/cdz-nuts/wavdisc"
)

// DemoDisc names the generated tone disc.
const DemoDisc = "demo"

type sourceKind int

const (
	sourceDemo sourceKind = iota
	sourceWAV
	sourceDrive
)

// classify decides which backend opens path. Anything that is not the demo
// disc, a directory or a .wav file is taken to be a drive device; an empty
// path selects the default drive.
func classify(path string) sourceKind {
	if path == DemoDisc {
		return sourceDemo
	}
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		return sourceWAV
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return sourceWAV
	}
	return sourceDrive
}

// opener returns a disc.Opener that dispatches on classify. Drives are
// wrapped in a read-ahead buffer of readAhead unless it is zero.
func opener(l *log.Logger, readAhead time.Duration) disc.Opener {
	return func(path string) (disc.Image, error) {
		switch classify(path) {
		case sourceDemo:
			l.Debug("opening demo disc")
			return memimage.ToneDisc(5, 30), nil
		case sourceWAV:
			l.Debug("opening wav disc", "path", path)
			return wavdisc.Open(path)
		default:
			l.Debug("opening drive", "device", path)
			img, err := drive.OpenWithLogger(path, l)
			if err != nil || readAhead <= 0 {
				return img, err
			}
			return drive.NewReadAhead(img, readAhead, l), nil
		}
	}
}

func sourceArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
