package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rabidaudio/cdz-nuts/disc"
	"github.com/rabidaudio/cdz-nuts/toc"
)

var tocRaw bool

var tocCmd = &cobra.Command{
	Use:   "toc [disc]",
	Short: "Print the tracks and table of contents of a disc",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := flags.discOptions()
		if err != nil {
			return err
		}
		img, err := opener(logger, flags.readAhead)(sourceArg(args))
		if err != nil {
			return err
		}
		defer img.Close()

		contents, err := toc.Resolve(img, opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printTracks(out, img.Tracks(), contents)
		if tocRaw {
			fmt.Fprintln(out)
			printDescriptors(out, contents)
		}
		return nil
	},
}

func printTracks(w io.Writer, tracks []disc.Track, contents *toc.TOC) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tSESSION\tTYPE\tSTART\tLENGTH\tINDEXES\tFLAGS")
	for _, t := range tracks {
		f, ok := contents.Flags(t.Sequence)
		if !ok {
			f = toc.DefaultFlags(t)
		}
		idx := make([]string, 0, len(t.Indexes))
		for _, k := range t.IndexNumbers() {
			idx = append(idx, fmt.Sprint(k))
		}
		fmt.Fprintf(tw, "%02d\t%d\t%v\t%v\t%v\t%v\t%v\n",
			t.Sequence, t.Session, t.Type,
			disc.MSFFromSector(t.Start+disc.PregapSectors),
			disc.MSFFromSector(t.Length()),
			strings.Join(idx, ","), flagString(f))
	}
	fmt.Fprintf(tw, "\ntrack 1 offset\t%v\n", disc.MSFFromSector(contents.TimeOffset()))
	tw.Flush()
}

func flagString(f toc.Flags) string {
	var s []string
	if f.Data {
		s = append(s, "data")
	}
	if f.Emphasis {
		s = append(s, "emphasis")
	}
	if f.CopyAllowed {
		s = append(s, "copy")
	}
	if f.QuadChannel {
		s = append(s, "4ch")
	}
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ",")
}

func printDescriptors(w io.Writer, contents *toc.TOC) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "sessions %d-%d\n", contents.FirstSession, contents.LastSession)
	fmt.Fprintln(tw, "SES\tADR\tCTL\tTNO\tPOINT\tMSF\tPMSF")
	for _, d := range contents.Descriptors {
		fmt.Fprintf(tw, "%d\t%d\t%x\t%d\t%02X\t%02d:%02d:%02d\t%02d:%02d:%02d\n",
			d.Session, d.ADR, uint8(d.Control), d.TNO, d.Point,
			d.Min, d.Sec, d.Frame, d.PMin, d.PSec, d.PFrame)
	}
	tw.Flush()
}

func init() {
	tocCmd.Flags().BoolVar(&tocRaw, "raw", false, "also print the raw TOC descriptors")
	rootCmd.AddCommand(tocCmd)
}
