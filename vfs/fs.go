// Package vfs exports the audio tracks of a disc as WAV files inside a
// FAT32 disk image, ready to be written to a USB stick for a car stereo.
package vfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rabidaudio/cdz-nuts/disc"
)

const DefaultSize = 64 * fat32.MB
const SECTOR_SIZE = 512

// wav header plus slack for the directory entries and FAT of each file
const perFileOverhead = 64 * 1024

// sectors copied per write
const chunkSectors = disc.SectorsPerSecond

// Filesystem is a FAT32 disk image holding one directory of WAV files per
// exported disc.
type Filesystem struct {
	fs      filesystem.FileSystem
	Path    string
	logger  *log.Logger
	name    string
	files   []string
	closefn func() error
}

// sanitizeName takes a file name and converts it to DOS format
// by uppercasing, limiting to ASCII letters, and triming to 8 chars
func sanitizeName(name string) string {
	// https://en.wikipedia.org/wiki/8.3_filename
	newName := make([]rune, 0, 8)
	for _, r := range strings.ToUpper(name) {
		if len(newName) == 8 {
			break
		}
		if r >= 'A' && r <= 'Z' {
			newName = append(newName, r)
		}
	}
	return string(newName)
}

func trackSizeBytes(t disc.Track) int64 {
	return int64(t.Length())*disc.BytesPerSector + 44
}

// SizeFor returns a disk size large enough to hold every audio track in
// tracks, never less than DefaultSize.
func SizeFor(tracks []disc.Track) int64 {
	var size int64
	for _, t := range tracks {
		if t.IsAudio() {
			size += trackSizeBytes(t) + perFileOverhead
		}
	}
	// FAT tables and reserved sectors
	size += size / 64
	size = (size + fat32.MB - 1) / fat32.MB * fat32.MB
	return max(size, DefaultSize)
}

// Create a new filesystem image of size bytes at path. An empty path backs
// the image with a temporary file which Close removes.
// Be sure to Close() the Filesystem after use.
func Create(path string, size int64, logger *log.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = log.Default()
	}
	var cleanup func() error
	if path == "" {
		tmpdir, err := os.MkdirTemp("", "cdznuts")
		if err != nil {
			return nil, err
		}
		path = filepath.Join(tmpdir, "disk.img")
		cleanup = func() error {
			return os.RemoveAll(tmpdir)
		}
	}
	fail := func(err error) (*Filesystem, error) {
		if cleanup != nil {
			_ = cleanup()
		} else {
			_ = os.Remove(path)
		}
		return nil, err
	}

	dsk, err := diskfs.Create(path, size, diskfs.SectorSizeDefault)
	if err != nil {
		return fail(err)
	}

	// create an MBR with one partition
	table := &mbr.Table{
		LogicalSectorSize:  SECTOR_SIZE,
		PhysicalSectorSize: SECTOR_SIZE,
		Partitions: []*mbr.Partition{
			{
				Bootable: false,
				Type:     mbr.Fat32LBA,
				Start:    2048,
				Size:     uint32(size/SECTOR_SIZE) - 2048,
			},
		},
	}
	if err = dsk.Partition(table); err != nil {
		return fail(fmt.Errorf("partition %v: %w", path, err))
	}
	fatfs, err := dsk.CreateFilesystem(disk.FilesystemSpec{
		Partition:   1,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: "CDZNUTS",
	})
	if err != nil {
		return fail(fmt.Errorf("format %v: %w", path, err))
	}

	closefn := func() error {
		if err := fatfs.Close(); err != nil {
			return err
		}
		if cleanup != nil {
			return cleanup()
		}
		return nil
	}

	return &Filesystem{
		Path:    path,
		fs:      fatfs,
		logger:  logger,
		closefn: closefn,
	}, nil
}

// Names are written in lower case so that each entry gets a long file
// name next to its 8.3 name. fat32 Remove only finds entries by long name.
func dirName(name string) string {
	sDirName := strings.ToLower(sanitizeName(name))
	if sDirName != "" {
		sDirName = "/" + sDirName
	}
	return sDirName
}

func trackPath(name string, t disc.Track) string {
	return fmt.Sprintf("%v/track%02d.wav", dirName(name), t.Sequence)
}

// LoadDisc writes every audio track of img as a 44.1kHz 16-bit stereo WAV
// file under a directory named after the disc. Data tracks are skipped.
// Only one disc may be loaded at a time.
func (f *Filesystem) LoadDisc(ctx context.Context, name string, img disc.Image) (err error) {
	if f.files != nil {
		return fmt.Errorf("current disc not ejected")
	}

	if d := dirName(name); d != "" {
		if err = f.fs.Mkdir(d); err != nil {
			return err
		}
	}
	f.name = name
	f.files = []string{}

	for _, t := range img.Tracks() {
		if !t.IsAudio() {
			f.logger.Debug("skipping data track", "track", t.Sequence)
			continue
		}
		fname := trackPath(name, t)
		if err = f.writeTrack(ctx, fname, img, t); err != nil {
			return fmt.Errorf("write track %v: %w", fname, err)
		}
		f.logger.Info("exported track", "track", t.Sequence, "file", fname, "sectors", t.Length())
	}
	return nil
}

func (f *Filesystem) writeTrack(ctx context.Context, fname string, img disc.Image, t disc.Track) error {
	file, err := f.fs.OpenFile(fname, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}
	f.files = append(f.files, fname)

	enc := wav.NewEncoder(file, disc.SampleRate, 16, disc.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: disc.Channels, SampleRate: disc.SampleRate},
		SourceBitDepth: 16,
	}

	for pos := t.Start; pos < t.End; {
		if err := ctx.Err(); err != nil {
			_ = enc.Close()
			_ = file.Close()
			return err
		}
		count := uint32(min(uint64(chunkSectors), t.End-pos))
		raw, err := img.ReadSectors(pos, count)
		if err != nil {
			_ = enc.Close()
			_ = file.Close()
			return fmt.Errorf("read sectors %d+%d: %w", pos, count, err)
		}
		buf.Data = toInts(buf.Data, raw, int(count)*disc.BytesPerSector)
		if err := enc.Write(buf); err != nil {
			_ = file.Close()
			return err
		}
		pos += uint64(count)
	}

	if err := enc.Close(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// toInts decodes little-endian 16-bit samples from the first n bytes of raw
// into dst, reusing its storage.
func toInts(dst []int, raw []byte, n int) []int {
	n = min(n, len(raw)) / disc.BytesPerSample
	dst = dst[:0]
	for i := range n {
		dst = append(dst, int(int16(binary.LittleEndian.Uint16(raw[i*2:]))))
	}
	return dst
}

// Files returns the paths of the exported track files.
func (f *Filesystem) Files() []string {
	return append([]string(nil), f.files...)
}

// Delete all files from the filesystem
func (f *Filesystem) Eject() error {
	if f.files == nil {
		return nil
	}
	for _, fname := range f.files {
		if err := f.fs.Remove(fname); err != nil {
			return err
		}
	}
	if d := dirName(f.name); d != "" {
		if err := f.fs.Remove(d); err != nil {
			return err
		}
	}
	f.files = nil
	f.name = ""
	return nil
}

// Close flushes the filesystem. A temporary backing file is removed; an
// image created at an explicit path is kept with its contents.
func (f *Filesystem) Close() error {
	return f.closefn()
}
