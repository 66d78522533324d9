package drive

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rabidaudio/cdz-nuts/disc"
)

// sectors fetched from the backing image per read
const readAheadChunk = 25

// ReadAhead wraps an image whose reads are slow to start, like a drive
// that has to spin up or seek, and keeps sectors past the last read
// buffered. Sequential reads are served from memory. A read outside the
// buffered window drops the buffer and restarts filling from there.
type ReadAhead struct {
	disc.Image
	hwm    uint64
	logger *log.Logger

	readMu sync.Mutex // serializes reads of the backing image

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte // sectors from bufStart up to next
	bufStart uint64
	next     uint64 // next sector the filler reads
	want     uint64 // end of the furthest pending read
	gen      int    // bumped on every reposition
	err      error
	closed   bool
	done     chan struct{}
}

// NewReadAhead starts buffering img from its first sector, keeping up to
// hwm of audio ahead of the reader.
func NewReadAhead(img disc.Image, hwm time.Duration, logger *log.Logger) *ReadAhead {
	if logger == nil {
		logger = log.Default()
	}
	r := &ReadAhead{
		Image:  img,
		hwm:    uint64(max(hwm.Seconds()*disc.SectorsPerSecond, readAheadChunk)),
		logger: logger,
		done:   make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.fill()
	return r
}

// needsFill reports whether the filler has work. Callers hold mu.
func (r *ReadAhead) needsFill() bool {
	if r.closed || r.err != nil || r.next >= r.Image.Sectors() {
		return false
	}
	return r.next < r.bufStart+r.hwm || r.next < r.want
}

func (r *ReadAhead) fill() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for !r.closed && !r.needsFill() {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		gen, at := r.gen, r.next
		count := uint32(min(readAheadChunk, r.Image.Sectors()-at))
		r.mu.Unlock()

		r.readMu.Lock()
		data, err := r.Image.ReadSectors(at, count)
		r.readMu.Unlock()

		r.mu.Lock()
		if gen == r.gen {
			if err != nil {
				r.err = err
			} else {
				r.buf = append(r.buf, data...)
				r.next += uint64(count)
			}
			r.cond.Broadcast()
		}
		r.mu.Unlock()
	}
}

// reposition drops the buffer and restarts filling at sector. Callers hold mu.
func (r *ReadAhead) reposition(sector uint64) {
	r.gen++
	r.buf = r.buf[:0]
	r.bufStart, r.next, r.want = sector, sector, sector
	r.err = nil
	r.cond.Broadcast()
}

// ReadSectors blocks until the requested sectors are buffered.
func (r *ReadAhead) ReadSectors(start uint64, count uint32) ([]byte, error) {
	end := start + uint64(count)
	if end > r.Image.Sectors() {
		r.readMu.Lock()
		defer r.readMu.Unlock()
		return r.Image.ReadSectors(start, count)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, os.ErrClosed
	}
	if start < r.bufStart || start > r.next {
		r.logger.Debug("read-ahead miss", "sector", start, "buffered", r.bufStart, "next", r.next)
		r.reposition(start)
	}
	// forget what was read before start
	drop := (start - r.bufStart) * disc.BytesPerSector
	r.buf = r.buf[drop:]
	r.bufStart = start
	r.want = max(r.want, end)
	r.cond.Broadcast()

	for r.next < end && r.err == nil && !r.closed {
		r.cond.Wait()
	}
	switch {
	case r.closed:
		return nil, os.ErrClosed
	case r.next < end:
		err := r.err
		r.reposition(start)
		return nil, err
	}
	out := make([]byte, int(count)*disc.BytesPerSector)
	copy(out, r.buf)
	return out, nil
}

// Close stops the filler and closes the backing image.
func (r *ReadAhead) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done
	return r.Image.Close()
}
