// Package demux splits a continuous JPEG byte stream (such as ffmpeg's
// image2pipe output) into individual frames.
//
// Frames are delimited by the start-of-image marker 0xFFD8 and the
// end-of-image marker 0xFFD9. The stream carries no length prefixes, so the
// demuxer buffers bytes until a start/end pair resolves into a frame.
package demux

import (
	"bytes"
	"errors"
)

// DefaultMaxFrameSize bounds how many bytes an incomplete frame may occupy.
const DefaultMaxFrameSize = 8 << 20

var (
	startMarker = []byte{0xFF, 0xD8}
	endMarker   = []byte{0xFF, 0xD9}
)

// ErrBufferOverrun is returned by Feed when buffered bytes exceeded the
// maximum frame size and were discarded to resynchronize.
var ErrBufferOverrun = errors.New("demux: buffered frame exceeds maximum size")

// Demuxer is not safe for concurrent use; a single reader goroutine owns it.
type Demuxer struct {
	buf      []byte
	maxFrame int

	// pending is true when buf[0:2] is a start marker whose end marker has
	// not arrived yet. searched is the offset where the end marker search
	// resumes, so bytes already scanned are not scanned again.
	pending  bool
	searched int

	frames   uint64
	overruns uint64
}

// New creates a Demuxer. A non-positive maxFrameSize selects DefaultMaxFrameSize.
func New(maxFrameSize int) *Demuxer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Demuxer{maxFrame: maxFrameSize}
}

// Feed appends chunk to the internal buffer and calls emit once for every
// complete frame now available, in stream order, before returning. Each
// emitted slice is a private copy the receiver may keep.
//
// Feed returns ErrBufferOverrun if the buffer had to be discarded; frames
// emitted before the overrun are still delivered.
func (d *Demuxer) Feed(chunk []byte, emit func(frame []byte)) error {
	d.buf = append(d.buf, chunk...)

	pos := 0
	for {
		var start, from int
		if d.pending && pos == 0 {
			start = 0
			from = max(d.searched, start+len(startMarker))
		} else {
			i := bytes.Index(d.buf[pos:], startMarker)
			if i < 0 {
				break
			}
			start = pos + i
			from = start + len(startMarker)
		}

		j := bytes.Index(d.buf[from:], endMarker)
		if j < 0 {
			// Incomplete frame: bytes before start belong to no frame.
			pos = start
			d.pending = true
			d.searched = max(len(d.buf)-1, from) - start
			break
		}

		end := from + j + len(endMarker)
		frame := make([]byte, end-start)
		copy(frame, d.buf[start:end])
		d.frames++
		d.pending = false
		pos = end
		emit(frame)
	}

	d.compact(pos)

	if len(d.buf) > d.maxFrame {
		d.resync()
		d.overruns++
		return ErrBufferOverrun
	}
	return nil
}

// compact drops the first n bytes, reusing the backing array.
func (d *Demuxer) compact(n int) {
	if n == 0 {
		return
	}
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}

// resync discards the oversized frame up to the next start marker. The
// end marker search already covered everything after the old start, so a
// later start marker is pending as well.
func (d *Demuxer) resync() {
	if d.pending {
		if i := bytes.Index(d.buf[len(startMarker):], startMarker); i >= 0 {
			next := i + len(startMarker)
			d.searched = max(d.searched-next, len(startMarker))
			d.compact(next)
			return
		}
	}

	// Keep a trailing 0xFF: it may be the first half of a start marker.
	keep := 0
	if n := len(d.buf); n > 0 && d.buf[n-1] == startMarker[0] {
		keep = 1
	}
	d.compact(len(d.buf) - keep)
	d.pending = false
	d.searched = 0
}

// Buffered returns the number of bytes held for the next Feed call.
func (d *Demuxer) Buffered() int {
	return len(d.buf)
}

// Pending reports whether the buffer starts with an unterminated frame.
func (d *Demuxer) Pending() bool {
	return d.pending
}

// Stats returns the number of frames emitted and overruns seen so far.
func (d *Demuxer) Stats() (frames, overruns uint64) {
	return d.frames, d.overruns
}

// Reset discards any buffered bytes.
func (d *Demuxer) Reset() {
	d.buf = d.buf[:0]
	d.pending = false
	d.searched = 0
}
