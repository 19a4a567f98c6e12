// Package reader implements the file- and stream-format readers of
// spec.md §4.E: frms6, raw-sss, and the TCP variant of frms6 used for
// online shared-memory relay. Each reader consumes a whole event's
// worth of bytes from an io.Reader and populates a CASSEvent, the way
// the teacher repository's internal/container.ReadChunk consumes one RIFF chunk at a time from
// a stream — fixed-size headers read with io.ReadFull, fields decoded
// with encoding/binary, and payload buffers reused across calls
// instead of reallocated per event (spec.md §4.E "Readers never
// allocate per event once warmed up").
package reader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lcls-cass/cassgo/cass/device"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/wire"
)

// Reader is the capability interface every file/stream format
// implements: consume a file-level preamble once, then pull one event
// at a time off the stream.
type Reader interface {
	// ReadHeaderInfo consumes any file-level preamble that precedes
	// the first event (spec.md §4.E).
	ReadHeaderInfo(r io.Reader) error

	// Read fills evt with the next event's data. It returns
	// (true, nil) on success, (false, nil) on a clean EOF between
	// events, and a non-nil error on malformed or truncated data: a
	// frms6 frame cut short wraps wire.ErrTruncated, a raw-sss frame
	// cut short wraps io.EOF, and a raw-sss overrun or height mismatch
	// returns ErrOverrun, which wraps wire.ErrCorruptStream.
	Read(r io.Reader, evt *event.CASSEvent) (bool, error)
}

// ErrOverrun is raised by the raw-sss reader when asked to read past
// the frame count declared in its preamble, and when a frame's height
// check disagrees with the preamble. It wraps wire.ErrCorruptStream
// so callers can test for either with errors.Is.
var ErrOverrun = fmt.Errorf("reader: frame count exceeds header declaration: %w", wire.ErrCorruptStream)

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	return nil
}
