package reader

import (
	"fmt"
	"io"
	"net"

	"github.com/lcls-cass/cassgo/cass/event"
)

// TCPStreamer is the frms6 variant used for online shared-memory relay:
// the same file/frame header layout, read off a live net.Conn instead
// of a file, with no file-level preamble beyond the usual frms6 file
// header sent once at connection time (spec.md §4.E "TCP streamer").
type TCPStreamer struct {
	inner Frms6Reader
}

var _ Reader = (*TCPStreamer)(nil)

// NewTCPStreamer returns a streamer ready to have ReadHeaderInfo called
// against a freshly accepted connection.
func NewTCPStreamer() *TCPStreamer { return &TCPStreamer{} }

func (t *TCPStreamer) ReadHeaderInfo(r io.Reader) error { return t.inner.ReadHeaderInfo(r) }

func (t *TCPStreamer) Read(r io.Reader, evt *event.CASSEvent) (bool, error) {
	return t.inner.Read(r, evt)
}

// Stream pulls events off conn until EOF, a corrupt-stream error, or
// ctxDone is closed, sending each successfully decoded event to out.
// The caller owns conn and out; Stream never closes either. It is the
// Go equivalent of the C++ instance's blocking per-connection relay
// loop (original_source/cass/tcp_streamer.cpp).
func (t *TCPStreamer) Stream(conn net.Conn, out chan<- *event.CASSEvent, newEvent func() *event.CASSEvent, ctxDone <-chan struct{}) error {
	if err := t.ReadHeaderInfo(conn); err != nil {
		return fmt.Errorf("tcpstreamer: %w", err)
	}
	for {
		select {
		case <-ctxDone:
			return nil
		default:
		}

		evt := newEvent()
		ok, err := t.Read(conn, evt)
		if err != nil {
			return fmt.Errorf("tcpstreamer: %w", err)
		}
		if !ok {
			return nil
		}

		select {
		case out <- evt:
		case <-ctxDone:
			return nil
		}
	}
}
