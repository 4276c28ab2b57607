// Package stream decodes the backend's chunked event stream.
//
// Frames are separated by a blank line. Within a frame the first line
// starting with "data: " holds one JSON event; other lines are ignored,
// as are frames with no data line.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
)

const readSize = 4096

var (
	frameSep   = []byte("\n\n")
	dataPrefix = []byte("data: ")
)

// ParseError reports a frame whose payload was not a valid event.
// It is terminal for the decoder that returned it.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse stream event: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decoder reads events from a byte stream, buffering partial frames across
// reads.
type Decoder struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	readErr error
	err     error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, readSize)}
}

// Next returns the next event. It returns io.EOF once the stream has ended;
// any unterminated trailing frame is discarded.
func (d *Decoder) Next() (Event, error) {
	for {
		if d.err != nil {
			return nil, d.err
		}

		if i := bytes.Index(d.buf, frameSep); i >= 0 {
			frame := d.buf[:i]
			d.buf = d.buf[i+len(frameSep):]

			payload, ok := dataPayload(frame)
			if !ok {
				continue
			}
			ev, err := ParseEvent(payload)
			if err != nil {
				d.err = &ParseError{Payload: string(payload), Err: err}
				return nil, d.err
			}
			return ev, nil
		}

		if d.readErr != nil {
			d.buf = nil
			d.err = d.readErr
			continue
		}

		n, err := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:n]...)
		if err != nil {
			d.readErr = err
		}
	}
}

// Events iterates over the remaining events. A terminal error other than
// io.EOF is yielded once with a nil event.
func (d *Decoder) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func dataPayload(frame []byte) ([]byte, bool) {
	for line := range bytes.SplitSeq(frame, []byte("\n")) {
		if rest, ok := bytes.CutPrefix(line, dataPrefix); ok {
			return rest, true
		}
	}
	return nil, false
}
