// Package frame splits a streaming HTTP response body into raw JSON frames.
//
// Two framings are understood: Server-Sent-Events lines ("data: {...}",
// terminated by "data: [DONE]") and bare newline-delimited JSON objects.
// Everything else (blank lines, SSE comments, keep-alive pings, event: and
// id: fields) is dropped, as are frames that are not valid JSON.
package frame

import (
	"bytes"
	"io"
	"iter"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	ssePrefix    = "data: "
	doneSentinel = "[DONE]"

	// readSize bounds a single body read so frames are delivered as soon as
	// the server flushes them.
	readSize = 8192
)

// Decoder turns a byte stream into JSON frames, buffering at most one
// partial line between calls to Feed.
type Decoder struct {
	pending []byte
	done    bool
}

// Done reports whether the [DONE] sentinel has been seen. Input fed after
// the sentinel is ignored.
func (d *Decoder) Done() bool { return d.done }

// Feed consumes the next chunk of the stream and returns the complete frames
// it finished, in arrival order.
func (d *Decoder) Feed(chunk []byte) [][]byte {
	if d.done {
		return nil
	}
	d.pending = append(d.pending, chunk...)

	var frames [][]byte
	for !d.done {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		if f := d.line(line); f != nil {
			frames = append(frames, f)
		}
		d.pending = d.pending[idx+1:]
	}

	if d.done || len(d.pending) == 0 {
		d.pending = nil
	}
	return frames
}

// Flush processes a trailing line that was never newline-terminated. Call it
// once the underlying stream has ended.
func (d *Decoder) Flush() [][]byte {
	if d.done || len(d.pending) == 0 {
		d.pending = nil
		return nil
	}
	line := d.pending
	d.pending = nil
	if f := d.line(line); f != nil {
		return [][]byte{f}
	}
	return nil
}

// line classifies one complete line and returns its frame, or nil.
func (d *Decoder) line(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\r"))

	var payload []byte
	switch {
	case bytes.HasPrefix(line, []byte(ssePrefix)):
		payload = bytes.TrimSpace(line[len(ssePrefix):])
		if string(payload) == doneSentinel {
			d.done = true
			return nil
		}
	case bytes.HasPrefix(line, []byte("{")):
		payload = line
	default:
		return nil
	}

	if len(payload) == 0 {
		return nil
	}
	if !gjson.ValidBytes(payload) {
		log.Debugf("frame: skipping malformed frame (%d bytes)", len(payload))
		return nil
	}
	return bytes.Clone(payload)
}

// Frames lazily decodes r. The sequence ends at the [DONE] sentinel or at
// EOF; any other read error is yielded once as the final element.
func Frames(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var d Decoder
		buf := make([]byte, readSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, f := range d.Feed(buf[:n]) {
					if !yield(f, nil) {
						return
					}
				}
				if d.Done() {
					return
				}
			}
			if err == io.EOF {
				for _, f := range d.Flush() {
					if !yield(f, nil) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}
