package stream

import (
	"io"

	"github.com/pkg/errors"
)

const defaultChunkSize = 32 * 1024

// Reader pulls chunks from a response body and yields the frames each chunk
// holds, usually one. Chunks that decode to no text (a split multi-byte
// sequence, an empty read) are skipped.
type Reader struct {
	body    io.ReadCloser
	decoder *Decoder
	buf     []byte
	queued  []Frame
	err     error
	chunks  int
	eof     bool
}

func NewReader(body io.ReadCloser) *Reader {
	return &Reader{
		body:    body,
		decoder: NewDecoder(),
		buf:     make([]byte, defaultChunkSize),
	}
}

// Next blocks for the next frame. It returns io.EOF once the body is drained
// and any buffered bytes have been flushed. Text read together with a read
// error is returned first and the error on the following call.
func (r *Reader) Next() (Frame, error) {
	for len(r.queued) == 0 {
		if r.err != nil {
			err := r.err
			r.err = nil
			r.eof = true
			return Frame{}, err
		}
		if r.eof {
			return Frame{}, io.EOF
		}
		r.fill()
	}
	f := r.queued[0]
	r.queued = r.queued[1:]
	return f, nil
}

func (r *Reader) fill() {
	n, err := r.body.Read(r.buf)
	var text string
	if n > 0 {
		r.chunks++
		text = r.decoder.Decode(r.buf[:n])
	}
	if errors.Is(err, io.EOF) {
		r.eof = true
		text += r.decoder.Flush()
	} else if err != nil {
		r.err = errors.Wrap(err, "failed to read stream")
	}
	if text != "" {
		r.queued = append(r.queued, ParseFrames(text)...)
	}
}

// Chunks returns how many non-empty chunks have been read so far.
func (r *Reader) Chunks() int {
	return r.chunks
}

// Close cancels the underlying body.
func (r *Reader) Close() error {
	r.eof = true
	r.queued = nil
	return r.body.Close()
}
