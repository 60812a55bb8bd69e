package stream

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns raw body chunks into UTF-8 text. A multi-byte sequence split
// across chunks is held back until the next chunk completes it. Invalid bytes
// are replaced with U+FFFD instead of failing the stream.
//
// A Decoder is scoped to a single response body and is not safe for
// concurrent use.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text that can be safely emitted for chunk, buffering an
// incomplete trailing sequence.
func (d *Decoder) Decode(chunk []byte) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	return d.run(src, false)
}

// Flush emits whatever is still buffered. Incomplete sequences left at the end
// of the stream become replacement characters.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	src := d.pending
	d.pending = nil
	return d.run(src, true)
}

// Pending reports how many bytes are waiting for the next chunk.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset drops buffered bytes so the decoder can be reused for a new body.
func (d *Decoder) Reset() {
	d.pending = nil
	d.t.Reset()
}

func (d *Decoder) run(src []byte, atEOF bool) string {
	var out strings.Builder
	dst := make([]byte, len(src)*3+utf8.UTFMax)

	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch err {
		case nil:
			return out.String()
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			// The UTF-8 decoder only reports short buffers; anything else
			// leaves the remainder undecodable, so replace it wholesale.
			out.WriteString(strings.ToValidUTF8(string(src), string(utf8.RuneError)))
			return out.String()
		}
	}
}
