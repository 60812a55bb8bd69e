package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkBody returns one chunk per Read call, then io.EOF.
type chunkBody struct {
	chunks [][]byte
	err    error
	closed bool
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *chunkBody) Close() error {
	b.closed = true
	return nil
}

func newChunkBody(chunks ...string) *chunkBody {
	body := &chunkBody{}
	for _, c := range chunks {
		body.chunks = append(body.chunks, []byte(c))
	}
	return body
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		kind     FrameKind
		text     string
		data     string
	}{
		{name: "plain content", fragment: "Hello", kind: FrameContent, text: "Hello"},
		{name: "data frame", fragment: `[DATA]{"id":"abc123"}`, kind: FrameData, data: `{"id":"abc123"}`},
		{name: "marker not at start", fragment: `see [DATA]{}`, kind: FrameContent, text: `see [DATA]{}`},
		{name: "bare marker", fragment: "[DATA]", kind: FrameData, data: ""},
		{name: "partial marker", fragment: "[DAT", kind: FrameContent, text: "[DAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFrame(tt.fragment)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.text, f.Text)
			assert.Equal(t, tt.data, string(f.Data))
		})
	}
}

func TestStreamData(t *testing.T) {
	t.Run("should shallow merge successive frames", func(t *testing.T) {
		d := StreamData{}
		require.NoError(t, d.Merge([]byte(`{"id":"one","citations":[1]}`)))
		require.NoError(t, d.Merge([]byte(`{"id":"two"}`)))

		assert.Equal(t, "two", d.ID())
		var citations []int
		require.NoError(t, d.Get("citations", &citations))
		assert.Equal(t, []int{1}, citations)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		d := StreamData{}
		err := d.Merge([]byte(`{"id":`))
		assert.Error(t, err)
		assert.Empty(t, d)
	})

	t.Run("should reject non-object payloads", func(t *testing.T) {
		d := StreamData{}
		assert.Error(t, d.Merge([]byte(`null`)))
		assert.Error(t, d.Merge([]byte(`[1,2]`)))
	})

	t.Run("should return empty id when absent or mistyped", func(t *testing.T) {
		d := StreamData{}
		assert.Equal(t, "", d.ID())
		require.NoError(t, d.Merge([]byte(`{"id":42}`)))
		assert.Equal(t, "", d.ID())
	})

	t.Run("should clone independently", func(t *testing.T) {
		d := StreamData{}
		require.NoError(t, d.Merge([]byte(`{"id":"a"}`)))
		c := d.Clone()
		require.NoError(t, d.Merge([]byte(`{"id":"b"}`)))
		assert.Equal(t, "a", c.ID())
	})
}

func TestReader(t *testing.T) {
	t.Run("should yield one frame per chunk", func(t *testing.T) {
		r := NewReader(newChunkBody("Hel", "lo", `[DATA]{"id":"abc123"}`))

		var frames []Frame
		for {
			f, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			frames = append(frames, f)
		}

		require.Len(t, frames, 3)
		assert.Equal(t, "Hel", frames[0].Text)
		assert.Equal(t, "lo", frames[1].Text)
		assert.Equal(t, FrameData, frames[2].Kind)
		assert.Equal(t, 3, r.Chunks())
	})

	t.Run("should skip chunks that only carry a partial rune", func(t *testing.T) {
		euro := "€"
		r := NewReader(newChunkBody("a"+euro[:1], euro[1:2], euro[2:]+"b"))

		f, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "a", f.Text)

		f, err = r.Next()
		require.NoError(t, err)
		assert.Equal(t, "€b", f.Text)

		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("should surface read errors", func(t *testing.T) {
		body := newChunkBody("partial")
		body.err = errors.New("connection reset")
		r := NewReader(body)

		_, err := r.Next()
		require.NoError(t, err)

		_, err = r.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("should close the body and stop", func(t *testing.T) {
		body := newChunkBody("a", "b")
		r := NewReader(body)

		require.NoError(t, r.Close())
		assert.True(t, body.closed)

		_, err := r.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}

// errBody returns its text together with an error on the first Read.
type errBody struct {
	text string
	err  error
	done bool
}

func (b *errBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, b.err
	}
	b.done = true
	return copy(p, b.text), b.err
}

func (b *errBody) Close() error { return nil }

func TestParseFrames(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		kinds []FrameKind
		texts []string
		datas []string
	}{
		{
			name:  "single content chunk",
			chunk: "Hello",
			kinds: []FrameKind{FrameContent},
			texts: []string{"Hello"},
			datas: []string{""},
		},
		{
			name:  "content with a trailing data frame",
			chunk: `lo[DATA]{"id":"abc123"}`,
			kinds: []FrameKind{FrameContent, FrameData},
			texts: []string{"lo", ""},
			datas: []string{"", `{"id":"abc123"}`},
		},
		{
			name:  "two trailing data frames",
			chunk: `end[DATA]{"a":1}[DATA]{"id":"x"}`,
			kinds: []FrameKind{FrameContent, FrameData, FrameData},
			texts: []string{"end", "", ""},
			datas: []string{"", `{"a":1}`, `{"id":"x"}`},
		},
		{
			name:  "marker inside content without JSON",
			chunk: "the [DATA] marker is literal",
			kinds: []FrameKind{FrameContent},
			texts: []string{"the [DATA] marker is literal"},
			datas: []string{""},
		},
		{
			name:  "malformed data frame stays a data frame",
			chunk: "[DATA]{not json",
			kinds: []FrameKind{FrameData},
			texts: []string{""},
			datas: []string{"{not json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := ParseFrames(tt.chunk)
			require.Len(t, frames, len(tt.kinds))
			for i, f := range frames {
				assert.Equal(t, tt.kinds[i], f.Kind)
				assert.Equal(t, tt.texts[i], f.Text)
				assert.Equal(t, tt.datas[i], string(f.Data))
			}
		})
	}
}

func TestReaderCoalescedChunks(t *testing.T) {
	t.Run("should split a data frame glued to content", func(t *testing.T) {
		r := NewReader(newChunkBody("Hel", `lo[DATA]{"id":"abc123"}`))

		var text string
		data := StreamData{}
		for {
			f, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			if f.Kind == FrameData {
				require.NoError(t, data.Merge(f.Data))
			} else {
				text += f.Text
			}
		}

		assert.Equal(t, "Hello", text)
		assert.Equal(t, "abc123", data.ID())
		assert.Equal(t, 2, r.Chunks())
	})

	t.Run("should return text read alongside an error before the error", func(t *testing.T) {
		r := NewReader(&errBody{text: "partial", err: errors.New("connection reset")})

		f, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "partial", f.Text)

		_, err = r.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	})
}
