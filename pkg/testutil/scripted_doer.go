package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/killallgit/chatstream/pkg/client"
)

// ScriptedResponse describes what a ScriptedDoer returns for one request.
type ScriptedResponse struct {
	Status int
	// Chunks are delivered one per Read call.
	Chunks []string
	// Body is used verbatim for non-2xx responses.
	Body string
	// Hold keeps the body open after the last chunk until the request
	// context is cancelled or the body is closed.
	Hold bool
	// NoBody returns http.NoBody.
	NoBody bool
	// Err fails the round trip itself.
	Err error
}

// ScriptedDoer is a client.Doer that replays scripted responses with exact
// chunk boundaries. The last response repeats once the script runs out.
type ScriptedDoer struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []client.ChatRequest
	bodies    []*ChunkedBody
}

func NewScriptedDoer(responses ...ScriptedResponse) *ScriptedDoer {
	return &ScriptedDoer{responses: responses}
}

func (d *ScriptedDoer) Do(req *http.Request) (*http.Response, error) {
	var body client.ChatRequest
	if req.Body != nil {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.requests = append(d.requests, body)
	var script ScriptedResponse
	if len(d.responses) > 0 {
		index := len(d.requests) - 1
		if index >= len(d.responses) {
			index = len(d.responses) - 1
		}
		script = d.responses[index]
	}
	d.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}

	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	resp := &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Request:    req,
	}

	switch {
	case script.NoBody:
		resp.Body = http.NoBody
	case status < 200 || status > 299:
		resp.Body = io.NopCloser(strings.NewReader(script.Body))
	default:
		chunked := NewChunkedBody(req.Context(), script.Hold, script.Chunks...)
		d.mu.Lock()
		d.bodies = append(d.bodies, chunked)
		d.mu.Unlock()
		resp.Body = chunked
	}
	return resp, nil
}

// Requests returns the decoded request bodies received so far.
func (d *ScriptedDoer) Requests() []client.ChatRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]client.ChatRequest, len(d.requests))
	copy(out, d.requests)
	return out
}

// Bodies returns the streamed bodies handed out so far.
func (d *ScriptedDoer) Bodies() []*ChunkedBody {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*ChunkedBody, len(d.bodies))
	copy(out, d.bodies)
	return out
}

// ChunkedBody yields exactly one chunk per Read.
type ChunkedBody struct {
	ctx    context.Context
	hold   bool
	mu     sync.Mutex
	chunks [][]byte
	done   chan struct{}
	once   sync.Once
	closed bool
}

func NewChunkedBody(ctx context.Context, hold bool, chunks ...string) *ChunkedBody {
	if ctx == nil {
		ctx = context.Background()
	}
	b := &ChunkedBody{ctx: ctx, hold: hold, done: make(chan struct{})}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *ChunkedBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(b.chunks) > 0 {
		chunk := b.chunks[0]
		n := copy(p, chunk)
		if n < len(chunk) {
			b.chunks[0] = chunk[n:]
		} else {
			b.chunks = b.chunks[1:]
		}
		b.mu.Unlock()
		return n, nil
	}
	b.mu.Unlock()

	if !b.hold {
		return 0, io.EOF
	}
	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	case <-b.done:
		return 0, io.ErrClosedPipe
	}
}

func (b *ChunkedBody) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
	return nil
}

// Closed reports whether the consumer closed the body.
func (b *ChunkedBody) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
