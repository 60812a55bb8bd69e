package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/killallgit/chatstream/pkg/client"
	"github.com/killallgit/chatstream/pkg/stream"
)

// FakeChatServer is an httptest server speaking the chat endpoint's wire
// format. Each request is answered with the next configured response text,
// split into chunks and flushed one by one, optionally followed by a data
// frame carrying a message id.
type FakeChatServer struct {
	server *httptest.Server

	mu         sync.Mutex
	responses  []string
	next       int
	chunkSize  int
	chunkDelay time.Duration
	failAfter  int
	status     int
	errorBody  string
	messageID  string
	requests   []client.ChatRequest
}

// NewFakeChatServer starts a server that cycles through responses.
func NewFakeChatServer(responses ...string) *FakeChatServer {
	f := &FakeChatServer{
		responses: responses,
		chunkSize: 5,
		status:    http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", f.handle)
	f.server = httptest.NewServer(mux)
	return f
}

// URL is the full chat endpoint URL.
func (f *FakeChatServer) URL() string {
	return f.server.URL + "/api/chat"
}

func (f *FakeChatServer) Close() {
	f.server.Close()
}

// SetChunkDelay sets the pause before each flushed chunk
func (f *FakeChatServer) SetChunkDelay(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkDelay = delay
}

// SetChunkSize sets the number of bytes per chunk
func (f *FakeChatServer) SetChunkSize(size int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkSize = size
}

// SetFailAfter makes the server drop the connection after n chunks
func (f *FakeChatServer) SetFailAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = n
}

// SetError makes every request fail with status and body.
func (f *FakeChatServer) SetError(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.errorBody = body
}

// SetMessageID makes the server finish each stream with a data frame
// carrying id.
func (f *FakeChatServer) SetMessageID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageID = id
}

// Requests returns the decoded bodies of all requests received so far.
func (f *FakeChatServer) Requests() []client.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]client.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *FakeChatServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req client.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, errorBody := f.status, f.errorBody
	chunkSize, chunkDelay, failAfter, messageID := f.chunkSize, f.chunkDelay, f.failAfter, f.messageID
	response := ""
	if len(f.responses) > 0 {
		response = f.responses[f.next%len(f.responses)]
		f.next++
	}
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(errorBody))
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for i, chunk := range SplitChunks(response, chunkSize) {
		if failAfter > 0 && i >= failAfter {
			panic(http.ErrAbortHandler)
		}
		if chunkDelay > 0 {
			select {
			case <-time.After(chunkDelay):
			case <-r.Context().Done():
				return
			}
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if messageID != "" {
		if chunkDelay > 0 {
			time.Sleep(chunkDelay)
		}
		frame, _ := json.Marshal(map[string]string{"id": messageID})
		_, _ = w.Write(append([]byte(stream.DataMarker), frame...))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// SplitChunks cuts s into pieces of at most size bytes.
func SplitChunks(s string, size int) []string {
	if size <= 0 || len(s) <= size {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var chunks []string
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}
