package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/stream"
)

// FinishCall captures one OnFinish invocation.
type FinishCall struct {
	Message chat.ChatMessage
	Data    stream.StreamData
}

// RecordingListener records every lifecycle hook it receives. ResponseErr,
// when set, is returned from OnResponse.
type RecordingListener struct {
	mu          sync.Mutex
	ResponseErr error
	responses   []int
	finishes    []FinishCall
	errs        []error
}

func (l *RecordingListener) OnResponse(_ context.Context, resp *http.Response) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, resp.StatusCode)
	return l.ResponseErr
}

func (l *RecordingListener) OnFinish(msg chat.ChatMessage, data stream.StreamData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finishes = append(l.finishes, FinishCall{Message: msg, Data: data})
}

func (l *RecordingListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

// Responses returns the status codes observed by OnResponse.
func (l *RecordingListener) Responses() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.responses...)
}

func (l *RecordingListener) Finishes() []FinishCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FinishCall(nil), l.finishes...)
}

func (l *RecordingListener) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}
