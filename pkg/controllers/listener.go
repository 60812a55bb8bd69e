package controllers

import (
	"context"
	"net/http"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/stream"
)

// Listener observes the lifecycle of each request.
type Listener interface {
	// OnResponse is called once when response headers arrive. A returned
	// error ends the request.
	OnResponse(ctx context.Context, resp *http.Response) error

	// OnFinish is called with the finalized assistant message after the
	// stream completes. It is not called for cancelled requests.
	OnFinish(msg chat.ChatMessage, data stream.StreamData)

	// OnError is called for every terminal failure except cancellation.
	OnError(err error)
}

// ListenerFuncs is a function adapter for Listener. Nil fields are skipped.
type ListenerFuncs struct {
	ResponseFunc func(ctx context.Context, resp *http.Response) error
	FinishFunc   func(msg chat.ChatMessage, data stream.StreamData)
	ErrorFunc    func(err error)
}

// OnResponse implements Listener
func (l ListenerFuncs) OnResponse(ctx context.Context, resp *http.Response) error {
	if l.ResponseFunc != nil {
		return l.ResponseFunc(ctx, resp)
	}
	return nil
}

// OnFinish implements Listener
func (l ListenerFuncs) OnFinish(msg chat.ChatMessage, data stream.StreamData) {
	if l.FinishFunc != nil {
		l.FinishFunc(msg, data)
	}
}

// OnError implements Listener
func (l ListenerFuncs) OnError(err error) {
	if l.ErrorFunc != nil {
		l.ErrorFunc(err)
	}
}

// Listeners fans each hook out to every listener in order. OnResponse stops
// at the first error.
type Listeners []Listener

func (ls Listeners) OnResponse(ctx context.Context, resp *http.Response) error {
	for _, l := range ls {
		if err := l.OnResponse(ctx, resp); err != nil {
			return err
		}
	}
	return nil
}

func (ls Listeners) OnFinish(msg chat.ChatMessage, data stream.StreamData) {
	for _, l := range ls {
		l.OnFinish(msg, data.Clone())
	}
}

func (ls Listeners) OnError(err error) {
	for _, l := range ls {
		l.OnError(err)
	}
}

// NopListener ignores every hook.
var NopListener Listener = ListenerFuncs{}
