package controllers

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// FallbackResponseMessage is used when a non-2xx response has no body text.
	FallbackResponseMessage = "Failed to fetch the chat response."
	// EmptyBodyMessage is used when a successful response carries no body.
	EmptyBodyMessage = "The response body is empty."
)

// ErrorKind classifies terminal request failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindSetup means the request never reached the server.
	KindSetup
	// KindResponse is a non-2xx status.
	KindResponse
	KindEmptyBody
	// KindDecode is a malformed data frame.
	KindDecode
	// KindStream is a body read failure mid-stream.
	KindStream
	// KindHook is an error returned by Listener.OnResponse.
	KindHook
)

func (k ErrorKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindResponse:
		return "response"
	case KindEmptyBody:
		return "empty_body"
	case KindDecode:
		return "decode"
	case KindStream:
		return "stream"
	case KindHook:
		return "hook"
	default:
		return "unknown"
	}
}

// RequestError is returned for every terminal failure except cancellation.
type RequestError struct {
	Kind ErrorKind
	// Status is the HTTP status code, when a response was received.
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat request failed (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("chat request failed (%s): %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Cause lets github.com/pkg/errors walk through a RequestError.
func (e *RequestError) Cause() error {
	return e.Err
}

// KindOf returns the kind of the first RequestError in err's chain.
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return KindUnknown
}

// IsSetupFailure reports whether err means no request was sent, in which case
// optimistic updates are rolled back.
func IsSetupFailure(err error) bool {
	return KindOf(err) == KindSetup
}
