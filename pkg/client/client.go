package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ChatRequest is the JSON body posted to the chat endpoint.
type ChatRequest struct {
	Query        string `json:"query"`
	ReloadID     string `json:"reloadId,omitempty"`
	AppID        string `json:"appId"`
	SessionID    string `json:"sessionId"`
	APISessionID string `json:"apiSessionId"`
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client opens streamed chat responses against one endpoint.
type Client struct {
	endpoint string
	doer     Doer
	headers  http.Header
}

type Option func(*Client)

// WithDoer replaces the HTTP transport, mostly for tests.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithHeaderTimeout bounds how long to wait for response headers. The body
// itself is never timed out here; streams can run arbitrarily long.
func WithHeaderTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		c.doer = &http.Client{Transport: transport}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		doer:     &http.Client{},
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Open posts req and returns the response as soon as headers arrive. The
// caller owns the body. Status codes are not interpreted here.
func (c *Client) Open(ctx context.Context, req ChatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	return resp, nil
}
