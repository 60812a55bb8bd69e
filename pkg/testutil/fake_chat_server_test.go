package testutil

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/killallgit/chatstream/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeChatServer(t *testing.T) {
	ctx := context.Background()

	t.Run("should stream the configured response", func(t *testing.T) {
		server := NewFakeChatServer("Hello world!")
		defer server.Close()
		server.SetChunkSize(3)

		resp, err := client.New(server.URL()).Open(ctx, client.ChatRequest{Query: "hi", AppID: "app", SessionID: "s1"})
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Hello world!", string(body))

		requests := server.Requests()
		require.Len(t, requests, 1)
		assert.Equal(t, "hi", requests[0].Query)
		assert.Equal(t, "s1", requests[0].SessionID)
	})

	t.Run("should cycle responses across requests", func(t *testing.T) {
		server := NewFakeChatServer("first", "second")
		defer server.Close()
		c := client.New(server.URL())

		for _, want := range []string{"first", "second", "first"} {
			resp, err := c.Open(ctx, client.ChatRequest{Query: "q"})
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			require.NoError(t, err)
			assert.Equal(t, want, string(body))
		}
	})

	t.Run("should finish with a data frame when a message id is set", func(t *testing.T) {
		server := NewFakeChatServer("Hi")
		defer server.Close()
		server.SetMessageID("abc123")

		resp, err := client.New(server.URL()).Open(ctx, client.ChatRequest{Query: "q"})
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, `Hi[DATA]{"id":"abc123"}`, string(body))
	})

	t.Run("should return the configured error", func(t *testing.T) {
		server := NewFakeChatServer("unused")
		defer server.Close()
		server.SetError(http.StatusBadGateway, "upstream down")

		resp, err := client.New(server.URL()).Open(ctx, client.ChatRequest{Query: "q"})
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "upstream down", string(body))
	})

	t.Run("should drop the connection after n chunks", func(t *testing.T) {
		server := NewFakeChatServer("abcdefghij")
		defer server.Close()
		server.SetChunkSize(2)
		server.SetFailAfter(2)

		resp, err := client.New(server.URL()).Open(ctx, client.ChatRequest{Query: "q"})
		require.NoError(t, err)
		defer resp.Body.Close()

		_, err = io.ReadAll(resp.Body)
		assert.Error(t, err)
	})

	t.Run("should stop streaming when the request is cancelled", func(t *testing.T) {
		server := NewFakeChatServer("a long answer that takes a while")
		defer server.Close()
		server.SetChunkSize(2)
		server.SetChunkDelay(20 * time.Millisecond)

		reqCtx, cancel := context.WithCancel(ctx)
		resp, err := client.New(server.URL()).Open(reqCtx, client.ChatRequest{Query: "q"})
		require.NoError(t, err)
		defer resp.Body.Close()

		buf := make([]byte, 64)
		_, err = resp.Body.Read(buf)
		require.NoError(t, err)
		cancel()

		_, err = io.ReadAll(resp.Body)
		assert.Error(t, err)
	})
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want []string
	}{
		{name: "empty", in: "", size: 3, want: nil},
		{name: "shorter than size", in: "ab", size: 3, want: []string{"ab"}},
		{name: "exact multiple", in: "abcdef", size: 3, want: []string{"abc", "def"}},
		{name: "remainder", in: "abcdefg", size: 3, want: []string{"abc", "def", "g"}},
		{name: "non-positive size", in: "abc", size: 0, want: []string{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitChunks(tt.in, tt.size))
		})
	}
}
