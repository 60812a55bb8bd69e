package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/client"
	"github.com/killallgit/chatstream/pkg/config"
	"github.com/killallgit/chatstream/pkg/render"
	"github.com/killallgit/chatstream/pkg/session"
	"github.com/killallgit/chatstream/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, server *testutil.FakeChatServer) *session.Session {
	t.Helper()
	s, err := session.New(session.Options{
		Identity: chat.Identity{AppID: "app", SessionID: "cli"},
		Client:   client.New(server.URL()),
	})
	require.NoError(t, err)
	return s
}

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"config", "endpoint", "app-id", "session-id", "api-session-id", "log-level", "markdown"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "bool", rootCmd.PersistentFlags().Lookup("markdown").Value.Type())

	found := false
	for _, sub := range rootCmd.Commands() {
		if sub.Name() == "ask" {
			found = true
		}
	}
	assert.True(t, found, "ask command should be registered")
}

func TestRunAsk(t *testing.T) {
	t.Run("should stream the answer", func(t *testing.T) {
		server := testutil.NewFakeChatServer("Hello there")
		defer server.Close()
		server.SetChunkSize(3)
		s := newTestSession(t, server)

		var out bytes.Buffer
		require.NoError(t, runAsk(context.Background(), s, nil, "hi", &out))

		assert.Contains(t, out.String(), "Hello there")
		assert.Equal(t, "hi", server.Requests()[0].Query)
	})

	t.Run("should render markdown once finished", func(t *testing.T) {
		server := testutil.NewFakeChatServer("# Heading\n\nbody text")
		defer server.Close()
		s := newTestSession(t, server)
		mr, err := render.NewMarkdownRenderer("notty", 60)
		require.NoError(t, err)

		var out bytes.Buffer
		require.NoError(t, runAsk(context.Background(), s, mr, "hi", &out))

		assert.Contains(t, out.String(), "Heading")
		assert.Contains(t, out.String(), "body text")
	})

	t.Run("should return request errors", func(t *testing.T) {
		server := testutil.NewFakeChatServer("unused")
		defer server.Close()
		server.SetError(500, "exploded")
		s := newTestSession(t, server)

		var out bytes.Buffer
		err := runAsk(context.Background(), s, nil, "hi", &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exploded")
	})
}

func TestChatLoop(t *testing.T) {
	server := testutil.NewFakeChatServer("first answer", "second answer")
	defer server.Close()
	s := newTestSession(t, server)

	input := strings.Join([]string{"hello", "/history", "/events", "/retry", "/bogus", "/help", "/quit", "never sent"}, "\n")
	var out bytes.Buffer
	require.NoError(t, newChatLoop(s, nil, &out).run(context.Background(), strings.NewReader(input)))

	output := out.String()
	assert.Contains(t, output, "first answer")
	assert.Contains(t, output, "second answer")
	assert.Contains(t, output, "No events yet.")
	assert.Contains(t, output, "Unknown command /bogus")
	assert.Contains(t, output, "/retry")

	requests := server.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "hello", requests[0].Query)
	assert.Equal(t, "hello", requests[1].Query)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "second answer", msgs[1].Content)
}

func TestNewApp(t *testing.T) {
	server := testutil.NewFakeChatServer("from the app")
	defer server.Close()
	server.SetMessageID("srv-9")

	dir := t.TempDir()
	cfg := &config.Config{
		Endpoint: config.EndpointConfig{
			URL:           server.URL(),
			HeaderTimeout: config.DefaultHeaderTimeout,
			Headers:       map[string]string{"X-Client": "chatstream"},
		},
		Session: chat.Identity{AppID: "app", SessionID: "s-app", APISessionID: "api"},
		Logging: config.LoggingConfig{File: filepath.Join(dir, "app.log"), Level: "debug"},
		Render:  config.RenderConfig{Markdown: true, Style: "notty", Width: 60},
	}

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.Markdown)
	assert.Equal(t, "chat/s-app", app.Session.Key())

	result, err := app.Session.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "from the app", result.Message.Content)
	assert.Equal(t, "srv-9", result.Message.ID)

	var names []string
	for _, e := range app.Session.Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"response", "finished"}, names)
	assert.Len(t, app.Session.AllMessages(), 4)
}
