package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/client"
	"github.com/killallgit/chatstream/pkg/config"
	"github.com/killallgit/chatstream/pkg/controllers"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/killallgit/chatstream/pkg/render"
	"github.com/killallgit/chatstream/pkg/session"
	"github.com/killallgit/chatstream/pkg/stream"
	"github.com/killallgit/chatstream/pkg/telemetry"
	"github.com/pkg/errors"
)

// App holds everything a command needs to talk to the chat endpoint
type App struct {
	Config    *config.Config
	Session   *session.Session
	Markdown  *render.MarkdownRenderer
	telemetry *telemetry.Provider
}

// NewApp wires logging, telemetry, the HTTP client and a session from cfg.
// Extra listeners observe every request alongside the app's own.
func NewApp(ctx context.Context, cfg *config.Config, extra ...controllers.Listener) (*App, error) {
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.WithComponent("app")

	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize telemetry")
	}

	opts := []client.Option{client.WithHeaderTimeout(cfg.Endpoint.HeaderTimeout)}
	for key, value := range cfg.Endpoint.Headers {
		opts = append(opts, client.WithHeader(key, value))
	}
	httpClient := client.New(cfg.Endpoint.URL, opts...)

	app := &App{Config: cfg, telemetry: tp}

	listeners := controllers.Listeners{eventRecorder{app: app}}
	listeners = append(listeners, extra...)

	app.Session, err = session.New(session.Options{
		Identity: cfg.Session,
		Client:   httpClient,
		Listener: listeners,
		Tracer:   tp.Tracer,
		Meter:    tp.Meter,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Render.Markdown {
		mr, err := render.NewMarkdownRenderer(cfg.Render.Style, cfg.Render.Width)
		if err != nil {
			log.Warn("Markdown rendering disabled", "error", err)
		} else {
			app.Markdown = mr
		}
	}

	log.Info("Application ready", "endpoint", cfg.Endpoint.URL, "session_key", app.Session.Key())
	return app, nil
}

// Close flushes telemetry and closes the log file
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.telemetry.Shutdown(ctx)
	if closeErr := logger.Close(); err == nil {
		err = closeErr
	}
	return err
}

// eventRecorder turns request lifecycle hooks into event messages so they
// show up in the merged transcript.
type eventRecorder struct {
	app *App
}

func (r eventRecorder) OnResponse(_ context.Context, resp *http.Response) error {
	r.add("response", map[string]any{"status": resp.StatusCode})
	return nil
}

func (r eventRecorder) OnFinish(msg chat.ChatMessage, data stream.StreamData) {
	r.add("finished", map[string]any{"message_id": msg.ID, "fields": len(data)})
}

func (r eventRecorder) OnError(err error) {
	r.add("error", map[string]any{"kind": controllers.KindOf(err).String()})
}

func (r eventRecorder) add(name string, payload map[string]any) {
	if r.app.Session == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("Failed to encode event payload", "event", name, "error", err)
		return
	}
	r.app.Session.AddEvent(chat.NewEventMessage(name, raw))
}
