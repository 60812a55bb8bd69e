package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/client"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/killallgit/chatstream/pkg/store"
	"github.com/killallgit/chatstream/pkg/stream"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/killallgit/chatstream/pkg/controllers"

// Opener opens a streamed chat response. *client.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, req client.ChatRequest) (*http.Response, error)
}

// Outcome describes how a request ended without error.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeCancelled
	// OutcomeSkipped means a guard rejected the call and nothing was sent.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is what a request produced. Message holds whatever assistant
// content was received, partial when cancelled.
type Result struct {
	Outcome Outcome
	Message chat.ChatMessage
	Data    stream.StreamData
}

// RequestOptions configures a RequestController
type RequestOptions struct {
	Client   Opener
	Messages *store.MessageStore
	Identity chat.Identity
	Listener Listener
	Logger   *logger.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
}

// RequestController owns the single in-flight chat request of a session: it
// sends the query, streams the answer into the message store and tracks
// loading, error and cancellation state.
type RequestController struct {
	client   Opener
	messages *store.MessageStore
	identity chat.Identity
	listener Listener
	log      *logger.Logger
	tracer   trace.Tracer

	requests metric.Int64Counter
	chunks   metric.Int64Counter
	duration metric.Float64Histogram

	mu      sync.Mutex
	active  *token
	loading bool
	err     error
}

// token is the per-request cancellation handle.
type token struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func NewRequestController(opts RequestOptions) (*RequestController, error) {
	if opts.Client == nil {
		return nil, errors.New("request controller requires a client")
	}
	if opts.Messages == nil {
		opts.Messages = store.NewMessageStore()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("request_controller")
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}

	rc := &RequestController{
		client:   opts.Client,
		messages: opts.Messages,
		identity: opts.Identity,
		listener: opts.Listener,
		log:      opts.Logger.With("session_id", opts.Identity.SessionID),
		tracer:   opts.Tracer,
	}

	var err error
	if rc.requests, err = opts.Meter.Int64Counter("chat.requests",
		metric.WithDescription("Chat requests by outcome")); err != nil {
		return nil, errors.Wrap(err, "failed to create request counter")
	}
	if rc.chunks, err = opts.Meter.Int64Counter("chat.stream.chunks",
		metric.WithDescription("Response body chunks read")); err != nil {
		return nil, errors.Wrap(err, "failed to create chunk counter")
	}
	if rc.duration, err = opts.Meter.Float64Histogram("chat.request.duration",
		metric.WithDescription("Time from send to stream end"), metric.WithUnit("s")); err != nil {
		return nil, errors.Wrap(err, "failed to create duration histogram")
	}
	return rc, nil
}

// Messages returns the store the controller streams into.
func (rc *RequestController) Messages() *store.MessageStore {
	return rc.messages
}

// Loading reports whether a request is in flight.
func (rc *RequestController) Loading() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.loading
}

// Err returns the last terminal error. It is cleared when a new request
// starts.
func (rc *RequestController) Err() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.err
}

// Complete appends a user message for query and streams the answer. If the
// request cannot be sent the store is restored to its state before the call.
func (rc *RequestController) Complete(ctx context.Context, query string) (Result, error) {
	prev := rc.messages.Snapshot()
	next := append(prev[:len(prev):len(prev)], chat.NewUserMessage(query))
	rc.messages.Replace(next)

	result, err := rc.send(ctx, query, "", next)
	if err != nil && IsSetupFailure(err) {
		rc.messages.Replace(prev)
	}
	return result, err
}

// Reload drops the trailing assistant message and asks again with the user
// query that produced it. It is skipped when the store is empty, when the
// last message is not an assistant chat message, or while a request is in
// flight.
func (rc *RequestController) Reload(ctx context.Context) (Result, error) {
	if rc.Loading() {
		return Result{Outcome: OutcomeSkipped}, nil
	}

	prev := rc.messages.Snapshot()
	if len(prev) == 0 {
		return Result{Outcome: OutcomeSkipped}, nil
	}
	last := prev[len(prev)-1]
	if !last.IsAssistant() || last.Type != chat.KindChat {
		return Result{Outcome: OutcomeSkipped}, nil
	}

	base := prev[: len(prev)-1 : len(prev)-1]
	query, ok := chat.LastUserMessage(base)
	if !ok {
		rc.log.Warn("Reload skipped, no user message precedes the assistant message")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	rc.messages.Replace(base)
	result, err := rc.send(ctx, query.Content, last.ID, base)
	if err != nil && IsSetupFailure(err) {
		rc.messages.Replace(prev)
	}
	return result, err
}

// Stop cancels the in-flight request, if any. Content already streamed is
// kept and OnFinish is not called. Calling Stop when idle does nothing.
func (rc *RequestController) Stop() {
	rc.mu.Lock()
	tok := rc.active
	rc.active = nil
	rc.mu.Unlock()

	if tok == nil {
		return
	}
	tok.stopped.Store(true)
	tok.cancel()
	rc.log.Debug("Stop requested")
}

func (rc *RequestController) begin(cancel context.CancelFunc) *token {
	tok := &token{cancel: cancel}
	rc.mu.Lock()
	rc.active = tok
	rc.loading = true
	rc.err = nil
	rc.mu.Unlock()
	return tok
}

func (rc *RequestController) end(tok *token) {
	rc.mu.Lock()
	if rc.active == tok {
		rc.active = nil
	}
	rc.loading = false
	rc.mu.Unlock()
	tok.cancel()
}

// send issues one request and streams its answer on top of base, the
// message list as it stood when the request started.
func (rc *RequestController) send(ctx context.Context, query, reloadID string, base []chat.ChatMessage) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	tok := rc.begin(cancel)
	defer rc.end(tok)

	ctx, span := rc.tracer.Start(ctx, "chat.request", trace.WithAttributes(
		attribute.String("chat.session_id", rc.identity.SessionID),
		attribute.String("chat.app_id", rc.identity.AppID),
		attribute.Bool("chat.reload", reloadID != ""),
	))
	defer span.End()

	started := time.Now()
	log := rc.log
	if reloadID != "" {
		log = log.With("reload_id", reloadID)
	}
	log.Debug("Sending chat request", "query_length", len(query))

	run := &streamRun{rc: rc, ctx: ctx, span: span, tok: tok, log: log, started: started}

	resp, err := rc.client.Open(ctx, client.ChatRequest{
		Query:        query,
		ReloadID:     reloadID,
		AppID:        rc.identity.AppID,
		SessionID:    rc.identity.SessionID,
		APISessionID: rc.identity.APISessionID,
	})
	if err != nil {
		if tok.stopped.Load() {
			return run.cancelled(chat.ChatMessage{}, nil)
		}
		return run.fail(&RequestError{Kind: KindSetup, Err: err})
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := rc.listener.OnResponse(ctx, resp); err != nil {
		return run.fail(&RequestError{Kind: KindHook, Status: resp.StatusCode, Err: err})
	}

	assistant := chat.NewAssistantMessage()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return run.fail(&RequestError{
			Kind:   KindResponse,
			Status: resp.StatusCode,
			Err:    errors.New(responseText(resp.Body)),
		})
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return run.fail(&RequestError{Kind: KindEmptyBody, Status: resp.StatusCode, Err: errors.New(EmptyBodyMessage)})
	}

	return run.stream(stream.NewReader(resp.Body), base, assistant)
}

// responseText reads an error body, falling back to a fixed message when it
// is empty or unreadable.
func responseText(body io.Reader) string {
	if body == nil {
		return FallbackResponseMessage
	}
	raw, err := io.ReadAll(body)
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return FallbackResponseMessage
	}
	return string(raw)
}

// streamRun carries the per-request state of one send.
type streamRun struct {
	rc      *RequestController
	ctx     context.Context
	span    trace.Span
	tok     *token
	log     *logger.Logger
	started time.Time
}

func (r *streamRun) stream(reader *stream.Reader, base []chat.ChatMessage, assistant chat.ChatMessage) (Result, error) {
	rc := r.rc
	data := stream.StreamData{}
	var content strings.Builder

	publish := func() {
		next := make([]chat.ChatMessage, len(base), len(base)+1)
		copy(next, base)
		rc.messages.Replace(append(next, assistant))
	}
	defer func() {
		rc.chunks.Add(r.ctx, int64(reader.Chunks()))
		r.span.SetAttributes(attribute.Int("chat.chunks", reader.Chunks()))
	}()

	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.tok.stopped.Load() {
				return r.cancelled(assistant, data)
			}
			return r.fail(&RequestError{Kind: KindStream, Err: err})
		}

		switch frame.Kind {
		case stream.FrameData:
			if err := data.Merge(frame.Data); err != nil {
				_ = reader.Close()
				return r.fail(&RequestError{Kind: KindDecode, Err: err})
			}
		case stream.FrameContent:
			content.WriteString(frame.Text)
			assistant.Content = content.String()
			publish()
		}

		if r.tok.stopped.Load() {
			_ = reader.Close()
			return r.cancelled(assistant, data)
		}
	}

	// Stop may land between the last frame and EOF.
	if r.tok.stopped.Load() {
		return r.cancelled(assistant, data)
	}

	if id := data.ID(); id != "" {
		assistant.ID = id
		publish()
	}

	rc.listener.OnFinish(assistant, data.Clone())
	r.record(OutcomeFinished)
	r.log.Info("Chat stream finished",
		"chunks", reader.Chunks(),
		"content_length", len(assistant.Content),
		"message_id", assistant.ID)
	return Result{Outcome: OutcomeFinished, Message: assistant, Data: data}, nil
}

func (r *streamRun) cancelled(assistant chat.ChatMessage, data stream.StreamData) (Result, error) {
	r.record(OutcomeCancelled)
	r.span.AddEvent("cancelled")
	r.log.Info("Chat stream cancelled", "content_length", len(assistant.Content))
	return Result{Outcome: OutcomeCancelled, Message: assistant, Data: data}, nil
}

func (r *streamRun) fail(reqErr *RequestError) (Result, error) {
	rc := r.rc
	rc.listener.OnError(reqErr)

	rc.mu.Lock()
	rc.err = reqErr
	rc.mu.Unlock()

	r.record(-1, attribute.String("chat.error_kind", reqErr.Kind.String()))
	r.span.RecordError(reqErr)
	r.span.SetStatus(codes.Error, reqErr.Kind.String())
	r.log.Error("Chat request failed", "kind", reqErr.Kind.String(), "status", reqErr.Status, "error", reqErr.Err)
	return Result{}, reqErr
}

// record reports the request counter and duration. A negative outcome marks
// a failure.
func (r *streamRun) record(outcome Outcome, extra ...attribute.KeyValue) {
	label := "error"
	if outcome >= 0 {
		label = outcome.String()
	}
	attrs := metric.WithAttributes(append(extra, attribute.String("chat.outcome", label))...)
	r.rc.requests.Add(r.ctx, 1, attrs)
	r.rc.duration.Record(r.ctx, time.Since(r.started).Seconds(), attrs)
}
