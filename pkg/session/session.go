package session

import (
	"context"
	"sync"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/controllers"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/killallgit/chatstream/pkg/store"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Send, Retry and Submit while a request is in flight.
var ErrBusy = errors.New("a chat request is already in flight")

// Options configures a Session
type Options struct {
	Identity        chat.Identity
	Client          controllers.Opener
	Listener        controllers.Listener
	InitialInput    string
	InitialMessages []chat.ChatMessage
	InitialEvents   []chat.EventMessage
	Logger          *logger.Logger
	Tracer          trace.Tracer
	Meter           metric.Meter
}

// Session is the public surface of one chat: it owns the message and event
// stores and the request controller, and allows one request at a time.
type Session struct {
	identity   chat.Identity
	messages   *store.MessageStore
	events     *store.EventStore
	controller *controllers.RequestController
	gate       *semaphore.Weighted
	log        *logger.Logger

	inputMu sync.RWMutex
	input   string
}

func New(opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("session")
	}
	log = log.With("session_key", opts.Identity.Key())

	messages := store.NewMessageStore(opts.InitialMessages...)
	controller, err := controllers.NewRequestController(controllers.RequestOptions{
		Client:   opts.Client,
		Messages: messages,
		Identity: opts.Identity,
		Listener: opts.Listener,
		Logger:   log,
		Tracer:   opts.Tracer,
		Meter:    opts.Meter,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request controller")
	}

	return &Session{
		identity:   opts.Identity,
		messages:   messages,
		events:     store.NewEventStore(opts.InitialEvents...),
		controller: controller,
		gate:       semaphore.NewWeighted(1),
		log:        log,
		input:      opts.InitialInput,
	}, nil
}

// Identity returns the identifiers sent with every request.
func (s *Session) Identity() chat.Identity {
	return s.identity
}

// Key identifies the session's input state, "chat/<sessionId>".
func (s *Session) Key() string {
	return s.identity.Key()
}

// Send appends a user message and streams the answer. It blocks until the
// stream ends and returns ErrBusy if another request is running.
func (s *Session) Send(ctx context.Context, query string) (controllers.Result, error) {
	if !s.gate.TryAcquire(1) {
		return controllers.Result{}, ErrBusy
	}
	defer s.gate.Release(1)

	return s.controller.Complete(ctx, query)
}

// Retry re-asks the question behind the last assistant message.
func (s *Session) Retry(ctx context.Context) (controllers.Result, error) {
	if !s.gate.TryAcquire(1) {
		return controllers.Result{}, ErrBusy
	}
	defer s.gate.Release(1)

	return s.controller.Reload(ctx)
}

// Stop cancels the in-flight request. It is safe to call at any time.
func (s *Session) Stop() {
	s.controller.Stop()
}

// Submit sends the current input and clears it. Empty input is skipped.
func (s *Session) Submit(ctx context.Context) (controllers.Result, error) {
	if !s.gate.TryAcquire(1) {
		return controllers.Result{}, ErrBusy
	}
	defer s.gate.Release(1)

	s.inputMu.Lock()
	query := s.input
	if query == "" {
		s.inputMu.Unlock()
		return controllers.Result{Outcome: controllers.OutcomeSkipped}, nil
	}
	s.input = ""
	s.inputMu.Unlock()

	return s.controller.Complete(ctx, query)
}

// CanSubmit reports whether Send, Retry and Submit would be accepted now.
func (s *Session) CanSubmit() bool {
	return !s.controller.Loading()
}

func (s *Session) SetInput(input string) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	s.input = input
}

func (s *Session) Input() string {
	s.inputMu.RLock()
	defer s.inputMu.RUnlock()
	return s.input
}

func (s *Session) Loading() bool {
	return s.controller.Loading()
}

// Err is the last request error, cleared when the next request starts.
func (s *Session) Err() error {
	return s.controller.Err()
}

// Append adds a message to the end of the chat without sending anything.
func (s *Session) Append(msg chat.ChatMessage) {
	s.messages.Append(msg)
}

// UpdateMessage replaces the message with the given id. It reports false and
// changes nothing when no such message exists.
func (s *Session) UpdateMessage(id string, msg chat.ChatMessage) bool {
	ok := s.messages.Update(id, msg)
	if !ok {
		s.log.Debug("Update ignored for unknown message", "message_id", id)
	}
	return ok
}

func (s *Session) SetMessages(msgs []chat.ChatMessage) {
	s.messages.Replace(msgs)
}

func (s *Session) Messages() []chat.ChatMessage {
	return s.messages.Snapshot()
}

func (s *Session) SetEvents(events []chat.EventMessage) {
	s.events.Replace(events)
}

func (s *Session) AddEvent(event chat.EventMessage) {
	s.events.Append(event)
}

func (s *Session) Events() []chat.EventMessage {
	return s.events.Snapshot()
}

// AllMessages merges messages and events into one list ordered by creation
// time.
func (s *Session) AllMessages() []chat.Message {
	return chat.MergeByTime(s.messages.Snapshot(), s.events.Snapshot())
}

// SubscribeMessages calls fn with the chat messages after every change,
// including each streamed fragment.
func (s *Session) SubscribeMessages(fn func(msgs []chat.ChatMessage)) func() {
	return s.messages.Subscribe(fn)
}

// Subscribe calls fn with the merged view after every change to either
// store. Calls are serialized, so fn never runs concurrently with itself even
// when an event is added while a stream is publishing. The returned function
// unsubscribes.
func (s *Session) Subscribe(fn func(all []chat.Message)) func() {
	var mu sync.Mutex
	deliver := func() {
		mu.Lock()
		defer mu.Unlock()
		fn(chat.MergeByTime(s.messages.Snapshot(), s.events.Snapshot()))
	}
	stopMessages := s.messages.Subscribe(func([]chat.ChatMessage) { deliver() })
	stopEvents := s.events.Subscribe(func([]chat.EventMessage) { deliver() })
	return func() {
		stopMessages()
		stopEvents()
	}
}
