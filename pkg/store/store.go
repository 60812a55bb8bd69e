package store

import (
	"sync"

	"github.com/killallgit/chatstream/pkg/chat"
)

// Identifiable is an entry the store can locate by id.
type Identifiable interface {
	MessageID() string
}

// Listener receives a private copy of the list after every change.
type Listener[T any] func(items []T)

// Store is an ordered, mutable list with change notification. Reads always
// observe the latest write, so a caller issuing many updates in a row can
// read back its own result without waiting for listeners.
type Store[T Identifiable] struct {
	mu        sync.RWMutex
	items     []T
	listeners map[int]Listener[T]
	nextID    int

	notifyMu sync.Mutex
}

type (
	MessageStore = Store[chat.ChatMessage]
	EventStore   = Store[chat.EventMessage]
)

func New[T Identifiable](initial ...T) *Store[T] {
	items := make([]T, len(initial))
	copy(items, initial)
	return &Store[T]{
		items:     items,
		listeners: make(map[int]Listener[T]),
	}
}

func NewMessageStore(initial ...chat.ChatMessage) *MessageStore {
	return New(initial...)
}

func NewEventStore(initial ...chat.EventMessage) *EventStore {
	return New(initial...)
}

// Snapshot returns a copy of the current list.
func (s *Store[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Last returns the tail entry, if any.
func (s *Store[T]) Last() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Find returns the first entry with the given id.
func (s *Store[T]) Find(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.MessageID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Replace swaps in a whole new list.
func (s *Store[T]) Replace(items []T) {
	s.mu.Lock()
	s.items = clone(items)
	snapshot := clone(s.items)
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Store[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	s.items = append(s.items, items...)
	snapshot := clone(s.items)
	s.mu.Unlock()

	s.notify(snapshot)
}

// Update replaces the first entry whose id matches. A miss is not an error:
// an update can legitimately race a rollback. It reports whether an entry was
// replaced.
func (s *Store[T]) Update(id string, item T) bool {
	s.mu.Lock()
	index := -1
	for i, existing := range s.items {
		if existing.MessageID() == id {
			index = i
			break
		}
	}
	if index == -1 {
		s.mu.Unlock()
		return false
	}
	s.items[index] = item
	snapshot := clone(s.items)
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store[T]) Subscribe(fn Listener[T]) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify delivers one snapshot at a time. Listeners run outside the data lock
// and may read the store, but must not write to it synchronously.
func (s *Store[T]) notify(snapshot []T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	listeners := make([]Listener[T], 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(clone(snapshot))
	}
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
