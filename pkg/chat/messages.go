package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind discriminates chat messages from event messages in the merged view.
type Kind string

const (
	KindChat  Kind = "chat"
	KindEvent Kind = "event"
)

// Message is anything that can be placed on the merged, time-ordered view.
type Message interface {
	MessageID() string
	MessageKind() Kind
	Time() time.Time
}

// ChatMessage is a user or assistant turn. An assistant message that is still
// streaming has an empty ID until the server assigns one.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Type      Kind      `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventMessage is an out-of-band notification such as a tool call or a status
// update. Payload is opaque to the session.
type EventMessage struct {
	ID        string          `json:"id"`
	Type      Kind            `json:"type"`
	Name      string          `json:"name,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      RoleUser,
		Type:      KindChat,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage returns the empty placeholder a stream writes into.
func NewAssistantMessage() ChatMessage {
	return ChatMessage{
		Role:      RoleAssistant,
		Type:      KindChat,
		CreatedAt: time.Now(),
	}
}

func NewEventMessage(name string, payload json.RawMessage) EventMessage {
	return EventMessage{
		ID:        uuid.NewString(),
		Type:      KindEvent,
		Name:      name,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func (m ChatMessage) MessageID() string { return m.ID }
func (m ChatMessage) MessageKind() Kind { return m.Type }
func (m ChatMessage) Time() time.Time   { return m.CreatedAt }

func (m ChatMessage) IsUser() bool {
	return m.Role == RoleUser
}

func (m ChatMessage) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsStreaming reports whether m is an assistant message that has not been
// given a server id yet.
func (m ChatMessage) IsStreaming() bool {
	return m.IsAssistant() && m.ID == ""
}

func (m ChatMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

func (m EventMessage) MessageID() string { return m.ID }
func (m EventMessage) MessageKind() Kind { return m.Type }
func (m EventMessage) Time() time.Time   { return m.CreatedAt }

// Identity carries the caller-owned identifiers threaded into every request.
type Identity struct {
	AppID        string `json:"appId" mapstructure:"app_id"`
	SessionID    string `json:"sessionId" mapstructure:"session_id"`
	APISessionID string `json:"apiSessionId" mapstructure:"api_session_id"`
}

// Key is the per-session cache key used for input state.
func (i Identity) Key() string {
	return "chat/" + i.SessionID
}

// LastUserMessage returns the most recent user message in msgs.
func LastUserMessage(msgs []ChatMessage) (ChatMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser() {
			return msgs[i], true
		}
	}
	return ChatMessage{}, false
}
