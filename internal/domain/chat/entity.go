// Package chat contains the core domain logic for conversations, messages,
// and intent resolution.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind distinguishes plain text replies from recipe-bearing ones.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindRecipe MessageKind = "recipe"
)

// Conversation groups the messages of one logical chat thread, identified
// by the (user, session key) pair. A conversation may carry a pinned intent
// that overrides classification for every message routed through it.
type Conversation struct {
	id        uuid.UUID
	userID    uuid.UUID
	sessionID string
	intent    *Intent
	metadata  map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation creates a conversation for a user session.
func NewConversation(userID uuid.UUID, sessionID string) (*Conversation, error) {
	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	now := time.Now()
	return &Conversation{
		id:        uuid.New(),
		userID:    userID,
		sessionID: sessionID,
		metadata:  map[string]any{},
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RehydrateConversation reconstructs a conversation from storage.
func RehydrateConversation(id, userID uuid.UUID, sessionID string, intent *Intent, metadata map[string]any, createdAt, updatedAt time.Time) *Conversation {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Conversation{
		id:        id,
		userID:    userID,
		sessionID: sessionID,
		intent:    intent,
		metadata:  metadata,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() uuid.UUID { return c.id }

// UserID returns the owning user.
func (c *Conversation) UserID() uuid.UUID { return c.userID }

// SessionID returns the client-supplied session key.
func (c *Conversation) SessionID() string { return c.sessionID }

// PinnedIntent returns the manual intent override, if any.
func (c *Conversation) PinnedIntent() *Intent { return c.intent }

// Metadata returns the free-form metadata map.
func (c *Conversation) Metadata() map[string]any { return c.metadata }

// CreatedAt returns when the conversation was created.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns when the conversation was last modified.
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// PinIntent pins a manual intent on the conversation. Pinning overwrites
// any previous pin, including on a pre-existing conversation.
func (c *Conversation) PinIntent(intent Intent) error {
	if !intent.IsValid() {
		return ErrUnknownIntent
	}
	c.intent = &intent
	c.updatedAt = time.Now()
	return nil
}

// OwnedBy reports whether the conversation belongs to the given user.
func (c *Conversation) OwnedBy(userID uuid.UUID) bool {
	return c.userID == userID
}

// Message is a single turn within a conversation. Messages are immutable
// once written and ordered by creation timestamp.
type Message struct {
	id             uuid.UUID
	conversationID uuid.UUID
	role           Role
	content        string
	kind           MessageKind
	metadata       map[string]any
	createdAt      time.Time
}

// NewMessage creates a message within a conversation. Empty content is
// allowed for user messages that carry only images; the router enforces the
// text-or-images rule before any message is created.
func NewMessage(conversationID uuid.UUID, role Role, content string, kind MessageKind) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, ErrInvalidRole
	}
	if kind != MessageKindText && kind != MessageKindRecipe {
		return nil, ErrInvalidMessageKind
	}

	return &Message{
		id:             uuid.New(),
		conversationID: conversationID,
		role:           role,
		content:        content,
		kind:           kind,
		metadata:       map[string]any{},
		createdAt:      time.Now(),
	}, nil
}

// RehydrateMessage reconstructs a message from storage.
func RehydrateMessage(id, conversationID uuid.UUID, role Role, content string, kind MessageKind, metadata map[string]any, createdAt time.Time) *Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Message{
		id:             id,
		conversationID: conversationID,
		role:           role,
		content:        content,
		kind:           kind,
		metadata:       metadata,
		createdAt:      createdAt,
	}
}

// ID returns the message identifier.
func (m *Message) ID() uuid.UUID { return m.id }

// ConversationID returns the owning conversation.
func (m *Message) ConversationID() uuid.UUID { return m.conversationID }

// Role returns the sender role.
func (m *Message) Role() Role { return m.role }

// Content returns the textual content.
func (m *Message) Content() string { return m.content }

// Kind returns the message kind.
func (m *Message) Kind() MessageKind { return m.kind }

// Metadata returns the free-form metadata map.
func (m *Message) Metadata() map[string]any { return m.metadata }

// CreatedAt returns when the message was written.
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// SetMetadata attaches a metadata entry before the message is persisted.
func (m *Message) SetMetadata(key string, value any) {
	m.metadata[key] = value
}
