// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychat/v1/internal/domain/chat"
)

// ErrBranchUnavailable marks a retrieval branch whose backing table or
// index does not exist. The branch degrades to empty results; the error
// never aborts the whole search.
var ErrBranchUnavailable = errors.New("retrieval branch unavailable")

// ChatMessage is one turn passed to the history-aware completion call.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatCompletionService defines the interface for large-language-model calls.
// Implementations select a vision-capable model when images are attached and
// a text model otherwise.
type ChatCompletionService interface {
	// Complete performs a single-turn call with an optional image list.
	// Images are data URLs or https URLs forwarded to the model as-is.
	Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error)

	// CompleteWithHistory performs a multi-turn call with prior conversation
	// turns ordered oldest-first.
	CompleteWithHistory(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error)
}

// EmbeddingService turns text into a fixed-length numeric vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache caches embedding vectors keyed by input text. A nil cache
// is valid; callers fall through to the embedding service.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, vector []float32, ttl time.Duration) error
}

// ConversationSummary is the denormalized row returned when listing
// conversations without selecting one.
type ConversationSummary struct {
	ID             uuid.UUID
	Title          string
	SessionID      string
	SelectedIntent *chat.Intent
	CreatedAt      time.Time
	UpdatedAt      time.Time
	MessageCount   int
}

// ConversationRepository defines persistence for conversations and messages.
// The store is consumed, not owned, by the router.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *chat.Conversation) error
	UpdateConversation(ctx context.Context, conversation *chat.Conversation) error

	// FindLatestBySession returns the most recently created conversation for
	// the (user, session key) pair, or chat.ErrConversationMissing.
	FindLatestBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*chat.Conversation, error)

	FindConversation(ctx context.Context, userID, conversationID uuid.UUID) (*chat.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error)
	DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error
	DeleteAllConversations(ctx context.Context, userID uuid.UUID) error

	CreateMessage(ctx context.Context, message *chat.Message) error

	// ListMessages returns messages ordered by creation timestamp ascending.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*chat.Message, error)

	// RecentMessages returns the n most recent messages, newest first.
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*chat.Message, error)
}

// RecipeRow is a denormalized recipe row from the external recipe store.
type RecipeRow struct {
	ID           uuid.UUID
	Title        string
	Description  string
	Ingredients  []string
	Instructions []string
	SearchText   string
}

// RecipeEmbedding pairs a recipe row with its stored embedding vector.
type RecipeEmbedding struct {
	Row       RecipeRow
	Embedding []float32
}

// LexicalMatch is a lexical-branch hit with its text-relevance rank in [0,1].
type LexicalMatch struct {
	Row  RecipeRow
	Rank float64
}

// RecipeSearchRepository exposes the two retrieval projections of the
// external recipe store. A missing backing table surfaces as
// ErrBranchUnavailable so a single branch can degrade without aborting
// the whole search.
type RecipeSearchRepository interface {
	VectorCandidates(ctx context.Context, userID uuid.UUID) ([]RecipeEmbedding, error)
	LexicalSearch(ctx context.Context, userID uuid.UUID, query string, limit int) ([]LexicalMatch, error)
}

// WorkflowUser identifies the requesting user in a workflow event envelope.
type WorkflowUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// WorkflowEventData is the data section of a workflow event envelope.
type WorkflowEventData struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	Intent    string         `json:"intent,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// WorkflowEvent is the envelope dispatched to the external workflow engine.
type WorkflowEvent struct {
	Event     string            `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	Data      WorkflowEventData `json:"data"`
	User      *WorkflowUser     `json:"user"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// WorkflowReply is the parsed reply from the workflow engine. Parsed is
// false when none of the known reply keys were present and Text carries
// the raw response body instead.
type WorkflowReply struct {
	Text   string
	Parsed bool
}

// WorkflowGateway dispatches events to the external workflow engine.
// Failures never raise past the router's failure boundary; callers supply
// the apology text used when the engine is unreachable.
type WorkflowGateway interface {
	Dispatch(ctx context.Context, event WorkflowEvent) (WorkflowReply, error)
	Enabled() bool
}
