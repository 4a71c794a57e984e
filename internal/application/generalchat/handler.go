// Package generalchat produces conversational replies grounded in a
// bounded window of prior conversation turns.
package generalchat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// historyWindow bounds how many prior messages are replayed to the model.
const historyWindow = 10

const systemPrompt = `You are a friendly cooking assistant. You can answer cooking questions, suggest substitutions, explain techniques, and chat about food.

You cannot search the user's saved recipes and you cannot save new recipes in this conversation mode. If the user asks for either, tell them to rephrase as a search ("find my...") or a save request ("add this recipe: ...") instead of pretending you did it.`

// apology is the fixed degraded reply used when both completion tiers fail.
const apology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// Fallback identifies which tier of the reply chain produced the response.
type Fallback string

const (
	FallbackNone      Fallback = ""
	FallbackNoHistory Fallback = "no_history"
	FallbackApology   Fallback = "apology"
)

// Handler answers general cooking conversation.
type Handler struct {
	completion outbound.ChatCompletionService
	repo       outbound.ConversationRepository
	logger     *zap.Logger
}

// NewHandler creates a new general chat handler.
func NewHandler(completion outbound.ChatCompletionService, repo outbound.ConversationRepository, logger *zap.Logger) *Handler {
	return &Handler{
		completion: completion,
		repo:       repo,
		logger:     logger.Named("general_chat"),
	}
}

// Handle produces a conversational reply. The chain is history-aware call,
// then single-turn call, then the fixed apology; each step down is logged
// and reported so callers can record which fallback fired. Handle never
// returns an error because conversational context is a quality enhancement,
// not a correctness requirement.
func (h *Handler) Handle(ctx context.Context, conversationID uuid.UUID, message string) (string, Fallback) {
	history := h.loadHistory(ctx, conversationID, message)

	reply, err := h.completion.CompleteWithHistory(ctx, systemPrompt, history)
	if err == nil {
		return reply, FallbackNone
	}
	h.logger.Warn("history-aware completion failed, retrying without history",
		zap.String("conversation_id", conversationID.String()),
		zap.Error(err),
	)

	reply, err = h.completion.Complete(ctx, systemPrompt, message, nil)
	if err == nil {
		return reply, FallbackNoHistory
	}
	h.logger.Error("single-turn completion failed, returning apology",
		zap.String("conversation_id", conversationID.String()),
		zap.Error(err),
	)

	return apology, FallbackApology
}

// loadHistory assembles the most recent turns oldest-first, ending with the
// current user message. A history load failure degrades to the current
// message alone.
func (h *Handler) loadHistory(ctx context.Context, conversationID uuid.UUID, message string) []outbound.ChatMessage {
	recent, err := h.repo.RecentMessages(ctx, conversationID, historyWindow)
	if err != nil {
		h.logger.Warn("failed to load conversation history",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
		return []outbound.ChatMessage{{Role: string(chat.RoleUser), Content: message}}
	}

	// RecentMessages returns newest first; the model wants oldest first.
	history := make([]outbound.ChatMessage, 0, len(recent)+1)
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if m.Content() == "" {
			continue
		}
		history = append(history, outbound.ChatMessage{
			Role:    string(m.Role()),
			Content: m.Content(),
		})
	}

	// The current user message is persisted before this handler runs, so it
	// is usually already the newest entry of the window.
	if len(history) == 0 || history[len(history)-1].Content != message {
		history = append(history, outbound.ChatMessage{Role: string(chat.RoleUser), Content: message})
	}

	return history
}
