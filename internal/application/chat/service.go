// Package chat orchestrates message handling: it resolves the routing
// intent, dispatches to exactly one handler, and guarantees every
// conversation turn ends in a persisted assistant message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/application/classifier"
	"github.com/pantrychat/v1/internal/application/extractor"
	"github.com/pantrychat/v1/internal/application/generalchat"
	"github.com/pantrychat/v1/internal/application/search"
	domain "github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/domain/recipe"
	"github.com/pantrychat/v1/internal/ports/outbound"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

// Degraded replies. These are fixed strings so tests and operators can
// recognize which failure boundary produced them.
const (
	extractionApology  = "I'm sorry, I couldn't process that recipe right now. Please try again in a moment."
	searchApology      = "I'm sorry, I'm having trouble searching your recipes right now. Please try again in a moment."
	searchUnavailable  = "Recipe search isn't available right now. Please try again later."
	historyFetchLimit  = 50
	defaultResultCount = 5
)

// HandleMessageInput carries one inbound chat message.
type HandleMessageInput struct {
	UserID       uuid.UUID
	UserEmail    string
	UserName     string
	Message      string
	Images       []string
	SessionID    string
	ManualIntent string
	Context      map[string]any
}

// MessageView is the response-envelope projection of a persisted message.
type MessageView struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentMetadata reports how the routing intent was resolved.
type IntentMetadata struct {
	Intent     string  `json:"intent"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Envelope is the uniform response for a handled message.
type Envelope struct {
	Response       MessageView    `json:"response"`
	Recipe         *recipe.Recipe `json:"recipe,omitempty"`
	ConversationID uuid.UUID      `json:"conversationId"`
	SessionID      string         `json:"sessionId"`
	IntentMetadata IntentMetadata `json:"intentMetadata"`
}

// Service is the router: the single entry point for conversation turns.
type Service struct {
	repo        outbound.ConversationRepository
	classifier  *classifier.Classifier
	extractor   *extractor.Extractor
	generalChat *generalchat.Handler
	engine      *search.Engine
	workflow    outbound.WorkflowGateway
	logger      *zap.Logger
}

// NewService creates the chat router.
func NewService(
	repo outbound.ConversationRepository,
	intentClassifier *classifier.Classifier,
	recipeExtractor *extractor.Extractor,
	generalChat *generalchat.Handler,
	engine *search.Engine,
	workflow outbound.WorkflowGateway,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:        repo,
		classifier:  intentClassifier,
		extractor:   recipeExtractor,
		generalChat: generalChat,
		engine:      engine,
		workflow:    workflow,
		logger:      logger.Named("chat_router"),
	}
}

// HandleMessage runs one conversation turn. The user message is persisted
// before any AI call so a crash mid-routing never loses it; handler
// failures are converted to apologetic assistant text, so the turn always
// ends with a persisted assistant message and a success envelope. Only
// edge validation errors propagate as request failures.
func (s *Service) HandleMessage(ctx context.Context, in HandleMessageInput) (*Envelope, error) {
	if in.UserID == uuid.Nil {
		return nil, apperrors.NewUnauthorizedError("")
	}
	if strings.TrimSpace(in.Message) == "" && len(in.Images) == 0 {
		return nil, apperrors.NewBadRequestError("message text or images required")
	}

	var manualIntent *domain.Intent
	if in.ManualIntent != "" {
		parsed, err := domain.ParseIntent(in.ManualIntent)
		if err != nil {
			return nil, apperrors.NewBadRequestError(fmt.Sprintf("unknown intent %q", in.ManualIntent))
		}
		manualIntent = &parsed
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conversation, err := s.resolveConversation(ctx, in.UserID, sessionID, manualIntent)
	if err != nil {
		return nil, err
	}

	if _, err := s.persistUserMessage(ctx, conversation.ID(), in); err != nil {
		return nil, err
	}

	result := s.resolveIntent(ctx, in, manualIntent)

	start := time.Now()
	reply := s.dispatch(ctx, conversation, in, result)
	duration := time.Since(start)

	assistant, err := s.persistAssistantMessage(ctx, conversation.ID(), reply, result, duration)
	if err != nil {
		return nil, err
	}

	s.logger.Info("message handled",
		zap.String("user_id", in.UserID.String()),
		zap.String("conversation_id", conversation.ID().String()),
		zap.String("intent", string(result.Intent)),
		zap.String("intent_source", string(result.Source)),
		zap.Duration("duration", duration),
	)

	return &Envelope{
		Response: MessageView{
			ID:        assistant.ID(),
			Content:   assistant.Content(),
			Sender:    string(assistant.Role()),
			Timestamp: assistant.CreatedAt(),
		},
		Recipe:         reply.recipe,
		ConversationID: conversation.ID(),
		SessionID:      sessionID,
		IntentMetadata: IntentMetadata{
			Intent:     string(result.Intent),
			Source:     string(result.Source),
			Reason:     result.Reason,
			Confidence: result.Confidence,
		},
	}, nil
}

// resolveConversation finds the most recently created conversation for the
// session key or creates one. Resolution is last-created-wins; a supplied
// manual intent overwrites any existing pin.
func (s *Service) resolveConversation(ctx context.Context, userID uuid.UUID, sessionID string, manualIntent *domain.Intent) (*domain.Conversation, error) {
	conversation, err := s.repo.FindLatestBySession(ctx, userID, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConversationMissing):
		conversation, err = domain.NewConversation(userID, sessionID)
		if err != nil {
			return nil, apperrors.NewBadRequestError("invalid conversation parameters").WithCause(err)
		}
		if manualIntent != nil {
			if err := conversation.PinIntent(*manualIntent); err != nil {
				return nil, apperrors.NewBadRequestError("invalid intent").WithCause(err)
			}
		}
		if err := s.repo.CreateConversation(ctx, conversation); err != nil {
			return nil, apperrors.NewConversationStoreError("failed to create conversation", err)
		}
		return conversation, nil
	default:
		return nil, apperrors.NewConversationStoreError("failed to resolve conversation", err)
	}

	if manualIntent != nil {
		if err := conversation.PinIntent(*manualIntent); err != nil {
			return nil, apperrors.NewBadRequestError("invalid intent").WithCause(err)
		}
		if err := s.repo.UpdateConversation(ctx, conversation); err != nil {
			return nil, apperrors.NewConversationStoreError("failed to pin intent", err)
		}
	}

	return conversation, nil
}

func (s *Service) persistUserMessage(ctx context.Context, conversationID uuid.UUID, in HandleMessageInput) (*domain.Message, error) {
	message, err := domain.NewMessage(conversationID, domain.RoleUser, in.Message, domain.MessageKindText)
	if err != nil {
		return nil, apperrors.NewBadRequestError("invalid message").WithCause(err)
	}
	if len(in.Images) > 0 {
		message.SetMetadata("image_count", len(in.Images))
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, apperrors.NewConversationStoreError("failed to persist message", err)
	}
	return message, nil
}

// resolveIntent uses the manual override when supplied; classification is
// skipped entirely in that case.
func (s *Service) resolveIntent(ctx context.Context, in HandleMessageInput, manualIntent *domain.Intent) domain.IntentResult {
	if manualIntent != nil {
		return domain.IntentResult{
			Intent:     *manualIntent,
			Reason:     "manual override",
			Confidence: 1.0,
			Source:     domain.IntentSourceManual,
		}
	}
	return s.classifier.Classify(ctx, in.Message, in.Images)
}

// handlerReply is the outcome of one dispatch branch. Branches never fail:
// internal errors become apologetic text here, inside the failure boundary.
type handlerReply struct {
	content  string
	kind     domain.MessageKind
	recipe   *recipe.Recipe
	fallback string
}

// dispatch invokes exactly one handler for the routing intent. The switch
// is exhaustive over the closed intent set.
func (s *Service) dispatch(ctx context.Context, conversation *domain.Conversation, in HandleMessageInput, result domain.IntentResult) handlerReply {
	switch result.Intent {
	case domain.IntentRecipeExtraction:
		return s.handleExtraction(ctx, in)
	case domain.IntentRAGSearch:
		return s.handleSearch(ctx, conversation, in)
	case domain.IntentGeneralChat:
		return s.handleGeneralChat(ctx, conversation, in)
	default:
		// Unreachable: resolution only produces the three known intents.
		s.logger.Error("dispatch reached with unknown intent", zap.String("intent", string(result.Intent)))
		reply, fallback := s.generalChat.Handle(ctx, conversation.ID(), in.Message)
		return handlerReply{content: reply, kind: domain.MessageKindText, fallback: string(fallback)}
	}
}

func (s *Service) handleExtraction(ctx context.Context, in HandleMessageInput) handlerReply {
	rec, err := s.extractor.Extract(ctx, in.Message, in.Images)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeExtractionInvalid {
			// Validation failures carry a readable, user-facing reason.
			return handlerReply{content: apperrors.UserMessage(err), kind: domain.MessageKindText, fallback: "extraction_invalid"}
		}
		s.logger.Error("recipe extraction failed", zap.Error(err))
		return handlerReply{content: extractionApology, kind: domain.MessageKindText, fallback: "apology"}
	}

	content := fmt.Sprintf("I've extracted \"%s\" with %d ingredients and %d steps. Save it to your collection?",
		rec.Title, len(rec.Ingredients), len(rec.Instructions))
	return handlerReply{content: content, kind: domain.MessageKindRecipe, recipe: rec}
}

// handleSearch satisfies rag_search either by delegating to the external
// workflow engine, when configured, or by the in-process retrieval engine.
func (s *Service) handleSearch(ctx context.Context, conversation *domain.Conversation, in HandleMessageInput) handlerReply {
	if s.workflow != nil && s.workflow.Enabled() {
		return s.handleWorkflowSearch(ctx, conversation, in)
	}

	if s.engine == nil {
		return handlerReply{content: searchUnavailable, kind: domain.MessageKindText, fallback: "search_disabled"}
	}

	results, err := s.engine.Search(ctx, in.UserID, in.Message, 0, search.TypeHybrid)
	if err != nil {
		s.logger.Error("in-process search failed", zap.Error(err))
		return handlerReply{content: searchApology, kind: domain.MessageKindText, fallback: "apology"}
	}

	return handlerReply{content: formatResults(in.Message, results), kind: domain.MessageKindText}
}

func (s *Service) handleWorkflowSearch(ctx context.Context, conversation *domain.Conversation, in HandleMessageInput) handlerReply {
	event := outbound.WorkflowEvent{
		Event:     string(domain.IntentRAGSearch),
		Timestamp: time.Now().UTC(),
		Data: outbound.WorkflowEventData{
			ID:        uuid.NewString(),
			Content:   in.Message,
			Type:      "chat_message",
			Intent:    string(domain.IntentRAGSearch),
			SessionID: conversation.SessionID(),
			Context:   in.Context,
		},
		User: &outbound.WorkflowUser{
			ID:    in.UserID.String(),
			Email: in.UserEmail,
			Name:  in.UserName,
		},
	}

	reply, err := s.workflow.Dispatch(ctx, event)
	if err != nil {
		s.logger.Warn("workflow search dispatch failed", zap.Error(err))
		return handlerReply{content: searchApology, kind: domain.MessageKindText, fallback: "webhook_unavailable"}
	}
	return handlerReply{content: reply.Text, kind: domain.MessageKindText}
}

func (s *Service) handleGeneralChat(ctx context.Context, conversation *domain.Conversation, in HandleMessageInput) handlerReply {
	reply, fallback := s.generalChat.Handle(ctx, conversation.ID(), in.Message)
	return handlerReply{content: reply, kind: domain.MessageKindText, fallback: string(fallback)}
}

func (s *Service) persistAssistantMessage(ctx context.Context, conversationID uuid.UUID, reply handlerReply, result domain.IntentResult, duration time.Duration) (*domain.Message, error) {
	message, err := domain.NewMessage(conversationID, domain.RoleAssistant, reply.content, reply.kind)
	if err != nil {
		return nil, apperrors.NewInternalError("invalid assistant message").WithCause(err)
	}

	message.SetMetadata("intent", string(result.Intent))
	message.SetMetadata("intent_source", string(result.Source))
	if result.Reason != "" {
		message.SetMetadata("intent_reason", result.Reason)
	}
	message.SetMetadata("intent_confidence", result.Confidence)
	message.SetMetadata("duration_ms", duration.Milliseconds())
	if reply.fallback != "" {
		message.SetMetadata("fallback", reply.fallback)
	}
	if reply.recipe != nil {
		message.SetMetadata("recipe", reply.recipe)
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, apperrors.NewConversationStoreError("failed to persist assistant message", err)
	}
	return message, nil
}

// formatResults renders an ordered result list as conversational text.
func formatResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("I couldn't find any recipes matching %q in your collection.", query)
	}

	shown := results
	if len(shown) > defaultResultCount {
		shown = shown[:defaultResultCount]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d recipe(s) matching %q:\n", len(results), query)
	for i, r := range shown {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Title)
		if r.Description != "" {
			fmt.Fprintf(&b, " — %s", r.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// HistoryMessage is one message of a conversation history listing.
type HistoryMessage struct {
	ID        uuid.UUID      `json:"id"`
	Content   string         `json:"content"`
	Sender    string         `json:"sender"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ConversationListing is the summary row returned when no conversation is
// selected.
type ConversationListing struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	SessionID      string    `json:"sessionId"`
	SelectedIntent *string   `json:"selectedIntent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	MessageCount   int       `json:"messageCount"`
}

// History returns either the ordered messages of one conversation or, when
// conversationID is nil, the caller's conversation summaries.
func (s *Service) History(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, limit int) ([]HistoryMessage, []ConversationListing, error) {
	if limit <= 0 {
		limit = historyFetchLimit
	}

	if conversationID == nil {
		summaries, err := s.repo.ListConversations(ctx, userID)
		if err != nil {
			return nil, nil, apperrors.NewConversationStoreError("failed to list conversations", err)
		}
		listings := make([]ConversationListing, 0, len(summaries))
		for _, sum := range summaries {
			var intent *string
			if sum.SelectedIntent != nil {
				v := string(*sum.SelectedIntent)
				intent = &v
			}
			listings = append(listings, ConversationListing{
				ID:             sum.ID,
				Title:          sum.Title,
				SessionID:      sum.SessionID,
				SelectedIntent: intent,
				CreatedAt:      sum.CreatedAt,
				UpdatedAt:      sum.UpdatedAt,
				MessageCount:   sum.MessageCount,
			})
		}
		return nil, listings, nil
	}

	if _, err := s.ownedConversation(ctx, userID, *conversationID); err != nil {
		return nil, nil, err
	}

	messages, err := s.repo.ListMessages(ctx, *conversationID, limit)
	if err != nil {
		return nil, nil, apperrors.NewConversationStoreError("failed to list messages", err)
	}

	out := make([]HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, HistoryMessage{
			ID:        m.ID(),
			Content:   m.Content(),
			Sender:    string(m.Role()),
			Kind:      string(m.Kind()),
			Metadata:  m.Metadata(),
			Timestamp: m.CreatedAt(),
		})
	}
	return out, nil, nil
}

// DeleteHistory deletes one conversation, or every conversation of the
// caller when conversationID is nil.
func (s *Service) DeleteHistory(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) error {
	if conversationID == nil {
		if err := s.repo.DeleteAllConversations(ctx, userID); err != nil {
			return apperrors.NewConversationStoreError("failed to delete conversations", err)
		}
		return nil
	}

	if _, err := s.ownedConversation(ctx, userID, *conversationID); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, userID, *conversationID); err != nil {
		return apperrors.NewConversationStoreError("failed to delete conversation", err)
	}
	return nil
}

func (s *Service) ownedConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.repo.FindConversation(ctx, userID, conversationID)
	if err != nil {
		// Cross-user access reads as absence, not as a permission error.
		if errors.Is(err, domain.ErrConversationMissing) || errors.Is(err, domain.ErrConversationNotOwn) {
			return nil, apperrors.NewNotFoundError("conversation")
		}
		return nil, apperrors.NewConversationStoreError("failed to load conversation", err)
	}
	if !conversation.OwnedBy(userID) {
		return nil, apperrors.NewNotFoundError("conversation")
	}
	return conversation, nil
}
