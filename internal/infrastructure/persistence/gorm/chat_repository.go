package gorm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// summaryTitleLimit bounds the derived conversation title length.
const summaryTitleLimit = 60

// ChatRepository implements the conversation repository interface using GORM
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new conversation repository
func NewChatRepository(db *gorm.DB) outbound.ConversationRepository {
	return &ChatRepository{db: db}
}

// CreateConversation persists a new conversation
func (r *ChatRepository) CreateConversation(ctx context.Context, conversation *chat.Conversation) error {
	model := ConversationToModel(conversation)

	if result := r.db.WithContext(ctx).Create(model); result.Error != nil {
		return result.Error
	}
	return nil
}

// UpdateConversation persists conversation changes (pinned intent, metadata)
func (r *ChatRepository) UpdateConversation(ctx context.Context, conversation *chat.Conversation) error {
	model := ConversationToModel(conversation)

	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return chat.ErrConversationMissing
	}
	return nil
}

// FindLatestBySession returns the most recently created conversation for
// the (user, session key) pair. Duplicate conversations for one session
// key are possible under concurrent first messages; last-created-wins.
func (r *ChatRepository) FindLatestBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*chat.Conversation, error) {
	var model ConversationModel

	result := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at DESC").
		First(&model)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, chat.ErrConversationMissing
		}
		return nil, result.Error
	}

	return ModelToConversation(&model), nil
}

// FindConversation returns a conversation by id, scoped to its owner.
func (r *ChatRepository) FindConversation(ctx context.Context, userID, conversationID uuid.UUID) (*chat.Conversation, error) {
	var model ConversationModel

	result := r.db.WithContext(ctx).First(&model, "id = ?", conversationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, chat.ErrConversationMissing
		}
		return nil, result.Error
	}

	if model.UserID != userID {
		return nil, chat.ErrConversationNotOwn
	}

	return ModelToConversation(&model), nil
}

// ListConversations returns conversation summaries for a user, most
// recently updated first. Titles are derived from the first user message.
func (r *ChatRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]outbound.ConversationSummary, error) {
	var models []ConversationModel

	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	summaries := make([]outbound.ConversationSummary, 0, len(models))
	for i := range models {
		model := &models[i]

		var count int64
		if err := r.db.WithContext(ctx).Model(&MessageModel{}).
			Where("conversation_id = ?", model.ID).
			Count(&count).Error; err != nil {
			return nil, err
		}

		title, err := r.deriveTitle(ctx, model.ID)
		if err != nil {
			return nil, err
		}

		var intent *chat.Intent
		if model.SelectedIntent != nil {
			if parsed, parseErr := chat.ParseIntent(*model.SelectedIntent); parseErr == nil {
				intent = &parsed
			}
		}

		summaries = append(summaries, outbound.ConversationSummary{
			ID:             model.ID,
			Title:          title,
			SessionID:      model.SessionID,
			SelectedIntent: intent,
			CreatedAt:      model.CreatedAt,
			UpdatedAt:      model.UpdatedAt,
			MessageCount:   int(count),
		})
	}

	return summaries, nil
}

// deriveTitle builds a summary title from the conversation's first user
// message, truncated to a display-friendly length.
func (r *ChatRepository) deriveTitle(ctx context.Context, conversationID uuid.UUID) (string, error) {
	var first MessageModel

	result := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, string(chat.RoleUser)).
		Order("created_at ASC").
		First(&first)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "New conversation", nil
		}
		return "", result.Error
	}

	title := first.Content
	if title == "" {
		title = "Image message"
	}
	if len(title) > summaryTitleLimit {
		title = title[:summaryTitleLimit-3] + "..."
	}
	return title, nil
}

// DeleteConversation deletes one conversation and its messages
func (r *ChatRepository) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", conversationID, userID).
			Delete(&ConversationModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return chat.ErrConversationMissing
		}

		return tx.Where("conversation_id = ?", conversationID).
			Delete(&MessageModel{}).Error
	})
}

// DeleteAllConversations deletes every conversation for a user
func (r *ChatRepository) DeleteAllConversations(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&ConversationModel{}).
			Where("user_id = ?", userID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("conversation_id IN ?", ids).
			Delete(&MessageModel{}).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ?", userID).
			Delete(&ConversationModel{}).Error
	})
}

// CreateMessage persists a message. Messages are immutable; there is no
// corresponding update.
func (r *ChatRepository) CreateMessage(ctx context.Context, message *chat.Message) error {
	model := MessageToModel(message)

	if result := r.db.WithContext(ctx).Create(model); result.Error != nil {
		return result.Error
	}
	return nil
}

// ListMessages returns messages ordered by creation timestamp ascending
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*chat.Message, error) {
	var models []MessageModel

	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if result := query.Find(&models); result.Error != nil {
		return nil, result.Error
	}

	messages := make([]*chat.Message, len(models))
	for i := range models {
		messages[i] = ModelToMessage(&models[i])
	}
	return messages, nil
}

// RecentMessages returns the n most recent messages, newest first
func (r *ChatRepository) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]*chat.Message, error) {
	var models []MessageModel

	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(n).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	messages := make([]*chat.Message, len(models))
	for i := range models {
		messages[i] = ModelToMessage(&models[i])
	}
	return messages, nil
}
