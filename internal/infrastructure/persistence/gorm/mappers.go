package gorm

import (
	"github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// ConversationToModel converts a domain conversation to its GORM model
func ConversationToModel(c *chat.Conversation) *ConversationModel {
	var intent *string
	if c.PinnedIntent() != nil {
		s := string(*c.PinnedIntent())
		intent = &s
	}

	return &ConversationModel{
		ID:             c.ID(),
		UserID:         c.UserID(),
		SessionID:      c.SessionID(),
		SelectedIntent: intent,
		Metadata:       JSONField(c.Metadata()),
		CreatedAt:      c.CreatedAt(),
		UpdatedAt:      c.UpdatedAt(),
	}
}

// ModelToConversation converts a GORM model to a domain conversation
func ModelToConversation(m *ConversationModel) *chat.Conversation {
	var intent *chat.Intent
	if m.SelectedIntent != nil {
		if parsed, err := chat.ParseIntent(*m.SelectedIntent); err == nil {
			intent = &parsed
		}
	}

	return chat.RehydrateConversation(
		m.ID,
		m.UserID,
		m.SessionID,
		intent,
		map[string]any(m.Metadata),
		m.CreatedAt,
		m.UpdatedAt,
	)
}

// MessageToModel converts a domain message to its GORM model
func MessageToModel(m *chat.Message) *MessageModel {
	return &MessageModel{
		ID:             m.ID(),
		ConversationID: m.ConversationID(),
		Role:           string(m.Role()),
		Content:        m.Content(),
		Kind:           string(m.Kind()),
		Metadata:       JSONField(m.Metadata()),
		CreatedAt:      m.CreatedAt(),
	}
}

// ModelToMessage converts a GORM model to a domain message
func ModelToMessage(m *MessageModel) *chat.Message {
	return chat.RehydrateMessage(
		m.ID,
		m.ConversationID,
		chat.Role(m.Role),
		m.Content,
		chat.MessageKind(m.Kind),
		map[string]any(m.Metadata),
		m.CreatedAt,
	)
}

// modelToRecipeRow converts a recipe model to the retrieval row DTO
func modelToRecipeRow(m *RecipeRowModel) outbound.RecipeRow {
	return outbound.RecipeRow{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Ingredients:  []string(m.Ingredients),
		Instructions: []string(m.Instructions),
		SearchText:   m.SearchText,
	}
}
