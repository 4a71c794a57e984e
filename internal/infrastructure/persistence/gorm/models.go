// Package gorm provides GORM model definitions and repository
// implementations for conversation persistence and recipe retrieval.
package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationModel represents the GORM model for conversations
type ConversationModel struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey"`
	UserID         uuid.UUID `gorm:"type:char(36);not null;index:idx_conversations_user_session"`
	SessionID      string    `gorm:"type:varchar(255);not null;index:idx_conversations_user_session"`
	SelectedIntent *string   `gorm:"type:varchar(50)"`
	Metadata       JSONField `gorm:"type:json"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time

	Messages []MessageModel `gorm:"foreignKey:ConversationID"`
}

// TableName overrides the table name
func (ConversationModel) TableName() string { return "conversations" }

// MessageModel represents the GORM model for messages. Rows are immutable
// once written and ordered by creation timestamp within a conversation.
type MessageModel struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey"`
	ConversationID uuid.UUID `gorm:"type:char(36);not null;index"`
	Role           string    `gorm:"type:varchar(20);not null"`
	Content        string    `gorm:"type:text"`
	Kind           string    `gorm:"type:varchar(20);not null;default:'text'"`
	Metadata       JSONField `gorm:"type:json"`
	CreatedAt      time.Time `gorm:"index"`
}

// TableName overrides the table name
func (MessageModel) TableName() string { return "messages" }

// RecipeRowModel represents the recipe store rows consumed by retrieval.
// The recipe store itself is owned by an external collaborator; this model
// only reads the columns retrieval needs (plus seeds them in tests).
type RecipeRowModel struct {
	ID           uuid.UUID   `gorm:"type:char(36);primaryKey"`
	UserID       uuid.UUID   `gorm:"type:char(36);not null;index"`
	Title        string      `gorm:"type:varchar(255);not null"`
	Description  string      `gorm:"type:text"`
	Ingredients  StringSlice `gorm:"type:json"`
	Instructions StringSlice `gorm:"type:json"`
	SearchText   string      `gorm:"type:text"`
	Embedding    FloatSlice  `gorm:"type:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name
func (RecipeRowModel) TableName() string { return "recipes" }

// BeforeCreate hook for ConversationModel
func (c *ConversationModel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for MessageModel
func (m *MessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// StringSlice custom type for handling JSON string arrays
type StringSlice []string

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
}

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

// FloatSlice custom type for handling JSON-encoded embedding vectors
type FloatSlice []float32

// Scan implements the sql.Scanner interface
func (f *FloatSlice) Scan(value interface{}) error {
	if value == nil {
		*f = FloatSlice{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("cannot scan %T into FloatSlice", value)
	}
}

// Value implements the driver.Valuer interface
func (f FloatSlice) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	return json.Marshal(f)
}

// JSONField custom type for handling JSON fields
type JSONField map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = JSONField{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONField", value)
	}
}

// Value implements the driver.Valuer interface
func (j JSONField) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return json.Marshal(j)
}
