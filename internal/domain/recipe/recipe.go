// Package recipe defines the structured recipe record produced by
// AI extraction and the invariants a record must satisfy to be accepted.
package recipe

import (
	"fmt"
	"strings"
)

// Difficulty is the closed set of difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Ingredient is one entry of a recipe's ordered ingredient list.
type Ingredient struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
	Category string  `json:"category,omitempty"`
}

// Recipe is a structured recipe record extracted from unstructured text
// or images. Title, ingredients, and instructions are mandatory; a record
// failing Validate is an extraction error, never a partial success.
type Recipe struct {
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	PrepTime     int          `json:"prep_time,omitempty"`
	CookTime     int          `json:"cook_time,omitempty"`
	Servings     int          `json:"servings,omitempty"`
	Difficulty   Difficulty   `json:"difficulty,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
}

// ValidationError describes why an extracted recipe was rejected. The
// message is shown to the end user, so it names the missing piece directly.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recipe: %s %s", e.Field, e.Reason)
}

// Validate enforces the recipe invariants. A nil return means the record
// is complete enough to be saved.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is missing"}
	}
	if len(r.Ingredients) == 0 {
		return &ValidationError{Field: "ingredients", Reason: "list is empty"}
	}
	for i, ing := range r.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return &ValidationError{Field: "ingredients", Reason: fmt.Sprintf("entry %d has no name", i+1)}
		}
	}
	if len(r.Instructions) == 0 {
		return &ValidationError{Field: "instructions", Reason: "list is empty"}
	}
	if r.Difficulty != "" {
		switch r.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		default:
			return &ValidationError{Field: "difficulty", Reason: fmt.Sprintf("%q is not easy, medium, or hard", r.Difficulty)}
		}
	}
	return nil
}

// SearchableText is the text projection used by lexical retrieval:
// title, description, ingredient names, and instructions joined into one
// lowercased document.
func (r *Recipe) SearchableText() string {
	parts := make([]string, 0, 3+len(r.Ingredients))
	parts = append(parts, r.Title, r.Description)
	for _, ing := range r.Ingredients {
		parts = append(parts, ing.Name)
	}
	parts = append(parts, r.Instructions...)
	return strings.ToLower(strings.Join(parts, " "))
}
