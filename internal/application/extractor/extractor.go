// Package extractor turns unstructured recipe text and images into
// validated structured recipe records via a strict-JSON extraction prompt.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/domain/recipe"
	"github.com/pantrychat/v1/internal/ports/outbound"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

const extractionPrompt = `You are a recipe extraction engine. Extract the recipe from the user's message (and attached images, if any) into strict JSON. Respond with only this JSON shape, no prose:

{"recipe": {
  "title": "<string, required>",
  "description": "<string, optional>",
  "ingredients": [{"name": "<string>", "amount": <number>, "unit": "<string>", "category": "<string, optional>"}],
  "instructions": ["<step>", ...],
  "prep_time": <minutes as integer, optional>,
  "cook_time": <minutes as integer, optional>,
  "servings": <integer, optional>,
  "difficulty": "easy"|"medium"|"hard" (optional),
  "tags": ["<string>", ...] (optional)
}}

All numeric fields must be numbers, never strings or fractions like "1/2". Convert fractions to decimals. If no amount is given for an ingredient, use 0. Do not invent ingredients or steps that are not in the source.`

// Extractor converts free-form recipe content into validated records.
type Extractor struct {
	completion outbound.ChatCompletionService
	logger     *zap.Logger
}

// NewExtractor creates a new recipe extractor.
func NewExtractor(completion outbound.ChatCompletionService, logger *zap.Logger) *Extractor {
	return &Extractor{
		completion: completion,
		logger:     logger.Named("extractor"),
	}
}

// Extract runs the extraction prompt against the message and validates the
// resulting record. Extraction does not persist anything; saving the
// confirmed recipe belongs to the caller.
func (e *Extractor) Extract(ctx context.Context, message string, images []string) (*recipe.Recipe, error) {
	userPrompt := message
	if strings.TrimSpace(userPrompt) == "" {
		userPrompt = "Extract the recipe from the attached images."
	}

	raw, err := e.completion.Complete(ctx, extractionPrompt, userPrompt, images)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("ai provider", err)
	}

	rec, err := parseRecipe(raw)
	if err != nil {
		e.logger.Warn("extraction output unparseable",
			zap.String("raw", truncate(raw, 300)),
			zap.Error(err),
		)
		return nil, apperrors.NewExtractionInvalidError("I couldn't read a recipe out of that. Could you share the title, ingredients, and steps?")
	}

	if err := rec.Validate(); err != nil {
		e.logger.Info("extracted recipe failed validation", zap.Error(err))
		return nil, apperrors.NewExtractionInvalidError(fmt.Sprintf("That doesn't look like a complete recipe: %v.", err)).WithCause(err)
	}

	return rec, nil
}

// wireRecipe mirrors recipe.Recipe with loosely-typed numerics, because
// models return amounts as strings, fractions, or numbers despite the
// prompt's instruction.
type wireRecipe struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Ingredients  []wireIngredient `json:"ingredients"`
	Instructions []string         `json:"instructions"`
	PrepTime     json.RawMessage  `json:"prep_time"`
	CookTime     json.RawMessage  `json:"cook_time"`
	Servings     json.RawMessage  `json:"servings"`
	Difficulty   string           `json:"difficulty"`
	Tags         []string         `json:"tags"`
}

type wireIngredient struct {
	Name     string          `json:"name"`
	Amount   json.RawMessage `json:"amount"`
	Unit     string          `json:"unit"`
	Category string          `json:"category"`
}

// parseRecipe accepts both the documented {"recipe": {...}} envelope and a
// bare recipe object, with or without markdown fences.
func parseRecipe(raw string) (*recipe.Recipe, error) {
	payload := extractJSON(raw)

	var envelope struct {
		Recipe *wireRecipe `json:"recipe"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil && envelope.Recipe != nil {
		return envelope.Recipe.toDomain(), nil
	}

	var bare wireRecipe
	if err := json.Unmarshal([]byte(payload), &bare); err != nil {
		return nil, err
	}
	if bare.Title == "" && len(bare.Ingredients) == 0 && len(bare.Instructions) == 0 {
		return nil, fmt.Errorf("no recipe fields present in output")
	}
	return bare.toDomain(), nil
}

func (w *wireRecipe) toDomain() *recipe.Recipe {
	rec := &recipe.Recipe{
		Title:        strings.TrimSpace(w.Title),
		Description:  strings.TrimSpace(w.Description),
		Instructions: cleanSteps(w.Instructions),
		PrepTime:     int(coerceNumber(w.PrepTime)),
		CookTime:     int(coerceNumber(w.CookTime)),
		Servings:     int(coerceNumber(w.Servings)),
		Difficulty:   recipe.Difficulty(strings.ToLower(strings.TrimSpace(w.Difficulty))),
		Tags:         w.Tags,
	}
	for _, ing := range w.Ingredients {
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			continue
		}
		rec.Ingredients = append(rec.Ingredients, recipe.Ingredient{
			Name:     name,
			Amount:   coerceNumber(ing.Amount),
			Unit:     strings.TrimSpace(ing.Unit),
			Category: strings.TrimSpace(ing.Category),
		})
	}
	return rec
}

// coerceNumber converts a raw JSON value to a float64, accepting numbers,
// numeric strings, and simple fractions like "1/2" or "1 1/2".
func coerceNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return parseAmount(s)
}

// parseAmount parses "2", "1.5", "1/2", and "1 1/2" style amounts.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}

	total := 0.0
	for _, part := range strings.Fields(s) {
		if num, den, ok := strings.Cut(part, "/"); ok {
			a, errA := strconv.ParseFloat(strings.TrimSpace(num), 64)
			b, errB := strconv.ParseFloat(strings.TrimSpace(den), 64)
			if errA == nil && errB == nil && b != 0 {
				total += a / b
				continue
			}
			return 0
		}
		n, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total += n
	}
	return total
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		if s := strings.TrimSpace(step); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
