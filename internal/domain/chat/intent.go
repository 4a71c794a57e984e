package chat

import "fmt"

// Intent is the classified purpose of a user message. It is a closed set:
// adding a new intent requires updating every switch that dispatches on it.
type Intent string

const (
	IntentRecipeExtraction Intent = "recipe_extraction"
	IntentRAGSearch        Intent = "rag_search"
	IntentGeneralChat      Intent = "general_chat"
)

// IntentSource records how a routing intent was determined.
type IntentSource string

const (
	IntentSourceManual   IntentSource = "manual"
	IntentSourceAI       IntentSource = "ai"
	IntentSourceFallback IntentSource = "fallback"
)

// ParseIntent validates a raw intent string against the closed set.
func ParseIntent(raw string) (Intent, error) {
	switch Intent(raw) {
	case IntentRecipeExtraction, IntentRAGSearch, IntentGeneralChat:
		return Intent(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, raw)
	}
}

// IsValid reports whether the intent is one of the three known values.
func (i Intent) IsValid() bool {
	_, err := ParseIntent(string(i))
	return err == nil
}

// IntentResult is the outcome of intent resolution for a single message.
// It is ephemeral: produced and consumed within one request and folded
// into message metadata, never persisted as its own entity.
type IntentResult struct {
	Intent     Intent
	Reason     string
	Confidence float64
	Source     IntentSource
}

// FallbackIntentResult is the degraded result used when classification
// fails or returns an intent outside the closed set. The assistant should
// still attempt to be helpful rather than block the user.
func FallbackIntentResult(reason string) IntentResult {
	return IntentResult{
		Intent:     IntentGeneralChat,
		Reason:     reason,
		Confidence: 0.5,
		Source:     IntentSourceFallback,
	}
}
