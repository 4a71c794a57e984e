// Package classifier maps a user message to one of the three routing
// intents using a constrained chat-completion prompt. Classification
// fails open: any upstream failure or unparseable reply degrades to
// general_chat instead of blocking the user.
package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

const systemPrompt = `You are an intent classifier for a cooking assistant. Classify the user's message into exactly one of these intents:

- "recipe_extraction": the user is sharing a recipe to save, pasting recipe text, or attaching a recipe photo. Signals: "add this recipe", "save this", pasted ingredient lists with instructions.
- "rag_search": the user wants to find recipes in their own saved collection. Signals: "find my", "search for", "what recipes do I have", "show me recipes with".
- "general_chat": everything else — cooking questions, substitutions, techniques, small talk.

Respond with only a JSON object, no prose:
{"intent": "<one of the three values>", "reason": "<one short sentence>", "confidence": <number between 0 and 1>}`

// classifierReply is the JSON shape the model is instructed to return.
type classifierReply struct {
	Intent     string  `json:"intent"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Classifier resolves routing intents for incoming messages.
type Classifier struct {
	completion outbound.ChatCompletionService
	logger     *zap.Logger
}

// NewClassifier creates a new intent classifier.
func NewClassifier(completion outbound.ChatCompletionService, logger *zap.Logger) *Classifier {
	return &Classifier{
		completion: completion,
		logger:     logger.Named("classifier"),
	}
}

// Classify resolves the routing intent for a message. It never returns an
// error: classifier failures are folded into a fallback result carrying the
// degradation reason, so the caller can log which branch fired.
func (c *Classifier) Classify(ctx context.Context, message string, images []string) chat.IntentResult {
	userPrompt := message
	if strings.TrimSpace(userPrompt) == "" && len(images) > 0 {
		userPrompt = "The user attached images without any text."
	}

	raw, err := c.completion.Complete(ctx, systemPrompt, userPrompt, images)
	if err != nil {
		c.logger.Warn("classification call failed, falling back to general chat", zap.Error(err))
		return chat.FallbackIntentResult("classification call failed")
	}

	reply, err := parseReply(raw)
	if err != nil {
		c.logger.Warn("classifier reply unparseable, falling back to general chat",
			zap.String("raw", truncate(raw, 200)),
			zap.Error(err),
		)
		return chat.FallbackIntentResult("classifier reply was not valid JSON")
	}

	intent, err := chat.ParseIntent(reply.Intent)
	if err != nil {
		c.logger.Warn("classifier returned unknown intent, falling back to general chat",
			zap.String("intent", reply.Intent),
		)
		return chat.FallbackIntentResult("classifier returned an unknown intent")
	}

	confidence := reply.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	return chat.IntentResult{
		Intent:     intent,
		Reason:     reply.Reason,
		Confidence: confidence,
		Source:     chat.IntentSourceAI,
	}
}

// parseReply extracts the classification JSON from the model output,
// tolerating markdown code fences around the object.
func parseReply(raw string) (classifierReply, error) {
	var reply classifierReply
	if err := json.Unmarshal([]byte(extractJSON(raw)), &reply); err != nil {
		return classifierReply{}, err
	}
	return reply, nil
}

// extractJSON strips everything outside the outermost JSON object. Models
// occasionally wrap the object in ```json fences despite instruction.
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
