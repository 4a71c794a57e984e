// Package openai provides chat-completion and embedding clients over the
// OpenAI-compatible HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// Client implements the ChatCompletionService interface using the
// chat-completions endpoint. The vision model is selected whenever images
// are attached, the text model otherwise.
type Client struct {
	cfg    config.AIConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a new chat-completion client
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("openai"),
	}
}

// Wire format structures

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// wireMessage content is either a plain string or a list of content parts
// when images are attached.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Complete performs a single-turn call with an optional image list.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, images []string) (string, error) {
	model := c.cfg.ChatModel
	var userContent any = userPrompt

	if len(images) > 0 {
		model = c.cfg.VisionModel
		parts := make([]contentPart, 0, len(images)+1)
		if userPrompt != "" {
			parts = append(parts, contentPart{Type: "text", Text: userPrompt})
		}
		for _, img := range images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
		}
		userContent = parts
	}

	messages := []wireMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}

	return c.call(ctx, model, messages)
}

// CompleteWithHistory performs a multi-turn call with prior conversation
// turns ordered oldest-first.
func (c *Client) CompleteWithHistory(ctx context.Context, systemPrompt string, history []outbound.ChatMessage) (string, error) {
	messages := make([]wireMessage, 0, len(history)+1)
	messages = append(messages, wireMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, wireMessage{Role: turn.Role, Content: turn.Content})
	}

	return c.call(ctx, c.cfg.ChatModel, messages)
}

// call makes the actual API call to the chat-completions endpoint
func (c *Client) call(ctx context.Context, model string, messages []wireMessage) (string, error) {
	reqBody := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	c.logger.Debug("chat completion succeeded",
		zap.String("model", model),
		zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
		zap.Int("completion_tokens", chatResp.Usage.CompletionTokens),
	)

	return chatResp.Choices[0].Message.Content, nil
}
