package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// EmbeddingClient implements the EmbeddingService interface using the
// embeddings endpoint, with an optional cache in front of it.
type EmbeddingClient struct {
	cfg    config.AIConfig
	cache  outbound.EmbeddingCache
	ttl    time.Duration
	client *http.Client
	logger *zap.Logger
}

// NewEmbeddingClient creates a new embedding client. cache may be nil.
func NewEmbeddingClient(cfg config.AIConfig, cache outbound.EmbeddingCache, ttl time.Duration, logger *zap.Logger) *EmbeddingClient {
	return &EmbeddingClient{
		cfg:   cfg,
		cache: cache,
		ttl:   ttl,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("embeddings"),
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed turns text into a fixed-length numeric vector.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache != nil {
		if vector, ok, err := c.cache.Get(ctx, text); err == nil && ok {
			return vector, nil
		}
	}

	reqBody := embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: []string{text},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vector := embResp.Data[0].Embedding

	if c.cache != nil {
		if err := c.cache.Set(ctx, text, vector, c.ttl); err != nil {
			c.logger.Warn("failed to cache embedding", zap.Error(err))
		}
	}

	return vector, nil
}
