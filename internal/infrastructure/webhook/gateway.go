// Package webhook dispatches event envelopes to the external workflow
// engine and parses its replies defensively. Failures here never raise
// past the router's failure boundary; the caller supplies the apology
// text shown when the engine is unreachable.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/domain/chat"
	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/ports/outbound"
)

// replyKeys are probed in order against a JSON reply body. The workflow
// engine is not under our control and has shipped all of these shapes.
var replyKeys = []string{"content", "message", "output", "response"}

// Gateway implements the WorkflowGateway interface over HTTP POST.
type Gateway struct {
	cfg    config.WebhookConfig
	client *http.Client
	logger *zap.Logger
}

// NewGateway creates a new workflow gateway. The configuration is loaded
// once at process start and immutable thereafter.
func NewGateway(cfg config.WebhookConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg: cfg,
		// Per-dispatch timeouts are applied through the request context
		// because they depend on the event class.
		client: &http.Client{},
		logger: logger.Named("webhook"),
	}
}

// Enabled reports whether the gateway is configured for dispatch.
func (g *Gateway) Enabled() bool {
	return g.cfg.Enabled && g.cfg.URL != ""
}

// Dispatch serializes the event envelope, POSTs it to the workflow engine,
// and waits for a reply under an intent-dependent timeout. Extraction-class
// events get the long timeout; their payloads and processing are larger.
func (g *Gateway) Dispatch(ctx context.Context, event outbound.WorkflowEvent) (outbound.WorkflowReply, error) {
	if !g.Enabled() {
		return outbound.WorkflowReply{}, fmt.Errorf("workflow gateway disabled")
	}

	timeout := g.cfg.Timeout
	if event.Data.Intent == string(chat.IntentRecipeExtraction) {
		timeout = g.cfg.ExtractTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(event)
	if err != nil {
		return outbound.WorkflowReply{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewBuffer(body))
	if err != nil {
		return outbound.WorkflowReply{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("workflow dispatch failed",
			zap.String("event", event.Event),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return outbound.WorkflowReply{}, fmt.Errorf("workflow dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return outbound.WorkflowReply{}, fmt.Errorf("failed to read reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return outbound.WorkflowReply{}, fmt.Errorf("workflow engine returned %d: %s", resp.StatusCode, string(respBody))
	}

	reply := parseReply(respBody)
	g.logger.Debug("workflow reply received",
		zap.String("event", event.Event),
		zap.Bool("parsed", reply.Parsed),
		zap.Duration("elapsed", time.Since(start)),
	)

	return reply, nil
}

// parseReply applies the ordered-fallback parse: a JSON object is probed
// for the known reply keys in sequence; anything else, or a JSON object
// carrying none of them, falls back to the raw body text.
func parseReply(body []byte) outbound.WorkflowReply {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range replyKeys {
			if value, ok := payload[key]; ok {
				if text, ok := value.(string); ok && text != "" {
					return outbound.WorkflowReply{Text: text, Parsed: true}
				}
			}
		}
	}

	return outbound.WorkflowReply{Text: strings.TrimSpace(string(body)), Parsed: false}
}
