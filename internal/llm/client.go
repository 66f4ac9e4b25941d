package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/strataplan/orchestrator/internal/config"
)

// Client is the text generation capability: prompt in, text out.
// Implementations may fail with network or quota errors; callers are
// expected to catch failures at their own boundary.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPClient calls the LLM sidecar service's /agent/query endpoint.
type HTTPClient struct {
	baseURL   string
	model     string
	maxTokens int
	hc        *http.Client
	logger    *zap.Logger
}

// NewHTTPClient builds a client from config. The returned client holds
// no per-call state and is safe for concurrent use.
func NewHTTPClient(cfg config.LLMConfig, logger *zap.Logger) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		hc:        &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type generateRequest struct {
	Query     string `json:"query"`
	AgentID   string `json:"agent_id,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type generateResponse struct {
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
}

// Generate sends one prompt and returns the generated text.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Query:     prompt,
		AgentID:   "account-plan",
		Model:     c.model,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/agent/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("llm service returned %d: %s", resp.StatusCode, string(raw))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("llm service returned empty response")
	}

	c.logger.Debug("LLM generation completed",
		zap.Int("tokens_used", out.TokensUsed),
		zap.String("model", out.ModelUsed),
		zap.Duration("duration", time.Since(start)),
	)
	return out.Response, nil
}
