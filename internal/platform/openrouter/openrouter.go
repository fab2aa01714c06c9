// Package openrouter implements llm.Client on OpenRouter's
// OpenAI-compatible chat completions endpoint.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
)

// Name is the provider name used in configuration.
const Name = "openrouter"

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Client calls OpenRouter chat completions.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	siteURL string
	appName string
	http    *http.Client
	logger  *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// New creates a client from configuration.
func New(cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.OpenRouterAPIKey) == "" {
		return nil, fmt.Errorf("%w: openrouter api key is required", llm.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.OpenRouterModel) == "" {
		return nil, fmt.Errorf("%w: openrouter model is required", llm.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.OpenRouterBaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.OpenRouterAPIKey,
		model:   cfg.OpenRouterModel,
		siteURL: cfg.SiteURL,
		appName: cfg.AppName,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "openrouter"), slog.String("model", cfg.OpenRouterModel)),
	}, nil
}

// Factory adapts New to llm.Factory.
func Factory(_ context.Context, cfg config.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	return New(cfg, logger)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Name implements llm.Client.
func (c *Client) Name() string { return Name }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.appName != "" {
		httpReq.Header.Set("X-Title", c.appName)
	}

	c.logger.DebugContext(ctx, "calling openrouter",
		slog.Int("prompt_length", len(req.Prompt)),
		slog.Int("max_tokens", req.MaxTokens))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, msg)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", fmt.Errorf("openrouter: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("openrouter: %w", llm.ErrEmptyResponse)
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", llm.ErrContentBlocked
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("openrouter: %w: empty message", llm.ErrEmptyResponse)
	}
	return choice.Message.Content, nil
}
