// Package ollama implements llm.Client on a local Ollama server's
// /api/chat endpoint.
package ollama

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
const Name = "ollama"

// Client calls a non-streaming Ollama chat.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// New creates a client from configuration.
func New(cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
		return nil, fmt.Errorf("%w: ollama base url is required", llm.ErrInvalidConfig)
	}
	model := cfg.OllamaModel
	if model == "" {
		model = "llama3.1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.OllamaBaseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "ollama"), slog.String("model", model)),
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

type options struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  options   `json:"options"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Name implements llm.Client.
func (c *Client) Name() string { return Name }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: req.Prompt}},
		Stream:   false,
		Options:  options{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "calling ollama", slog.Int("prompt_length", len(req.Prompt)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("ollama: %s", decoded.Error)
	}
	if decoded.Message.Content == "" {
		return "", fmt.Errorf("ollama: %w", llm.ErrEmptyResponse)
	}
	return decoded.Message.Content, nil
}
