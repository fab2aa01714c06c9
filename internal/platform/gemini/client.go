package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
	"google.golang.org/genai"
)

// Name is the provider name used in configuration.
const Name = "gemini"

// modelsAPI is the subset of *genai.Models used by Client.
type modelsAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client completes prompts with a Gemini model.
type Client struct {
	models modelsAPI
	model  string
	logger *slog.Logger
}

var _ llm.Client = (*Client)(nil)

// New creates a Gemini client from configuration.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", llm.ErrInvalidConfig)
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("%w: gemini model cannot be empty", llm.ErrInvalidConfig)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", llm.ErrInvalidConfig, err)
	}
	return newWithModels(gc.Models, cfg.GeminiModel, logger), nil
}

// Factory adapts New to llm.Factory.
func Factory(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	return New(ctx, cfg, logger)
}

func newWithModels(models modelsAPI, model string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		models: models,
		model:  model,
		logger: logger.With(slog.String("component", "gemini"), slog.String("model", model)),
	}
}

// Name implements llm.Client.
func (c *Client) Name() string { return Name }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("prompt cannot be empty")
	}

	gcfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	c.logger.DebugContext(ctx, "calling gemini",
		slog.Int("prompt_length", len(req.Prompt)),
		slog.Int("max_tokens", req.MaxTokens))

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), gcfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", llm.ErrEmptyResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", llm.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", llm.ErrEmptyResponse)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", llm.ErrContentBlocked
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty content", llm.ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts", llm.ErrEmptyResponse)
	}
	return sb.String(), nil
}
