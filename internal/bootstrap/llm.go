package bootstrap

import (
	"context"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/platform/gemini"
	"github.com/defineconsult/consult-api/internal/platform/ollama"
	"github.com/defineconsult/consult-api/internal/platform/openrouter"
)

// Provider names accepted in llm.providers.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Providers returns a registry holding every built-in provider.
func Providers() *llm.Registry {
	r := llm.NewRegistry()
	r.Register(ProviderGemini, gemini.Factory)
	r.Register(ProviderOpenRouter, openrouter.Factory)
	r.Register(ProviderOllama, ollama.Factory)
	return r
}

// NewLLM builds the provider chain in the configured order.
func NewLLM(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*llm.Chain, error) {
	return Providers().Build(ctx, cfg, log.With(slog.String("component", "llm")))
}
