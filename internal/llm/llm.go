package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a client cannot be built from config.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyResponse is returned when a provider answered without text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrContentBlocked is returned when a provider refused the prompt.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrNoProviders is returned by a chain with no clients.
	ErrNoProviders = errors.New("no llm providers configured")

	// ErrUnknownProvider is returned by the registry for unregistered names.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Request is a single completion request.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Client completes prompts against one model provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderError reports that a provider (or every provider in a chain)
// failed to produce a completion.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err unless it already is a *ProviderError.
func NewProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
