package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/defineconsult/consult-api/internal/redact"
)

// Chain tries its clients in order and returns the first successful answer.
type Chain struct {
	clients []Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ Client = (*Chain)(nil)

// NewChain builds a chain. A positive timeout bounds each client call.
func NewChain(logger *slog.Logger, timeout time.Duration, clients ...Client) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		clients: clients,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "llm_chain")),
	}
}

// Name lists the chained providers, e.g. "gemini>openrouter".
func (c *Chain) Name() string {
	names := make([]string, len(c.clients))
	for i, cl := range c.clients {
		names[i] = cl.Name()
	}
	return strings.Join(names, ">")
}

// Len returns the number of chained clients.
func (c *Chain) Len() int { return len(c.clients) }

// Complete implements Client. The returned error is a *ProviderError naming
// the last provider tried.
func (c *Chain) Complete(ctx context.Context, req Request) (string, error) {
	if len(c.clients) == 0 {
		return "", &ProviderError{Provider: "none", Err: ErrNoProviders}
	}

	var lastErr error
	lastName := ""
	for i, cl := range c.clients {
		text, err := c.call(ctx, cl, req)
		if err == nil {
			if i > 0 {
				c.logger.InfoContext(ctx, "fallback provider succeeded",
					slog.String("provider", cl.Name()),
					slog.Int("position", i))
			}
			return text, nil
		}

		lastErr, lastName = err, cl.Name()
		c.logger.WarnContext(ctx, "llm provider failed",
			slog.String("provider", cl.Name()),
			slog.String("error", redact.Error(err)))

		if ctx.Err() != nil {
			break
		}
	}
	return "", NewProviderError(lastName, lastErr)
}

func (c *Chain) call(ctx context.Context, cl Client, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	text, err := cl.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// IsContentBlocked reports whether err came from a safety refusal.
func IsContentBlocked(err error) bool {
	return errors.Is(err, ErrContentBlocked)
}
