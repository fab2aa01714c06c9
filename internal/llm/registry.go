package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/defineconsult/consult-api/internal/config"
)

// Factory builds a client from configuration.
type Factory func(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Client, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates a chain over cfg.Providers, in the configured order.
func (r *Registry) Build(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]Client, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		cl, err := f(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("build %s client: %w", name, err)
		}
		clients = append(clients, cl)
	}
	return NewChain(logger, cfg.Timeout, clients...), nil
}
