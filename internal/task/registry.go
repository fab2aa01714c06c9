package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/google/uuid"
)

// Handler processes deliveries for one kind without exposing its types.
type Handler interface {
	Kind() domain.Kind
	Handle(ctx context.Context, recordID uuid.UUID, attempt int) error
}

// Registry dispatches queue jobs to the handler for their kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Kind]Handler
}

// NewRegistry returns a registry holding the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[domain.Kind]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for h.Kind().
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// Kinds returns the kinds with a registered handler, in domain order.
func (r *Registry) Kinds() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var kinds []domain.Kind
	for _, k := range domain.Kinds() {
		if _, ok := r.handlers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Dispatch has the queue.HandlerFunc signature.
func (r *Registry) Dispatch(ctx context.Context, job queue.Job, attempt int) error {
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()
	if !ok {
		return queue.Permanent(fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind))
	}
	return h.Handle(ctx, job.RecordID, attempt)
}
