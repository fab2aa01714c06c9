package task

import (
	"context"

	"github.com/defineconsult/consult-api/internal/analysis"
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/google/uuid"
)

// Meta describes the delivery a provider call belongs to.
type Meta struct {
	OwnerID  uuid.UUID
	RecordID uuid.UUID
	Kind     domain.Kind
	Attempt  int
}

// WorkItem binds a kind to the functions that produce its output.
type WorkItem[TIn domain.Input, TOut any] struct {
	Kind domain.Kind

	// Provider produces raw model text for the input.
	Provider func(ctx context.Context, in TIn, meta Meta) (string, error)

	// Parse turns raw text into a result. Defaults to analysis.Parse.
	Parse func(raw string, fallback func() TOut) analysis.Result[TOut]

	// Fallback builds the output used when raw text cannot be parsed.
	Fallback func(in TIn) TOut

	// Metrics derives kind-specific activity metadata from the output. Optional.
	Metrics func(out TOut) map[string]any
}

func (w WorkItem[TIn, TOut]) validate() error {
	if !w.Kind.Valid() {
		return domain.ErrInvalidKind
	}
	if w.Provider == nil {
		return ErrNilProvider
	}
	if w.Fallback == nil {
		return ErrNilFallback
	}
	return nil
}

func (w WorkItem[TIn, TOut]) parse(raw string, in TIn) analysis.Result[TOut] {
	fallback := func() TOut { return w.Fallback(in) }
	if w.Parse != nil {
		return w.Parse(raw, fallback)
	}
	return analysis.Parse(raw, fallback)
}

func (w WorkItem[TIn, TOut]) metrics(out TOut) map[string]any {
	if w.Metrics == nil {
		return nil
	}
	return w.Metrics(out)
}
