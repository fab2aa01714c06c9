package analysis

import "fmt"

// Outcome tags how a Result was produced.
type Outcome string

const (
	// OutcomeStructured means the model output decoded cleanly.
	OutcomeStructured Outcome = "structured"
	// OutcomeFallback means the fallback value was substituted.
	OutcomeFallback Outcome = "fallback"
)

// Result is the tagged outcome of parsing model output into T.
type Result[T any] struct {
	value   T
	outcome Outcome
	reason  string
}

// Structured wraps a cleanly decoded value.
func Structured[T any](v T) Result[T] {
	return Result[T]{value: v, outcome: OutcomeStructured}
}

// Fallback wraps a substituted value together with the reason parsing failed.
func Fallback[T any](v T, reason string) Result[T] {
	return Result[T]{value: v, outcome: OutcomeFallback, reason: reason}
}

// Value returns the carried value regardless of outcome.
func (r Result[T]) Value() T { return r.value }

// Outcome reports which branch produced the value.
func (r Result[T]) Outcome() Outcome { return r.outcome }

// IsFallback reports whether the fallback value was used.
func (r Result[T]) IsFallback() bool { return r.outcome == OutcomeFallback }

// Warning returns a *ParseFallbackWarning for fallback results and nil otherwise.
func (r Result[T]) Warning() *ParseFallbackWarning {
	if !r.IsFallback() {
		return nil
	}
	return &ParseFallbackWarning{Reason: r.reason}
}

// ParseFallbackWarning reports that model output could not be parsed and a
// fallback value was returned instead. It is informational, not a failure.
type ParseFallbackWarning struct {
	Reason string
}

func (w *ParseFallbackWarning) Error() string {
	return fmt.Sprintf("model output not parseable, using fallback: %s", w.Reason)
}
