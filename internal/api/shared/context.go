package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ContextKey is the type of request-scoped context keys.
type ContextKey string

const (
	// OwnerIDContextKey holds the authenticated owner's uuid.UUID.
	OwnerIDContextKey ContextKey = "ownerID"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID stores traceID in ctx, generating one when it is empty. The id
// is also registered with the logger package so every record logged with
// this context carries it.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = generateTraceID()
	}
	ctx = context.WithValue(ctx, TraceIDKey, traceID)
	return logger.WithTraceID(ctx, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithOwnerID stores the authenticated owner in ctx.
func WithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, OwnerIDContextKey, id)
}

// OwnerIDFromContext returns the authenticated owner, if any.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(OwnerIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// generateTraceID returns 32 random hex characters, or a ULID if the
// system random source fails.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "ulid")
		return ulid.Make().String()
	}
	return hex.EncodeToString(b)
}
