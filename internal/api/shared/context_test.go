package shared

import (
	"context"
	"testing"

	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSetAndGetTraceID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	generated := SetTraceID(ctx, "")
	assert.Len(t, GetTraceID(generated), 32)
	assert.Equal(t, GetTraceID(generated), logger.TraceIDFromContext(generated))

	explicit := SetTraceID(ctx, "req-42")
	assert.Equal(t, "req-42", GetTraceID(explicit))
	assert.Empty(t, GetTraceID(ctx), "original context must be unchanged")
}

func TestTraceIDsAreUnique(t *testing.T) {
	t.Parallel()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := generateTraceID()
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestGetTraceIDWithWrongType(t *testing.T) {
	t.Parallel()
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestOwnerID(t *testing.T) {
	t.Parallel()
	_, ok := OwnerIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = OwnerIDFromContext(WithOwnerID(context.Background(), uuid.Nil))
	assert.False(t, ok)

	id := uuid.New()
	got, ok := OwnerIDFromContext(WithOwnerID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
