package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "ErrNotFound", err: ErrNotFound, expected: true},
		{name: "ErrWorkRecordNotFound", err: ErrWorkRecordNotFound, expected: true},
		{
			name:     "wrapped in StoreError",
			err:      NewStoreError("work_record", "get", "lookup failed", ErrWorkRecordNotFound),
			expected: true,
		},
		{name: "duplicate is not not-found", err: ErrTaskHandleExists, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFoundError(tt.err))
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "ErrDuplicate", err: ErrDuplicate, expected: true},
		{name: "ErrTaskHandleExists", err: ErrTaskHandleExists, expected: true},
		{
			name:     "wrapped ErrTaskHandleExists",
			err:      fmt.Errorf("failed to create record: %w", ErrTaskHandleExists),
			expected: true,
		},
		{name: "stale transition", err: ErrStaleTransition, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDuplicateError(tt.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	originalErr := errors.New("database connection failed")
	storeErr := NewStoreError("work_record", "create", "insert failed", originalErr)

	assert.Equal(t,
		"create operation on work_record failed: insert failed: database connection failed",
		storeErr.Error())
	assert.ErrorIs(t, storeErr, originalErr)

	var target *StoreError
	assert.ErrorAs(t, fmt.Errorf("outer: %w", storeErr), &target)
	assert.Equal(t, "work_record", target.Entity)

	bare := &StoreError{Entity: "activity_log", Operation: "append", Message: "invalid phase"}
	assert.Equal(t, "append operation on activity_log failed: invalid phase", bare.Error())
	assert.Nil(t, bare.Unwrap())
}
