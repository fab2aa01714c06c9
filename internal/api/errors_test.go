package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/defineconsult/consult-api/internal/api/shared"
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/service"
	"github.com/defineconsult/consult-api/internal/service/auth"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", fmt.Errorf("wrap: %w", auth.ErrExpiredToken), http.StatusUnauthorized},
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"validation", domain.NewValidationError("content", "must not be empty"), http.StatusBadRequest},
		{"not ready", &service.NotReadyError{Status: domain.StatusProcessing}, http.StatusBadRequest},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"store failure", &service.ConsultServiceError{Operation: "submit", Err: store.ErrTransactionFailed}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err), tt.name)
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "An unexpected error occurred"},
		{service.ErrNotFound, "Record not found"},
		{&service.NotReadyError{Status: domain.StatusFailed}, "Analysis not completed. Current status: failed"},
		{domain.NewValidationError("source_material", "must not be empty"), "Invalid source_material: must not be empty"},
		{auth.ErrExpiredToken, "Token expired"},
		{errors.Join(service.ErrSchedulingFailed, errors.New("redis://u:pw@host down")), "Could not schedule processing"},
		{errors.New("SELECT * FROM work_records WHERE password='x'"), "An unexpected error occurred"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetSafeErrorMessage(tt.err))
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()
	v := validator.New()

	err := v.Struct(CompetitorRequest{})
	require.Error(t, err)
	assert.Equal(t, "Invalid competitor_data: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
