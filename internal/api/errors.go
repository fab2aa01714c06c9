package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/defineconsult/consult-api/internal/api/shared"
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/service"
	"github.com/defineconsult/consult-api/internal/service/auth"
	"github.com/go-playground/validator/v10"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound

	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, service.ErrNotReady),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var notReady *service.NotReadyError
	var invalid *domain.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, service.ErrNotFound):
		return "Record not found"

	case errors.As(err, &notReady):
		return fmt.Sprintf("Analysis not completed. Current status: %s", notReady.Status)

	case errors.As(err, &invalid):
		return fmt.Sprintf("Invalid %s: %s", invalid.Field, invalid.Reason)

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID format"

	case errors.As(err, &maxBytes):
		return "Request body too large"

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.Is(err, service.ErrSchedulingFailed):
		return "Could not schedule processing"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err.
// fallback replaces the generic message for 500s when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}

// SanitizeValidationError turns validator output into a message naming the
// first offending field and tag without echoing the submitted value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	field := jsonFieldName(fe.Namespace())
	return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fe.Tag(), fe.Param()))
}

// jsonFieldName turns "TranscriptRequest.Content" into "content".
func jsonFieldName(ns string) string {
	if i := strings.LastIndex(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return toSnake(ns)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag, param string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		return "validation failed"
	}
}
