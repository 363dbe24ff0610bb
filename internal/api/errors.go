package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/rs/zerolog/log"
)

// ValidationError marks malformed input. Always 400, never escalated.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// PermissionDeniedError marks an RBAC denial. 403, audited by the handler.
type PermissionDeniedError struct {
	Resource string
	Action   string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s:%s", e.Resource, e.Action)
}

// RateLimitError marks a rate-limit denial. 429.
type RateLimitError struct {
	Category string
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded for category " + e.Category
}

// PolicyViolationError marks a blocking security-policy denial. 403.
type PolicyViolationError struct{}

func (e *PolicyViolationError) Error() string {
	return "request blocked by security policy"
}

// writeAPIError is the single choke point that classifies an error, logs
// it, and shapes the client response. Internals never leak into 5xx bodies.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ValidationError
		pe *PermissionDeniedError
		re *RateLimitError
		se *PolicyViolationError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &pe):
		writeError(w, http.StatusForbidden, pe.Error())
	case errors.As(err, &re):
		writeError(w, http.StatusTooManyRequests, re.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusForbidden, se.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).
			Str("request_id", requestIDFromCtx(r.Context())).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
