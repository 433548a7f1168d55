package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/apperrors"
)

// ErrorResponse writes a structured JSON error and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"code":    errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps a domain error to its stable code and HTTP status.
// Internal errors never leak warehouse URIs; the sanitized message only.
func WriteError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, apperrors.ErrMissingReason):
		return ErrorResponse(w, http.StatusBadRequest, "missing_reason", "dismiss requires a non-empty reason")
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return ErrorResponse(w, http.StatusConflict, "invalid_transition", "incident status forbids this transition")
	case errors.Is(err, apperrors.ErrDuplicateEnrollment):
		return ErrorResponse(w, http.StatusConflict, "duplicate_enrollment", "table is already enrolled")
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", "resource already exists")
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
