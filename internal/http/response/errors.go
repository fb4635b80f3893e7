package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeEmailExists    = "EMAIL_EXISTS"
	CodeEmailNotFound  = "EMAIL_NOT_FOUND"
	CodeNoAvailability = "NO_AVAILABILITY"
)

// FromError maps a service error onto the HTTP contract. Anything that is not
// a known domain failure is logged and reported as a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
	case errors.Is(err, domain.ErrInvalidCredentials):
		Unauthorized(w, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		WriteError(w, http.StatusBadRequest, domain.ErrInvalidToken.Error(), CodeInvalidToken)
	case errors.Is(err, domain.ErrDuplicateEmail):
		WriteError(w, http.StatusConflict, domain.ErrDuplicateEmail.Error(), CodeEmailExists)
	case errors.Is(err, domain.ErrEmailNotFound):
		WriteError(w, http.StatusNotFound, domain.ErrEmailNotFound.Error(), CodeEmailNotFound)
	case errors.Is(err, domain.ErrNoAvailability):
		WriteError(w, http.StatusConflict, domain.ErrNoAvailability.Error(), CodeNoAvailability)
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "not found")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		InternalError(w, "internal server error")
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
