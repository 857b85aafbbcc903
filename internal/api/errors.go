package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUpstreamThrottled  = "UPSTREAM_THROTTLED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// mapServiceError maps engine errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	if _, ok := apperrors.IsRateLimited(err); ok {
		return http.StatusServiceUnavailable, ErrCodeUpstreamThrottled, "the platform is throttling requests, try again later"
	}

	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		switch catErr.Category {
		case apperrors.CategoryValidation:
			return http.StatusBadRequest, ErrCodeInvalidInput, catErr.Message
		case apperrors.CategoryEntity:
			return http.StatusUnprocessableEntity, ErrCodeInvalidInput, catErr.Message
		case apperrors.CategoryTransport:
			return http.StatusBadGateway, ErrCodeServiceUnavailable, catErr.Message
		default:
			return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
		}
	}

	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}
