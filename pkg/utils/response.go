package utils

import (
	"encoding/json"
	"net/http"

	"snapreport/pkg/logger"
)

const (
	// Request Error Codes
	ErrRequestInvalid           = "request/invalid_parameters"
	ErrRequestBadRequest        = "request/bad_request"
	ErrRequestNotFound          = "request/not_found"
	ErrRequestRateLimitExceeded = "request/rate_limit_exceeded"
	ErrRequestBodyTooLarge      = "request/body_too_large"

	// Auth Error Codes
	ErrAuthRequired        = "auth/authentication_required"
	ErrAuthForbidden       = "auth/forbidden"
	ErrAuthInvalid         = "auth/invalid_credentials"
	ErrAuthRateLimitExceed = "auth/rate_limit_exceeded"

	// Server Error Codes
	ErrServerInternal = "server/internal_error"

	// Image Error Codes
	ErrImageInvalidFormat    = "image/invalid_format"
	ErrImageInvalidType      = "image/invalid_type"
	ErrImageProcessingFailed = "image/processing_failed"

	ErrResourceNotFound = "resource/not_found"
)

// APIError is the JSON envelope for every non-2xx response.
type APIError struct {
	Code    string `json:"code"`    // e.g., "request/invalid_parameters"
	Message string `json:"message"` // Short, user-facing text
	Status  int    `json:"status"`
}

// WriteError sends a JSON formatted error response.
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	logger.LogDebug("%d %s: %s", status, code, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Status:  status,
	})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
