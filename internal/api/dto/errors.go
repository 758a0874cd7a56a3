package dto

import "fmt"

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeForbidden     = "forbidden"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeTooLarge      = "too_large"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// ValidationError creates a validation error response.
func ValidationError(message string) APIError {
	return NewAPIError(ErrCodeValidation, message)
}

// ForbiddenError is returned when the caller is not on the allow list.
func ForbiddenError() APIError {
	return NewAPIError(ErrCodeForbidden, "you do not have access to this ledger")
}

// UnavailableError is returned when a dependency is down and the request
// should be retried later.
func UnavailableError(message string) APIError {
	return NewAPIError(ErrCodeUnavailable, message)
}

// TooLargeError is returned when an upload or body exceeds its size limit.
func TooLargeError(limit int64) APIError {
	return NewAPIError(ErrCodeTooLarge, fmt.Sprintf("request exceeds the %d MiB limit", limit>>20))
}
