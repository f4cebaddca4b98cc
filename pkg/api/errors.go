package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeBadGateway      ErrorType = "bad_gateway"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeRateLimited     ErrorType = "rate_limited"
)

// Sentinel errors crossing the engine boundary.
var (
	// ErrEmptyInput is returned when the user text is empty after trimming.
	ErrEmptyInput = errors.New("empty message is not allowed")

	// ErrNoPendingClarification is returned when resuming a thread that is
	// not waiting on a clarification.
	ErrNoPendingClarification = errors.New("thread has no pending clarification")

	// ErrNoReply is returned when a turn completes without any assistant text.
	ErrNoReply = errors.New("no assistant reply")
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewConflictError creates an APIError for concurrent modification of a thread.
func NewConflictError(message string) *APIError {
	return &APIError{Type: ErrorTypeConflict, Message: message}
}

// NewBadGatewayError creates an APIError for a generator that produced no usable reply.
func NewBadGatewayError(message string) *APIError {
	return &APIError{Type: ErrorTypeBadGateway, Message: message}
}

// NewUnauthenticatedError creates an APIError for missing or invalid credentials.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthenticated, Message: message}
}
