package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/storage"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP status
// code. Transport-level errors (body too large, unsupported content type,
// method not allowed) are handled separately by the HTTP adapter.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeConflict:
		return http.StatusConflict
	case api.ErrorTypeBadGateway:
		return http.StatusBadGateway
	case api.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// APIErrorFromError classifies an error returned by the engine or a store.
// Anything unrecognized becomes a generic server error so internal details
// never reach the client.
func APIErrorFromError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, api.ErrEmptyInput):
		return api.NewInvalidRequestError("message", "Empty message is not allowed.")
	case errors.Is(err, api.ErrNoPendingClarification):
		return api.NewInvalidRequestError("thread_id", "thread has no pending clarification")
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError("thread not found")
	case errors.Is(err, storage.ErrConflict):
		return api.NewConflictError("thread was modified by a concurrent turn")
	case errors.Is(err, api.ErrNoReply):
		return api.NewBadGatewayError("No assistant reply found")
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewServerError("turn timed out")
	default:
		return api.NewServerError("LLM call failed")
	}
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError classifies err and writes it.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, APIErrorFromError(err))
}
