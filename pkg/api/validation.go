package api

import "fmt"

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessageBytes int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessageBytes: 64 * 1024,
	}
}

// ValidateChatRequest checks the shape of a turn request. Emptiness of the
// message is left to the engine so that it is reported the same way on
// every entry point.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if req.ThreadID != "" && !ValidateThreadID(req.ThreadID) {
		return NewInvalidRequestError("thread_id", "thread_id must be a UUID")
	}
	if cfg.MaxMessageBytes > 0 && len(req.Message) > cfg.MaxMessageBytes {
		return NewInvalidRequestError("message",
			fmt.Sprintf("message exceeds maximum of %d bytes", cfg.MaxMessageBytes))
	}
	return nil
}

// ValidateResumeRequest checks the shape of a resume request. The choice
// itself is not validated: unknown or empty choices resolve to the
// default route.
func ValidateResumeRequest(req *ResumeRequest) *APIError {
	if req.ThreadID == "" {
		return NewInvalidRequestError("thread_id", "thread_id is required")
	}
	if !ValidateThreadID(req.ThreadID) {
		return NewInvalidRequestError("thread_id", "thread_id must be a UUID")
	}
	return nil
}
