package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/homebrain/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// turn. An ID already on the context (set by the HTTP adapter from the
// X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, req *TurnRequest) (*api.TurnResult, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.HandleTurn(ctx, req)
		})
	}
}

// NewRequestID returns a random 32 character hex id.
func NewRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
