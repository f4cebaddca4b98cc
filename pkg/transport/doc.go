// Package transport defines the contracts between the transports and the
// turn engine, plus the middleware shared by every HTTP surface.
//
// # Interfaces
//
//   - TurnRunner executes synchronous, streaming and resumed turns.
//   - EventWriter receives the ordered StreamEvents of one streamed turn.
//   - CheckpointStore persists ConversationState between turns.
//
// # Middleware
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// # Errors
//
// APIErrorFromError maps engine and store sentinels onto the structured
// api.APIError, and HTTPStatusFromError maps that onto an HTTP status.
package transport
