// Package api defines the core types shared by the homebrain turn engine,
// its stores and its transports.
//
// The package performs no I/O. It holds the persisted per-thread record
// ([ConversationState]), the routing vocabulary ([Route], [RouteDecision]),
// the suspend record for human clarification ([PendingClarification]), the
// wire-facing [StreamEvent] union, and the structured [APIError] used by
// every transport.
//
// Core types:
//   - [Message]: one entry in the append-only conversation log
//   - [ConversationState]: versioned per-thread record loaded and saved by a checkpoint store
//   - [RouteDecision]: classifier output after clamping and enum correction
//   - [StreamEvent]: token, done, error or clarification frame emitted while streaming
//   - [APIError]: structured error with type, code, param, and message
package api
