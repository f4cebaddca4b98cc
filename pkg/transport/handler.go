package transport

import (
	"context"

	"github.com/rhuss/homebrain/pkg/api"
)

// TurnRunner executes conversation turns. It is the contract between the
// transports and the orchestration engine.
type TurnRunner interface {
	// RunTurn executes one synchronous turn. An empty threadID starts a new
	// thread. A suspended turn returns a result carrying the clarification.
	RunTurn(ctx context.Context, threadID, text string) (*api.TurnResult, error)

	// RunTurnStream executes one turn, emitting events to w. It returns the
	// thread id actually used. Errors returned before the first event
	// (input errors) are not emitted; later failures end the stream with an
	// error event.
	RunTurnStream(ctx context.Context, threadID, text string, w EventWriter) (string, error)

	// Resume answers a pending clarification and completes the turn.
	Resume(ctx context.Context, threadID, choice string) (*api.TurnResult, error)

	// ResumeStream is the streaming form of Resume.
	ResumeStream(ctx context.Context, threadID, choice string, w EventWriter) error
}

// EventWriter receives the events of one streamed turn.
//
// Implementations reject events after a terminal event (done, error,
// clarification) has been written.
type EventWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}

// EventWriterFunc adapts a function to an EventWriter with a no-op Flush.
type EventWriterFunc func(ctx context.Context, event api.StreamEvent) error

// WriteEvent calls f(ctx, event).
func (f EventWriterFunc) WriteEvent(ctx context.Context, event api.StreamEvent) error {
	return f(ctx, event)
}

// Flush is a no-op.
func (f EventWriterFunc) Flush() error { return nil }

// ListOptions controls ordering and size of thread listings.
type ListOptions struct {
	Limit int    // Maximum number of threads to return (default 20, max 100).
	Order string // Sort order by last update: "asc" or "desc" (default "desc").
}

// Normalize applies the default and maximum limit.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}
	return o
}

// CheckpointStore persists ConversationState between turns.
//
// Load followed by Save must round trip: a state saved and loaded again is
// deeply equal to the one saved. Save is atomic per thread id and applies an
// optimistic version check (see storage.CheckVersion).
type CheckpointStore interface {
	// Load returns the state for a thread, or storage.ErrNotFound.
	Load(ctx context.Context, threadID string) (*api.ConversationState, error)

	// Save persists state. state.Version must be exactly one above the
	// stored version (or 1 for a new thread), otherwise storage.ErrConflict.
	Save(ctx context.Context, state *api.ConversationState) error

	// Delete removes a thread. Returns storage.ErrNotFound if absent.
	Delete(ctx context.Context, threadID string) error

	// List returns summaries of stored threads visible to the caller.
	List(ctx context.Context, opts ListOptions) (*api.ThreadList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
