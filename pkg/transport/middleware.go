package transport

import (
	"context"
	"fmt"

	"github.com/rhuss/homebrain/pkg/api"
)

// TurnOp selects the engine entry point a TurnRequest targets.
type TurnOp string

const (
	OpRun    TurnOp = "run"
	OpResume TurnOp = "resume"
)

// TurnRequest is the transport-neutral form of one turn invocation. When
// Writer is non-nil the turn is streamed to it.
type TurnRequest struct {
	Op       TurnOp
	ThreadID string
	Text     string // user text for OpRun, chosen route for OpResume
	Writer   EventWriter
}

// Streaming reports whether the turn streams events.
func (r *TurnRequest) Streaming() bool { return r.Writer != nil }

// TurnHandler handles a TurnRequest. Streaming turns return a result with
// only ThreadID set.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req *TurnRequest) (*api.TurnResult, error)
}

// TurnHandlerFunc is an adapter that allows using an ordinary function as a
// TurnHandler.
type TurnHandlerFunc func(ctx context.Context, req *TurnRequest) (*api.TurnResult, error)

// HandleTurn calls f(ctx, req).
func (f TurnHandlerFunc) HandleTurn(ctx context.Context, req *TurnRequest) (*api.TurnResult, error) {
	return f(ctx, req)
}

// RunnerHandler adapts a TurnRunner into the TurnHandler the middleware
// chain wraps.
func RunnerHandler(r TurnRunner) TurnHandler {
	return TurnHandlerFunc(func(ctx context.Context, req *TurnRequest) (*api.TurnResult, error) {
		switch {
		case req.Op == OpRun && req.Streaming():
			tid, err := r.RunTurnStream(ctx, req.ThreadID, req.Text, req.Writer)
			return &api.TurnResult{ThreadID: tid}, err
		case req.Op == OpRun:
			return r.RunTurn(ctx, req.ThreadID, req.Text)
		case req.Op == OpResume && req.Streaming():
			err := r.ResumeStream(ctx, req.ThreadID, req.Text, req.Writer)
			return &api.TurnResult{ThreadID: req.ThreadID}, err
		case req.Op == OpResume:
			return r.Resume(ctx, req.ThreadID, req.Text)
		default:
			return nil, fmt.Errorf("unknown turn op %q", req.Op)
		}
	})
}

// Middleware wraps a TurnHandler to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper (executes first on the way in, last on the way out).
type Middleware func(TurnHandler) TurnHandler

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next TurnHandler) TurnHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
