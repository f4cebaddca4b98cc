package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
	"github.com/rhuss/homebrain/pkg/generator"
	"github.com/rhuss/homebrain/pkg/observability"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

// Engine runs conversation turns against a generator and a checkpoint
// store. It implements transport.TurnRunner.
type Engine struct {
	gen      generator.Generator
	store    transport.CheckpointStore
	cfg      Config
	router   *router
	handlers map[api.Route]Handler
}

var _ transport.TurnRunner = (*Engine)(nil)

// New creates an Engine. The generator and store must not be nil. One
// handler is built per route: a tool loop when the route has tools, a
// single-shot handler otherwise.
func New(gen generator.Generator, store transport.CheckpointStore, cfg Config) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("engine: generator must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}

	handlers := make(map[api.Route]Handler, len(api.Routes()))
	for _, route := range api.Routes() {
		capab := cfg.resolveCapability(route)
		if capab.Tools.Len() > 0 {
			handlers[route] = NewToolLoopHandler(gen, capab.Instruction, capab.Tools, cfg.maxIterations())
		} else {
			handlers[route] = NewSingleShotHandler(gen, capab.Instruction)
		}
		debug.Log("dispatch", "handler configured", "route", route, "handler", handlerKind(handlers[route]), "tools", capab.Tools.Names())
	}

	return &Engine{
		gen:      gen,
		store:    store,
		cfg:      cfg,
		router:   &router{gen: gen, attempts: cfg.RouterRetryAttempts, wait: cfg.RouterRetryBackoff},
		handlers: handlers,
	}, nil
}

// RunTurn executes one synchronous turn. An empty threadID starts a new
// thread. When the router suspends, the result carries the clarification
// and no reply.
func (e *Engine) RunTurn(ctx context.Context, threadID, text string) (*api.TurnResult, error) {
	text, err := normalizeInput(text)
	if err != nil {
		observability.TurnsTotal.WithLabelValues("run", "rejected").Inc()
		return nil, err
	}
	if threadID == "" {
		threadID = api.NewThreadID()
	}

	ctx, span := startSpan(ctx, "run", threadID)
	defer span.End()

	state, err := e.loadOrCreate(ctx, threadID)
	if err != nil {
		return nil, e.failed(span, "run", threadID, err)
	}
	suspended, err := e.advance(ctx, state, text, nil)
	if err == nil {
		err = e.commit(ctx, state, suspended, true)
	}
	if err != nil {
		return nil, e.failed(span, "run", threadID, err)
	}
	e.completed(span, "run", state, suspended)
	return turnResult(state), nil
}

// Resume answers the pending clarification of a suspended thread and
// completes the turn. The generator is not asked to classify again.
func (e *Engine) Resume(ctx context.Context, threadID, choice string) (*api.TurnResult, error) {
	ctx, span := startSpan(ctx, "resume", threadID)
	defer span.End()

	state, err := e.loadPending(ctx, threadID)
	if err != nil {
		return nil, e.failed(span, "resume", threadID, err)
	}
	err = e.resolve(ctx, state, choice, nil)
	if err == nil {
		err = e.commit(ctx, state, false, true)
	}
	if err != nil {
		return nil, e.failed(span, "resume", threadID, err)
	}
	e.completed(span, "resume", state, false)
	return turnResult(state), nil
}

// advance runs ingest and routing, then dispatch and finalize unless the
// router suspended the turn.
func (e *Engine) advance(ctx context.Context, state *api.ConversationState, text string, emit TokenFunc) (suspended bool, err error) {
	if state.Pending != nil {
		slog.Warn("discarding pending clarification for new turn",
			"thread_id", state.ThreadID, "original_text", debug.Truncate(state.Pending.OriginalText, 80))
		observability.ClarificationsTotal.WithLabelValues("discarded").Inc()
		state.Pending = nil
	}

	ingest(state, text)

	phase := api.PhaseClassifying
	decision := e.router.classify(ctx, state.Messages)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	state.ApplyDecision(decision)
	recordDecision(decision)
	debug.Log("router", "classified", "thread_id", state.ThreadID, "route", decision.Route,
		"confidence", decision.Confidence, "reason", decision.Reason, "review", decision.NeedsHumanReview)

	if decision.Confidence < e.cfg.MinConfidence && e.cfg.InterruptOnAmbiguity {
		e.transition(state.ThreadID, &phase, api.PhaseAwaitingClarification)
		state.Pending = newPending(text, e.cfg.now())
		observability.ClarificationsTotal.WithLabelValues("asked").Inc()
		return true, nil
	}

	e.transition(state.ThreadID, &phase, api.PhaseResolved)
	return false, e.dispatchAndFinalize(ctx, state, emit)
}

// resolve applies a clarification answer and completes the turn.
func (e *Engine) resolve(ctx context.Context, state *api.ConversationState, choice string, emit TokenFunc) error {
	phase := api.PhaseAwaitingClarification
	decision := selectedDecision(choice)
	if decision.Route != api.Route(choice) {
		debug.Log("router", "clarification choice outside route set", "thread_id", state.ThreadID, "choice", choice)
	}
	state.Pending = nil
	state.ApplyDecision(decision)
	recordDecision(decision)
	observability.ClarificationsTotal.WithLabelValues("resolved").Inc()

	e.transition(state.ThreadID, &phase, api.PhaseResolved)
	return e.dispatchAndFinalize(ctx, state, emit)
}

func (e *Engine) dispatchAndFinalize(ctx context.Context, state *api.ConversationState, emit TokenFunc) error {
	if err := e.dispatch(ctx, state, emit); err != nil {
		return fmt.Errorf("dispatch %s: %w", state.Route, err)
	}
	finalize(state)
	return nil
}

// commit persists the turn. Synchronous turns without assistant text are
// not saved.
func (e *Engine) commit(ctx context.Context, state *api.ConversationState, suspended, requireReply bool) error {
	if !suspended && requireReply && state.FinalAnswer == "" {
		return ErrNoReply
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	state.Version++
	state.UpdatedAt = e.cfg.now()
	if err := e.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save thread %s: %w", state.ThreadID, err)
	}
	debug.Log("store", "thread saved", "thread_id", state.ThreadID, "version", state.Version)
	return nil
}

func (e *Engine) loadOrCreate(ctx context.Context, threadID string) (*api.ConversationState, error) {
	state, err := e.store.Load(ctx, threadID)
	if errors.Is(err, storage.ErrNotFound) {
		debug.Log("store", "starting new thread", "thread_id", threadID)
		return api.NewConversationState(threadID, e.cfg.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return state, nil
}

func (e *Engine) loadPending(ctx context.Context, threadID string) (*api.ConversationState, error) {
	state, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	if !state.Suspended() {
		return nil, api.ErrNoPendingClarification
	}
	return state, nil
}

func (e *Engine) transition(threadID string, phase *api.RouterPhase, next api.RouterPhase) {
	if err := api.ValidatePhaseTransition(*phase, next); err != nil {
		slog.Error("router phase violation", "thread_id", threadID, "error", err)
	}
	debug.Log("router", "phase", "thread_id", threadID, "from", *phase, "to", next)
	*phase = next
}

func (e *Engine) completed(span trace.Span, op string, state *api.ConversationState, suspended bool) {
	outcome := "completed"
	if suspended {
		outcome = "suspended"
	}
	observability.TurnsTotal.WithLabelValues(op, outcome).Inc()
	span.SetAttributes(
		attribute.String("homebrain.route", string(state.Route)),
		attribute.Float64("homebrain.route_confidence", state.RouteConfidence),
		attribute.String("homebrain.outcome", outcome),
		attribute.Int("homebrain.message_count", len(state.Messages)),
	)
	debug.Log("dispatch", "turn "+outcome, "thread_id", state.ThreadID, "route", state.Route, "messages", len(state.Messages))
}

// failed records a failed turn and returns err unchanged.
func (e *Engine) failed(span trace.Span, op, threadID string, err error) error {
	outcome := "failed"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
		debug.Log("stream", "turn cancelled", "thread_id", threadID)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, api.ErrNoPendingClarification):
		outcome = "rejected"
	default:
		slog.Warn("turn failed", "op", op, "thread_id", threadID, "error", err)
	}
	observability.TurnsTotal.WithLabelValues(op, outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	return err
}

func startSpan(ctx context.Context, op, threadID string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "engine."+op,
		trace.WithAttributes(attribute.String("homebrain.thread_id", threadID)))
}

func turnResult(state *api.ConversationState) *api.TurnResult {
	res := &api.TurnResult{
		ThreadID:     state.ThreadID,
		Reply:        state.FinalAnswer,
		Decision:     state.Decision(),
		MessageCount: len(state.Messages),
		History:      state.Clone().Messages,
	}
	if state.Pending != nil {
		p := *state.Pending
		res.Clarification = &p
	}
	return res
}
