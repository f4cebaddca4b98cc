package engine

import (
	"context"
	"errors"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
	"github.com/rhuss/homebrain/pkg/observability"
	"github.com/rhuss/homebrain/pkg/transport"
)

// errWriterBroken marks a failed write to the caller. Nothing more is sent
// after it.
var errWriterBroken = errors.New("event writer failed")

// RunTurnStream executes one turn, writing token events as reply text is
// produced and ending with exactly one terminal event. It returns the
// thread id used. Input and load errors are returned without writing any
// event. When ctx is cancelled, nothing further is written and the turn is
// not saved.
func (e *Engine) RunTurnStream(ctx context.Context, threadID, text string, w transport.EventWriter) (string, error) {
	text, err := normalizeInput(text)
	if err != nil {
		observability.TurnsTotal.WithLabelValues("run", "rejected").Inc()
		return "", err
	}
	if threadID == "" {
		threadID = api.NewThreadID()
	}

	ctx, span := startSpan(ctx, "run", threadID)
	defer span.End()

	state, err := e.loadOrCreate(ctx, threadID)
	if err != nil {
		return threadID, e.failed(span, "run", threadID, err)
	}

	em := &emitter{ctx: ctx, threadID: threadID, w: w}
	suspended, err := e.advance(ctx, state, text, em.token)
	if err == nil {
		err = e.commit(ctx, state, suspended, false)
	}
	if err == nil {
		err = em.finish(state)
	}
	if err != nil {
		em.fail(err)
		return threadID, e.failed(span, "run", threadID, err)
	}
	e.completed(span, "run", state, suspended)
	return threadID, nil
}

// ResumeStream is the streaming form of Resume.
func (e *Engine) ResumeStream(ctx context.Context, threadID, choice string, w transport.EventWriter) error {
	ctx, span := startSpan(ctx, "resume", threadID)
	defer span.End()

	state, err := e.loadPending(ctx, threadID)
	if err != nil {
		return e.failed(span, "resume", threadID, err)
	}

	em := &emitter{ctx: ctx, threadID: threadID, w: w}
	err = e.resolve(ctx, state, choice, em.token)
	if err == nil {
		err = e.commit(ctx, state, false, false)
	}
	if err == nil {
		err = em.finish(state)
	}
	if err != nil {
		em.fail(err)
		return e.failed(span, "resume", threadID, err)
	}
	e.completed(span, "resume", state, false)
	return nil
}

// emitter writes the events of one streamed turn.
type emitter struct {
	ctx      context.Context
	threadID string
	w        transport.EventWriter
	tokens   int
	broken   bool
}

func (em *emitter) token(text string) error {
	return em.write(api.TokenEvent(text))
}

// finish writes the terminal event for a saved turn: clarification when
// the thread is suspended, done otherwise.
func (em *emitter) finish(state *api.ConversationState) error {
	if state.Pending != nil {
		return em.write(api.ClarificationEvent(em.threadID, state.Pending))
	}
	return em.write(api.DoneEvent(em.threadID))
}

// fail ends the stream with an error event, unless the caller is gone.
func (em *emitter) fail(err error) {
	if em.broken || em.ctx.Err() != nil {
		return
	}
	msg := transport.APIErrorFromError(err).Message
	if werr := em.write(api.ErrorEvent(em.threadID, msg)); werr != nil {
		debug.Log("stream", "error event not delivered", "thread_id", em.threadID, "error", werr)
	}
}

func (em *emitter) write(ev api.StreamEvent) error {
	if err := em.ctx.Err(); err != nil {
		return err
	}
	if err := em.w.WriteEvent(em.ctx, ev); err != nil {
		em.broken = true
		return errors.Join(errWriterBroken, err)
	}
	if ev.Type == api.EventToken {
		em.tokens++
	}
	debug.Trace("stream", "event written", "thread_id", em.threadID, "type", ev.Type, "tokens", em.tokens)
	return nil
}
