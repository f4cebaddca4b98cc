package engine

import (
	"context"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
)

// dispatch runs the handler of the state's route and appends its output.
// A thread flagged for human review gets the refusal without any generator
// or tool call. On error the state is left as it was.
func (e *Engine) dispatch(ctx context.Context, state *api.ConversationState, emit TokenFunc) error {
	if state.NeedsHumanReview {
		debug.Log("dispatch", "refusing flagged message", "thread_id", state.ThreadID)
		if emit != nil {
			if err := emit(refusalText); err != nil {
				return err
			}
		}
		state.Messages = append(state.Messages, api.NewTextMessage(api.RoleAssistant, refusalText))
		state.ToolResults = nil
		return nil
	}

	h, ok := e.handlers[state.Route]
	if !ok {
		h = e.handlers[api.RouteGeneral]
	}
	debug.Log("dispatch", "dispatching", "thread_id", state.ThreadID, "route", state.Route, "handler", handlerKind(h))

	out, err := h.Handle(ctx, state.Messages, emit)
	if err != nil {
		return err
	}
	state.Messages = append(state.Messages, out.Messages...)
	state.ToolResults = out.ToolResults
	return nil
}

func handlerKind(h Handler) string {
	switch h.(type) {
	case *ToolLoopHandler:
		return "tool_loop"
	case *SingleShotHandler:
		return "single_shot"
	}
	return "custom"
}
