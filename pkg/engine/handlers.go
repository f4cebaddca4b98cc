package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/debug"
	"github.com/rhuss/homebrain/pkg/generator"
	"github.com/rhuss/homebrain/pkg/tools"
)

// ErrMaxIterations is returned when the tool loop reaches its bound without
// a reply free of tool calls.
var ErrMaxIterations = errors.New("tool loop exceeded max iterations")

// TokenFunc receives reply text as it is produced. A non-nil error aborts
// the handler.
type TokenFunc func(text string) error

// Outcome is what a handler adds to the thread.
type Outcome struct {
	// Messages to append to the log, in order.
	Messages []api.Message

	// ToolResults produced while handling the turn.
	ToolResults []api.ToolResultRecord
}

// Handler serves one route.
type Handler interface {
	// Handle produces the reply to history. A nil emit means the caller
	// does not stream, otherwise text is forwarded as it arrives.
	Handle(ctx context.Context, history []api.Message, emit TokenFunc) (*Outcome, error)
}

// SingleShotHandler makes exactly one generator call without tools.
type SingleShotHandler struct {
	gen         generator.Generator
	instruction string
}

// NewSingleShotHandler creates a handler that answers with one call.
func NewSingleShotHandler(gen generator.Generator, instruction string) *SingleShotHandler {
	return &SingleShotHandler{gen: gen, instruction: instruction}
}

func (h *SingleShotHandler) Handle(ctx context.Context, history []api.Message, emit TokenFunc) (*Outcome, error) {
	req := &generator.Request{Instruction: h.instruction, Messages: history}
	reply, err := complete(ctx, h.gen, req, emit)
	if err != nil {
		return nil, err
	}
	return &Outcome{Messages: []api.Message{reply.Message}}, nil
}

// ToolLoopHandler alternates generator calls and tool executions until a
// reply carries no tool calls.
type ToolLoopHandler struct {
	gen           generator.Generator
	instruction   string
	tools         *tools.Toolset
	maxIterations int
}

// NewToolLoopHandler creates a handler bounded to maxIterations generator
// calls. Zero or negative means 10.
func NewToolLoopHandler(gen generator.Generator, instruction string, ts *tools.Toolset, maxIterations int) *ToolLoopHandler {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &ToolLoopHandler{gen: gen, instruction: instruction, tools: ts, maxIterations: maxIterations}
}

func (h *ToolLoopHandler) Handle(ctx context.Context, history []api.Message, emit TokenFunc) (*Outcome, error) {
	msgs := append([]api.Message(nil), history...)
	specs := toolSpecs(h.tools)
	out := &Outcome{}

	for i := 0; i < h.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := &generator.Request{Instruction: h.instruction, Messages: msgs, Tools: specs}
		reply, err := complete(ctx, h.gen, req, emit)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, reply.Message)
		out.Messages = append(out.Messages, reply.Message)

		if !reply.WantsTools() {
			return out, nil
		}

		for _, call := range reply.Message.ToolCalls {
			res := h.tools.Execute(ctx, call)
			debug.Log("tools", "tool executed", "tool", call.Name, "call_id", call.ID, "error", res.IsError)
			debug.Trace("tools", "tool output", "tool", call.Name, "output", debug.Truncate(res.Output, 500))

			msg := api.NewTextMessage(api.RoleTool, res.Output)
			msg.ToolCallID = res.CallID
			msg.Name = res.Name
			msgs = append(msgs, msg)
			out.Messages = append(out.Messages, msg)
			out.ToolResults = append(out.ToolResults, api.ToolResultRecord{
				CallID:  res.CallID,
				Name:    res.Name,
				Output:  res.Output,
				IsError: res.IsError,
			})
		}
	}
	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, h.maxIterations)
}

func toolSpecs(ts *tools.Toolset) []generator.ToolSpec {
	var specs []generator.ToolSpec
	for _, t := range ts.Tools() {
		specs = append(specs, generator.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// complete performs one generator call, streaming through emit when set.
func complete(ctx context.Context, gen generator.Generator, req *generator.Request, emit TokenFunc) (*generator.Reply, error) {
	if emit == nil {
		return gen.Generate(ctx, req)
	}

	// Cancelling on return releases the producer if emit aborted early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := gen.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	for d := range ch {
		switch {
		case d.Err != nil:
			return nil, d.Err
		case d.Reply != nil:
			return d.Reply, nil
		case d.Text != "":
			if err := emit(d.Text); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, generator.ErrEmptyResponse
}
